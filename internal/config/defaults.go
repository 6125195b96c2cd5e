package config

const (
	defaultProjectRoot  = "~/sorapipe"
	defaultStateDir     = "~/.local/share/sorapipe"
	defaultCDPPort      = 9222
	defaultEncoderBin   = "ffmpeg"
	defaultVCodec       = "auto_hw"
	defaultCRF          = 18
	defaultPreset       = "veryfast"
	defaultFormat       = "mp4"
	defaultBlurThreads  = 2
	defaultGroupSize    = 3
	defaultMergePattern = "auto"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"

	defaultScheduleMinutes  = 60
	defaultBatchStepMinutes = 60
	defaultPrivacy          = "private"

	defaultDetectThreshold  = 0.7
	defaultDetectFrames     = 5
	defaultDetectBlurKernel = 5
	defaultDetectDownscale  = 960
	defaultDetectEdgeWeight = 0.3
	defaultDetectCannyLow   = 60
	defaultDetectCannyHigh  = 140
	defaultDetectZWeight    = 0.25
	defaultDetectScoreFloor = 0

	defaultNotifyAPIBase = "https://api.telegram.org"

	minCRF, maxCRF                 = 0, 51
	minBlurThreads, maxBlurThreads = 1, 8
)

// Default returns a Config populated with repository defaults. The result is
// complete: every recognized key has a value before normalize runs.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectRoot:  defaultProjectRoot,
			DownloadsDir: defaultProjectRoot + "/downloads",
			BlurredDir:   defaultProjectRoot + "/blurred",
			MergedDir:    defaultProjectRoot + "/merged",
			BlurSrcDir:   defaultProjectRoot + "/downloads",
			MergeSrcDir:  defaultProjectRoot + "/blurred",
			HistoryFile:  defaultStateDir + "/history.jsonl",
			TitlesFile:   defaultProjectRoot + "/titles.txt",
			StateDir:     defaultStateDir,
		},
		Browser: Browser{
			CDPPort:    defaultCDPPort,
			ShadowBase: defaultStateDir + "/shadow",
		},
		Encoder: Encoder{
			Binary:      defaultEncoderBin,
			VCodec:      defaultVCodec,
			CRF:         defaultCRF,
			Preset:      defaultPreset,
			Format:      defaultFormat,
			CopyAudio:   true,
			BlurThreads: defaultBlurThreads,
			Presets:     map[string]Preset{},
		},
		Merge: Merge{
			GroupSize: defaultGroupSize,
			Pattern:   defaultMergePattern,
		},
		Upload: Upload{
			SrcDir:                 defaultProjectRoot + "/merged",
			ArchiveDir:             defaultProjectRoot + "/archive",
			ScheduleMinutesFromNow: defaultScheduleMinutes,
			BatchStepMinutes:       defaultBatchStepMinutes,
		},
		Detect: Detect{
			Threshold:    defaultDetectThreshold,
			Frames:       defaultDetectFrames,
			BlurKernel:   defaultDetectBlurKernel,
			Downscale:    defaultDetectDownscale,
			Scales:       []float64{0.9, 1.0, 1.1},
			EdgeWeight:   defaultDetectEdgeWeight,
			CannyLow:     defaultDetectCannyLow,
			CannyHigh:    defaultDetectCannyHigh,
			ScoreZWeight: defaultDetectZWeight,
			ScoreFloor:   defaultDetectScoreFloor,
		},
		Maintenance: Maintenance{
			RetentionDays: RetentionDays{Downloads: 14, Blurred: 14, Merged: 30},
		},
		Notifications: Notifications{
			APIBase: defaultNotifyAPIBase,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
