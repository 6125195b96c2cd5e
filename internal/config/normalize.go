package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBrowser(); err != nil {
		return err
	}
	c.normalizeEncoder()
	c.normalizeMerge()
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	if err := c.normalizeWorkers(); err != nil {
		return err
	}
	if err := c.normalizeDetect(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.project_root", &c.Paths.ProjectRoot},
		{"paths.downloads_dir", &c.Paths.DownloadsDir},
		{"paths.blurred_dir", &c.Paths.BlurredDir},
		{"paths.merged_dir", &c.Paths.MergedDir},
		{"paths.blur_src_dir", &c.Paths.BlurSrcDir},
		{"paths.merge_src_dir", &c.Paths.MergeSrcDir},
		{"paths.history_file", &c.Paths.HistoryFile},
		{"paths.titles_file", &c.Paths.TitlesFile},
		{"paths.state_dir", &c.Paths.StateDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeBrowser() error {
	var err error
	c.Browser.ActiveProfile = strings.TrimSpace(c.Browser.ActiveProfile)
	c.Browser.Binary = strings.TrimSpace(c.Browser.Binary)
	if c.Browser.CDPPort <= 0 || c.Browser.CDPPort > 65535 {
		c.Browser.CDPPort = defaultCDPPort
	}
	if strings.TrimSpace(c.Browser.ShadowBase) == "" {
		c.Browser.ShadowBase = defaultStateDir + "/shadow"
	}
	if c.Browser.ShadowBase, err = expandPath(c.Browser.ShadowBase); err != nil {
		return fmt.Errorf("browser.shadow_base: %w", err)
	}
	for i := range c.Browser.Profiles {
		profile := &c.Browser.Profiles[i]
		profile.Name = strings.TrimSpace(profile.Name)
		if profile.UserDataDir, err = expandPath(profile.UserDataDir); err != nil {
			return fmt.Errorf("browser.profiles[%d].user_data_dir: %w", i, err)
		}
		profile.ProfileDirectory = strings.TrimSpace(profile.ProfileDirectory)
		if profile.ProfileDirectory == "" {
			profile.ProfileDirectory = "Default"
		}
	}
	return nil
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBin
	}
	c.Encoder.VCodec = strings.ToLower(strings.TrimSpace(c.Encoder.VCodec))
	switch c.Encoder.VCodec {
	case "auto_hw", "libx264", "copy":
	default:
		c.Encoder.VCodec = defaultVCodec
	}
	c.Encoder.CRF = clamp(c.Encoder.CRF, minCRF, maxCRF)
	c.Encoder.Preset = strings.TrimSpace(c.Encoder.Preset)
	if c.Encoder.Preset == "" {
		c.Encoder.Preset = defaultPreset
	}
	c.Encoder.Format = strings.ToLower(strings.TrimSpace(c.Encoder.Format))
	switch c.Encoder.Format {
	case "mp4", "mov", "webm":
	default:
		c.Encoder.Format = defaultFormat
	}
	c.Encoder.BlurThreads = clamp(c.Encoder.BlurThreads, minBlurThreads, maxBlurThreads)
	c.Encoder.ActivePreset = strings.TrimSpace(c.Encoder.ActivePreset)
	if c.Encoder.Presets == nil {
		c.Encoder.Presets = map[string]Preset{}
	}
}

func (c *Config) normalizeMerge() {
	if c.Merge.GroupSize < 1 {
		c.Merge.GroupSize = defaultGroupSize
	}
	c.Merge.Pattern = strings.TrimSpace(c.Merge.Pattern)
	if c.Merge.Pattern == "" {
		c.Merge.Pattern = defaultMergePattern
	}
}

func (c *Config) normalizeUpload() error {
	var err error
	if c.Upload.SrcDir, err = expandPath(c.Upload.SrcDir); err != nil {
		return fmt.Errorf("upload.upload_src_dir: %w", err)
	}
	if c.Upload.ArchiveDir, err = expandPath(c.Upload.ArchiveDir); err != nil {
		return fmt.Errorf("upload.archive_dir: %w", err)
	}
	c.Upload.ActiveChannel = strings.TrimSpace(c.Upload.ActiveChannel)
	if c.Upload.ScheduleMinutesFromNow < 0 {
		c.Upload.ScheduleMinutesFromNow = 0
	}
	if c.Upload.BatchStepMinutes < 0 {
		c.Upload.BatchStepMinutes = 0
	}
	if c.Upload.BatchLimit < 0 {
		c.Upload.BatchLimit = 0
	}
	for i := range c.Upload.Channels {
		channel := &c.Upload.Channels[i]
		channel.Name = strings.TrimSpace(channel.Name)
		channel.DefaultPrivacy = strings.ToLower(strings.TrimSpace(channel.DefaultPrivacy))
		switch channel.DefaultPrivacy {
		case "private", "unlisted", "public":
		default:
			channel.DefaultPrivacy = defaultPrivacy
		}
	}
	return nil
}

func (c *Config) normalizeWorkers() error {
	workers := []struct {
		name   string
		worker *Worker
	}{
		{"workers.autogen", &c.Workers.Autogen},
		{"workers.download", &c.Workers.Download},
		{"workers.upload", &c.Workers.Upload},
	}
	for _, entry := range workers {
		var err error
		if entry.worker.Workdir != "" {
			if entry.worker.Workdir, err = expandPath(entry.worker.Workdir); err != nil {
				return fmt.Errorf("%s.workdir: %w", entry.name, err)
			}
		}
		entry.worker.Entry = strings.TrimSpace(entry.worker.Entry)
	}
	return nil
}

func (c *Config) normalizeDetect() error {
	var err error
	if c.Detect.Template != "" {
		if c.Detect.Template, err = expandPath(c.Detect.Template); err != nil {
			return fmt.Errorf("detect.template: %w", err)
		}
	}
	if c.Detect.Mask != "" {
		if c.Detect.Mask, err = expandPath(c.Detect.Mask); err != nil {
			return fmt.Errorf("detect.mask: %w", err)
		}
	}
	if c.Detect.Threshold <= 0 || c.Detect.Threshold > 1 {
		c.Detect.Threshold = defaultDetectThreshold
	}
	if c.Detect.Frames < 1 {
		c.Detect.Frames = defaultDetectFrames
	}
	if c.Detect.Downscale < 0 {
		c.Detect.Downscale = 0
	}
	if len(c.Detect.Scales) == 0 {
		c.Detect.Scales = []float64{1.0}
	}
	c.Detect.EdgeWeight = clampFloat(c.Detect.EdgeWeight, 0, 1)
	c.Detect.ScoreZWeight = clampFloat(c.Detect.ScoreZWeight, 0, 1)
	c.Detect.ScoreFloor = clampFloat(c.Detect.ScoreFloor, 0, 1)
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.BotToken = strings.TrimSpace(c.Notifications.BotToken)
	c.Notifications.ChatID = strings.TrimSpace(c.Notifications.ChatID)
	c.Notifications.APIBase = strings.TrimRight(strings.TrimSpace(c.Notifications.APIBase), "/")
	if c.Notifications.APIBase == "" {
		c.Notifications.APIBase = defaultNotifyAPIBase
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func clampFloat(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
