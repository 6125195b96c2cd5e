package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"sorapipe/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the working directories and bookkeeping files of the pipeline.
type Paths struct {
	ProjectRoot  string `toml:"project_root"`
	DownloadsDir string `toml:"downloads_dir"`
	BlurredDir   string `toml:"blurred_dir"`
	MergedDir    string `toml:"merged_dir"`
	BlurSrcDir   string `toml:"blur_src_dir"`
	MergeSrcDir  string `toml:"merge_src_dir"`
	HistoryFile  string `toml:"history_file"`
	TitlesFile   string `toml:"titles_file"`
	StateDir     string `toml:"state_dir"`
}

// BrowserProfile identifies one browser user-data profile.
type BrowserProfile struct {
	Name             string `toml:"name"`
	UserDataDir      string `toml:"user_data_dir"`
	ProfileDirectory string `toml:"profile_directory"`
}

// Browser contains browser automation settings.
type Browser struct {
	Profiles      []BrowserProfile `toml:"profiles"`
	ActiveProfile string           `toml:"active_profile"`
	CDPPort       int              `toml:"cdp_port"`
	Binary        string           `toml:"binary"`
	ShadowBase    string           `toml:"shadow_base"`
}

// Zone is a rectangular delogo region in source-pixel coordinates.
type Zone struct {
	X int `toml:"x"`
	Y int `toml:"y"`
	W int `toml:"w"`
	H int `toml:"h"`
}

// Preset names a zone list for one clip aspect.
type Preset struct {
	Aspect string `toml:"aspect"`
	Zones  []Zone `toml:"zones"`
}

// Encoder contains ffmpeg invocation settings for the blur stage.
type Encoder struct {
	Binary       string            `toml:"binary"`
	PostChain    string            `toml:"post_chain"`
	VCodec       string            `toml:"vcodec"` // auto_hw, libx264, copy
	CRF          int               `toml:"crf"`
	Preset       string            `toml:"preset"`
	Format       string            `toml:"format"` // mp4, mov, webm
	CopyAudio    bool              `toml:"copy_audio"`
	BlurThreads  int               `toml:"blur_threads"`
	ActivePreset string            `toml:"active_preset"`
	Presets      map[string]Preset `toml:"presets"`
}

// Merge contains concatenation settings.
type Merge struct {
	GroupSize int    `toml:"group_size"`
	Pattern   string `toml:"pattern"`
}

// UploadChannel describes one publishing destination.
type UploadChannel struct {
	Name            string `toml:"name"`
	CredentialsRefs string `toml:"credentials_refs"`
	DefaultPrivacy  string `toml:"default_privacy"` // private, unlisted, public
}

// Upload contains scheduling and channel settings for the upload stage.
type Upload struct {
	Channels               []UploadChannel `toml:"channels"`
	ActiveChannel          string          `toml:"active_channel"`
	SrcDir                 string          `toml:"upload_src_dir"`
	ArchiveDir             string          `toml:"archive_dir"`
	ScheduleMinutesFromNow int             `toml:"schedule_minutes_from_now"`
	DraftOnly              bool            `toml:"draft_only"`
	BatchStepMinutes       int             `toml:"batch_step_minutes"`
	BatchLimit             int             `toml:"batch_limit"`
	LastPublishAt          string          `toml:"last_publish_at"`
}

// Worker points at one external worker script.
type Worker struct {
	Workdir string `toml:"workdir"`
	Entry   string `toml:"entry"`
}

// Workers contains the external worker script locations.
type Workers struct {
	Autogen  Worker `toml:"autogen"`
	Download Worker `toml:"download"`
	Upload   Worker `toml:"upload"`
}

// Autogen contains prompt submission settings.
type Autogen struct {
	PromptsFile string `toml:"prompts_file"`
}

// Download contains draft scraping settings.
type Download struct {
	MaxVideos int `toml:"max_videos"` // 0 means unlimited
}

// Detect contains watermark auto-detection settings.
type Detect struct {
	Template     string    `toml:"template"`
	Mask         string    `toml:"mask"`
	Threshold    float64   `toml:"threshold"`
	Frames       int       `toml:"frames"`
	BlurKernel   int       `toml:"blur_kernel"`
	Downscale    float64   `toml:"downscale"`
	Scales       []float64 `toml:"scales"`
	EdgeWeight   float64   `toml:"edge_weight"`
	CannyLow     float64   `toml:"canny_low"`
	CannyHigh    float64   `toml:"canny_high"`
	ScoreZWeight float64   `toml:"score_z_weight"`
	ScoreBias    float64   `toml:"score_bias"`
	ScoreFloor   float64   `toml:"score_floor"`
}

// Maintenance contains retention sweep settings.
type Maintenance struct {
	AutoCleanupOnStart bool          `toml:"auto_cleanup_on_start"`
	RetentionDays      RetentionDays `toml:"retention_days"`
}

// RetentionDays holds per-directory retention in days; 0 disables a sweep.
type RetentionDays struct {
	Downloads int `toml:"downloads"`
	Blurred   int `toml:"blurred"`
	Merged    int `toml:"merged"`
}

// Notifications contains Telegram notification settings.
type Notifications struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the pipeline.
//
// Sections by subsystem:
//   - Paths: working directories and bookkeeping files
//   - Browser: profiles, CDP endpoint, shadow profile base
//   - Encoder: ffmpeg settings and blur zone presets
//   - Merge: concat grouping
//   - Upload: channels and publish scheduling
//   - Workers: external worker script locations
//   - Autogen / Download: per-stage worker inputs
//   - Detect: watermark template matching parameters
//   - Maintenance: retention sweeps
//   - Notifications: Telegram delivery
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Browser       Browser       `toml:"browser"`
	Encoder       Encoder       `toml:"encoder"`
	Merge         Merge         `toml:"merge"`
	Upload        Upload        `toml:"upload"`
	Workers       Workers       `toml:"workers"`
	Autogen       Autogen       `toml:"autogen"`
	Download      Download      `toml:"download"`
	Detect        Detect        `toml:"detect"`
	Maintenance   Maintenance   `toml:"maintenance"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sorapipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has every path field expanded to its absolute form and every ranged
// integer clamped, so consumers never handle absent or out-of-range keys.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Save persists the document atomically (write temp, then rename).
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return fileutil.AtomicWriteFile(path, data, 0o644)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sorapipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the working directories a pipeline run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.ProjectRoot,
		c.Paths.DownloadsDir,
		c.Paths.BlurredDir,
		c.Paths.MergedDir,
		c.Paths.StateDir,
	} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ActiveProfile returns the configured active browser profile, or nil when
// active_profile is empty.
func (c *Config) ActiveProfile() *BrowserProfile {
	name := strings.TrimSpace(c.Browser.ActiveProfile)
	if name == "" {
		return nil
	}
	for i := range c.Browser.Profiles {
		if c.Browser.Profiles[i].Name == name {
			return &c.Browser.Profiles[i]
		}
	}
	return nil
}

// ActivePresetZones returns the zone list of the active encoder preset.
func (c *Config) ActivePresetZones() []Zone {
	preset, ok := c.Encoder.Presets[strings.TrimSpace(c.Encoder.ActivePreset)]
	if !ok {
		return nil
	}
	return preset.Zones
}

// ActiveChannel returns the configured upload channel, or nil when
// active_channel is empty.
func (c *Config) ActiveChannel() *UploadChannel {
	name := strings.TrimSpace(c.Upload.ActiveChannel)
	if name == "" {
		return nil
	}
	for i := range c.Upload.Channels {
		if c.Upload.Channels[i].Name == name {
			return &c.Upload.Channels[i]
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// TitlesCursorFile returns the cursor file kept next to the titles file.
func (c *Config) TitlesCursorFile() string {
	base := strings.TrimSuffix(c.Paths.TitlesFile, filepath.Ext(c.Paths.TitlesFile))
	if base == "" {
		return ""
	}
	return base + ".cursor"
}

// LockFile returns the scenario lock path inside the state directory.
func (c *Config) LockFile() string {
	return filepath.Join(c.Paths.StateDir, "sorapipe.lock")
}

// RunDBPath returns the sqlite run store path inside the state directory.
func (c *Config) RunDBPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// expandPath resolves ~, environment placeholders, and relative segments to
// an absolute, cleaned path.
func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	pathValue = os.ExpandEnv(pathValue)
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
