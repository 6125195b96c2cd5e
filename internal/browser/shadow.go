// Package browser prepares disposable shadow copies of browser profiles and
// probes the DevTools endpoint the download worker attaches to.
package browser

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"sorapipe/internal/config"
	"sorapipe/internal/fileutil"
	"sorapipe/internal/logging"
	"sorapipe/internal/services"
)

// Cache-like subtrees that must never be mirrored into a shadow profile.
var excludedDirs = map[string]struct{}{
	"Cache":                   {},
	"Code Cache":              {},
	"GPUCache":                {},
	"Service Worker":          {},
	"CertificateTransparency": {},
	"Crashpad":                {},
	"ShaderCache":             {},
	"GrShaderCache":           {},
	"OptimizationGuide":       {},
	"SafetyTips":              {},
	"Reporting and NEL":       {},
	"File System":             {},
	"Session Storage":         {},
}

// Singleton locks and transient network state tied to the live profile.
var excludedFiles = map[string]struct{}{
	"LOCK":                     {},
	"LOCKFILE":                 {},
	"SingletonLock":            {},
	"SingletonCookie":          {},
	"SingletonSocket":          {},
	"Network Persistent State": {},
}

// SyncResult reports what one shadow refresh did.
type SyncResult struct {
	ShadowUserDataDir string
	Copied            int
	Skipped           int
	Errors            int
}

// Shadow mirrors a live browser profile into a disposable directory so the
// automation browser never contends with the user's running instance.
type Shadow struct {
	base   string
	logger *slog.Logger
}

// NewShadow creates a shadow manager rooted at base.
func NewShadow(base string, logger *slog.Logger) *Shadow {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Shadow{base: base, logger: logging.NewComponentLogger(logger, "browser")}
}

// Sync refreshes the shadow copy for the given profile and returns the shadow
// user-data directory to launch the browser with. Per-entry I/O errors are
// logged and skipped; only a missing source profile is fatal.
func (s *Shadow) Sync(profile config.BrowserProfile) (SyncResult, error) {
	result := SyncResult{}

	srcRoot := filepath.Join(profile.UserDataDir, profile.ProfileDirectory)
	if _, err := os.Stat(srcRoot); err != nil {
		return result, services.Wrap(services.ErrNotFound, "browser", "shadow sync", srcRoot, err)
	}

	shadowUserData := filepath.Join(s.base, fileutil.SanitizeName(profile.Name))
	dstRoot := filepath.Join(shadowUserData, profile.ProfileDirectory)
	if err := os.MkdirAll(dstRoot, 0o755); err != nil {
		return result, services.Wrap(services.ErrTransient, "browser", "shadow sync", "create shadow root", err)
	}
	result.ShadowUserDataDir = shadowUserData

	// Top-level user-data files (Local State etc.) come along too.
	s.copyLevel(profile.UserDataDir, shadowUserData, false, &result)

	walkErr := filepath.WalkDir(srcRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			result.Errors++
			s.logger.Warn("shadow walk error", logging.String("path", path), logging.Error(err))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == srcRoot {
			return nil
		}
		name := entry.Name()
		if entry.IsDir() {
			if _, excluded := excludedDirs[name]; excluded {
				return fs.SkipDir
			}
			rel, relErr := filepath.Rel(srcRoot, path)
			if relErr != nil {
				result.Errors++
				return fs.SkipDir
			}
			if err := os.MkdirAll(filepath.Join(dstRoot, rel), 0o755); err != nil {
				result.Errors++
				s.logger.Warn("shadow mkdir failed", logging.String("path", path), logging.Error(err))
				return fs.SkipDir
			}
			return nil
		}
		if _, excluded := excludedFiles[name]; excluded {
			return nil
		}
		rel, relErr := filepath.Rel(srcRoot, path)
		if relErr != nil {
			result.Errors++
			return nil
		}
		s.copyEntry(path, filepath.Join(dstRoot, rel), &result)
		return nil
	})
	if walkErr != nil {
		result.Errors++
		s.logger.Warn("shadow walk aborted", logging.Error(walkErr))
	}

	s.logger.Info("shadow profile refreshed",
		logging.String("profile", profile.Name),
		logging.Int("copied", result.Copied),
		logging.Int("skipped", result.Skipped),
		logging.Int("errors", result.Errors))
	return result, nil
}

// copyLevel copies the immediate regular files of src into dst, without
// descending. Used for the user-data root beside the profile directory.
func (s *Shadow) copyLevel(src, dst string, includeExcluded bool, result *SyncResult) {
	entries, err := os.ReadDir(src)
	if err != nil {
		result.Errors++
		s.logger.Warn("shadow read dir failed", logging.String("path", src), logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !includeExcluded {
			if _, excluded := excludedFiles[entry.Name()]; excluded {
				continue
			}
		}
		s.copyEntry(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name()), result)
	}
}

func (s *Shadow) copyEntry(src, dst string, result *SyncResult) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		result.Errors++
		s.logger.Warn("shadow stat failed", logging.String("path", src), logging.Error(err))
		return
	}
	if upToDate(srcInfo, dst) {
		result.Skipped++
		return
	}
	if err := fileutil.CopyFilePreserve(src, dst); err != nil {
		result.Errors++
		s.logger.Warn("shadow copy failed", logging.String("path", src), logging.Error(err))
		return
	}
	result.Copied++
}

// upToDate reports whether dst already matches src by size and
// second-truncated mtime.
func upToDate(srcInfo fs.FileInfo, dst string) bool {
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return false
	}
	if srcInfo.Size() != dstInfo.Size() {
		return false
	}
	return srcInfo.ModTime().Unix() == dstInfo.ModTime().Unix()
}
