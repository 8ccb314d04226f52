package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDir = "dupehound"

// Paths are the per-user directories, resolved once at startup.
// An empty field means the directory is unavailable.
type Paths struct {
	CacheDir  string
	ConfigDir string
}

// ResolvePaths honours DUPEHOUND_CACHE_PATH and DUPEHOUND_CONFIG_PATH, then
// falls back to the OS user directories. The returned warnings describe
// directories that could not be determined.
func ResolvePaths() (Paths, []string) {
	var (
		p        Paths
		warnings []string
	)
	p.CacheDir, warnings = resolve(EnvPrefix+"_CACHE_PATH", os.UserCacheDir, "cache", warnings)
	p.ConfigDir, warnings = resolve(EnvPrefix+"_CONFIG_PATH", os.UserConfigDir, "config", warnings)
	return p, warnings
}

func resolve(env string, base func() (string, error), what string, warnings []string) (string, []string) {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Clean(dir), warnings
	}
	dir, err := base()
	if err != nil {
		return "", append(warnings, fmt.Sprintf("cannot determine %s directory: %v", what, err))
	}
	return filepath.Join(dir, appDir), warnings
}

// ConfigFile is the default config file path, empty without a config dir.
func (p Paths) ConfigFile() string {
	if p.ConfigDir == "" {
		return ""
	}
	return filepath.Join(p.ConfigDir, FileName)
}
