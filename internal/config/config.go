// Package config loads scan settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ivoronin/dupehound/internal/actions"
	"github.com/ivoronin/dupehound/internal/hasher"
	"github.com/ivoronin/dupehound/internal/types"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DUPEHOUND"

// FileName is the config file looked up in the config directory.
const FileName = "dupehound.yaml"

// ErrExists is returned by Save when the file is already present.
var ErrExists = errors.New("config file already exists")

// Config is the user-facing settings surface. Sizes are human-readable
// strings ("10M", "4KiB").
type Config struct {
	Workers            int      `mapstructure:"workers" yaml:"workers"`
	Recursive          bool     `mapstructure:"recursive" yaml:"recursive"`
	MinSize            string   `mapstructure:"min_size" yaml:"min_size"`
	MaxSize            string   `mapstructure:"max_size" yaml:"max_size"` // "0" means unbounded
	ExcludedDirs       []string `mapstructure:"excluded_dirs" yaml:"excluded_dirs"`
	ReferenceDirs      []string `mapstructure:"reference_dirs" yaml:"reference_dirs"`
	ExcludedItems      []string `mapstructure:"excluded_items" yaml:"excluded_items"`
	AllowedExtensions  []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
	ExcludedExtensions []string `mapstructure:"excluded_extensions" yaml:"excluded_extensions"`
	OneFilesystem      bool     `mapstructure:"one_filesystem" yaml:"one_filesystem"`
	FollowSymlinks     bool     `mapstructure:"follow_symlinks" yaml:"follow_symlinks"`

	Method             string `mapstructure:"method" yaml:"method"`
	HashType           string `mapstructure:"hash_type" yaml:"hash_type"`
	DeleteMethod       string `mapstructure:"delete_method" yaml:"delete_method"`
	DryRun             bool   `mapstructure:"dry_run" yaml:"dry_run"`
	CaseSensitiveNames bool   `mapstructure:"case_sensitive_names" yaml:"case_sensitive_names"`
	IgnoreHardLinks    bool   `mapstructure:"ignore_hard_links" yaml:"ignore_hard_links"`

	UseCache                bool   `mapstructure:"use_cache" yaml:"use_cache"`
	UsePrehashCache         bool   `mapstructure:"use_prehash_cache" yaml:"use_prehash_cache"`
	SaveJSONCache           bool   `mapstructure:"save_json_cache" yaml:"save_json_cache"`
	DeleteOutdatedCache     bool   `mapstructure:"delete_outdated_cache" yaml:"delete_outdated_cache"`
	PrehashSize             string `mapstructure:"prehash_size" yaml:"prehash_size"`
	MinCacheFileSize        string `mapstructure:"min_cache_file_size" yaml:"min_cache_file_size"`
	MinPrehashCacheFileSize string `mapstructure:"min_prehash_cache_file_size" yaml:"min_prehash_cache_file_size"`

	Progress  bool   `mapstructure:"progress" yaml:"progress"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Settings holds the parsed forms of the string-typed fields.
type Settings struct {
	MinSize                 int64
	MaxSize                 int64
	PrehashSize             int64
	MinCacheFileSize        int64
	MinPrehashCacheFileSize int64
	Method                  types.CheckingMethod
	HashType                hasher.Type
	DeleteMethod            actions.DeleteMethod
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers", DefaultWorkers())
	v.SetDefault("recursive", true)
	v.SetDefault("min_size", "1")
	v.SetDefault("max_size", "0")
	v.SetDefault("excluded_dirs", []string{})
	v.SetDefault("reference_dirs", []string{})
	v.SetDefault("excluded_items", []string{})
	v.SetDefault("allowed_extensions", []string{})
	v.SetDefault("excluded_extensions", []string{})
	v.SetDefault("one_filesystem", false)
	v.SetDefault("follow_symlinks", false)

	v.SetDefault("method", types.MethodHash.String())
	v.SetDefault("hash_type", hasher.XXH64.String())
	v.SetDefault("delete_method", actions.None.String())
	v.SetDefault("dry_run", false)
	v.SetDefault("case_sensitive_names", false)
	v.SetDefault("ignore_hard_links", false)

	v.SetDefault("use_cache", true)
	v.SetDefault("use_prehash_cache", true)
	v.SetDefault("save_json_cache", false)
	v.SetDefault("delete_outdated_cache", false)
	v.SetDefault("prehash_size", "4KiB")
	v.SetDefault("min_cache_file_size", "256KiB")
	v.SetDefault("min_prehash_cache_file_size", "0")

	v.SetDefault("progress", true)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
}

// DefaultWorkers is the number of logical CPUs.
func DefaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Default returns the built-in settings.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load merges defaults, the config file, DUPEHOUND_* variables and changed
// flags. file overrides the lookup of FileName in configDir; a missing file
// in configDir is not an error. Flags are matched to keys by replacing "-"
// with "_".
func Load(file, configDir string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	switch {
	case file != "":
		v.SetConfigFile(file)
	case configDir != "":
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if file != "" || configDir != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if file != "" || !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	known := make(map[string]struct{})
	for _, k := range v.AllKeys() {
		known[k] = struct{}{}
	}
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, ok := known[key]; !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

// Settings parses the string-typed fields.
func (c *Config) Settings() (Settings, error) {
	var (
		s   Settings
		err error
	)
	sizes := []struct {
		name string
		in   string
		out  *int64
	}{
		{"min_size", c.MinSize, &s.MinSize},
		{"max_size", c.MaxSize, &s.MaxSize},
		{"prehash_size", c.PrehashSize, &s.PrehashSize},
		{"min_cache_file_size", c.MinCacheFileSize, &s.MinCacheFileSize},
		{"min_prehash_cache_file_size", c.MinPrehashCacheFileSize, &s.MinPrehashCacheFileSize},
	}
	for _, sz := range sizes {
		if *sz.out, err = ParseSize(sz.in); err != nil {
			return s, fmt.Errorf("invalid %s: %w", sz.name, err)
		}
	}
	if s.Method, err = types.ParseCheckingMethod(c.Method); err != nil {
		return s, err
	}
	if s.HashType, err = hasher.ParseType(c.HashType); err != nil {
		return s, err
	}
	if s.DeleteMethod, err = actions.ParseDeleteMethod(c.DeleteMethod); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks that every value parses and lies in range.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	s, err := c.Settings()
	if err != nil {
		return err
	}
	if s.MaxSize > 0 && s.MaxSize < s.MinSize {
		return fmt.Errorf("max_size %s is below min_size %s", c.MaxSize, c.MinSize)
	}
	if s.PrehashSize <= 0 {
		return fmt.Errorf("prehash_size must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q (want console or json)", c.LogFormat)
	}
	return nil
}

// ParseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func ParseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// Save writes cfg as YAML to path, creating its directory. An existing file
// is replaced only when overwrite is set.
func Save(cfg *Config, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
