package platform

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/aretw0/todosync/pkg/adapters/staging"
	"github.com/aretw0/todosync/pkg/core"
)

// ConfigVersion is the only configuration format version understood.
const ConfigVersion = "1.0"

// EnvPrefix prefixes environment overrides, e.g. TODOSYNC_TODOFILE.
const EnvPrefix = "TODOSYNC"

// DefaultFetchTimeout bounds one backend FetchAll.
const DefaultFetchTimeout = 30 * time.Second

// Config is the decoded configuration file.
type Config struct {
	Version          string         `mapstructure:"version"`
	TodoFile         string         `mapstructure:"todofile"`
	DoneFile         string         `mapstructure:"donefile"`
	PostDir          string         `mapstructure:"postdir"`
	PostMask         string         `mapstructure:"postmask"`
	Tick             time.Duration  `mapstructure:"tick"`
	Staleness        time.Duration  `mapstructure:"staleness"`
	FetchTimeout     time.Duration  `mapstructure:"fetch_timeout"`
	Strip            []string       `mapstructure:"strip"`
	PropagateDeletes bool           `mapstructure:"propagate_deletes"`
	Sources          []SourceConfig `mapstructure:"sources"`
	Log              LogConfig      `mapstructure:"log"`
	Status           StatusConfig   `mapstructure:"status"`

	// File is the path the configuration was read from.
	File string `mapstructure:"-"`
}

// SourceConfig declares one backend.
type SourceConfig struct {
	ID      string         `mapstructure:"id"`
	Type    string         `mapstructure:"type"`
	Default bool           `mapstructure:"default"`
	Options map[string]any `mapstructure:"options"`
}

// LogConfig enables an optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StatusConfig configures the status endpoint. Empty Addr disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig reads path (JSON or YAML by extension), applies defaults and
// TODOSYNC_* environment overrides, and validates the result. Relative
// file paths are resolved against the directory of the configuration file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, key := range []string{"todofile", "donefile", "postdir", "status.addr", "log.file"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.File = abs
	cfg.resolvePaths(filepath.Dir(abs))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postmask", staging.DefaultMask)
	v.SetDefault("tick", core.DefaultTick)
	v.SetDefault("staleness", core.DefaultStaleness)
	v.SetDefault("fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("strip", []string{})
	v.SetDefault("propagate_deletes", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.TodoFile, &c.DoneFile, &c.PostDir, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	// A JSON number 1.0 decodes as "1".
	if v := c.Version; v != ConfigVersion && v+".0" != ConfigVersion {
		errs = append(errs, fmt.Errorf("version must be %s, got %q", ConfigVersion, v))
	}
	if c.TodoFile == "" {
		errs = append(errs, errors.New("todofile is required"))
	}
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %s", c.Tick))
	}

	seen := make(map[string]bool)
	defaults := 0
	for i, s := range c.Sources {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("sources[%d]: id is required", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("sources[%d]: %w: %s", i, core.ErrDuplicateBackend, s.ID))
		}
		seen[s.ID] = true

		if _, err := ParseBackendType(s.Type); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
		}
		if s.Default {
			defaults++
		}
	}
	if defaults > 1 {
		errs = append(errs, errors.New("only one source can be the default"))
	}
	for _, k := range c.Strip {
		if core.Reserved(k) {
			errs = append(errs, fmt.Errorf("strip: %w: %s", core.ErrReservedKey, k))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
