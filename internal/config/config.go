// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Site   SiteConfig   `mapstructure:"site" yaml:"site"`
	Walker WalkerConfig `mapstructure:"walker" yaml:"walker"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output, rotated by lumberjack. Empty disables it.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// SiteConfig describes the site being built.
type SiteConfig struct {
	// Root is the directory root-relative references resolve against.
	Root string `mapstructure:"root" yaml:"root"`
	// Out is the output directory for generated files.
	Out string `mapstructure:"out" yaml:"out"`
	// Entries are the entry-point documents, relative to Root.
	Entries []string `mapstructure:"entries" yaml:"entries"`
	// MediaTypes adds or overrides extension -> media type mappings.
	MediaTypes map[string]string `mapstructure:"media_types" yaml:"media_types"`
}

// WalkerConfig tunes content traversal.
type WalkerConfig struct {
	// CyclePolicy is one of "prune", "fail", "allow".
	CyclePolicy string `mapstructure:"cycle_policy" yaml:"cycle_policy"`
	// FollowRemote fetches http(s) references instead of skipping them.
	FollowRemote bool `mapstructure:"follow_remote" yaml:"follow_remote"`
	// IgnoreNotFound lets missing resources end a branch quietly.
	IgnoreNotFound bool `mapstructure:"ignore_not_found" yaml:"ignore_not_found"`
	// RemoteRPS rate-limits remote fetches. 0 means unlimited.
	RemoteRPS float64 `mapstructure:"remote_rps" yaml:"remote_rps"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	// Debounce is how long to coalesce bursts of file events before
	// triggering a rebuild.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// SetDefaults fills zero values with sensible defaults.
func (c *Config) SetDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Logger.ServiceName == "" {
		c.Logger.ServiceName = "jen"
	}
	if c.Site.Root == "" {
		c.Site.Root = "."
	}
	if c.Site.Out == "" {
		c.Site.Out = "_site"
	}
	if c.Walker.CyclePolicy == "" {
		c.Walker.CyclePolicy = "prune"
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 150 * time.Millisecond
	}
}

// Validate rejects configurations the build cannot run with.
func (c *Config) Validate() error {
	switch c.Walker.CyclePolicy {
	case "prune", "fail", "allow":
	default:
		return fmt.Errorf("invalid walker.cycle_policy %q (want prune, fail, or allow)", c.Walker.CyclePolicy)
	}
	if c.Site.Out == "" {
		return fmt.Errorf("site.out must not be empty")
	}
	return nil
}

// Load reads configuration from cfgFile (or the default search path when
// empty), layered under JEN_* environment variables, and unmarshals it.
func Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".jen"))
		}
		viper.SetConfigName("jen")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("JEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars carry the day.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
