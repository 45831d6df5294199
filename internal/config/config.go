// Package config loads taskfeed settings from taskfeed.toml, TASKFEED_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileName is the config file's base name without extension.
const FileName = "taskfeed"

// EnvPrefix prefixes environment overrides, e.g. TASKFEED_SERVER_PORT.
const EnvPrefix = "TASKFEED"

// Config is the full taskfeed configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures `taskfeed serve`.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	DBPath   string `mapstructure:"db_path"`
	PageSize int    `mapstructure:"page_size"`
}

// ClientConfig configures the commands that talk to a server.
type ClientConfig struct {
	URL            string        `mapstructure:"url"`
	UserID         int64         `mapstructure:"user_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxFollowUps   int           `mapstructure:"max_follow_ups"`
}

// LogConfig configures log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// defaults are registered on every loader. Durations are strings so the
// default file stays readable.
var defaults = map[string]any{
	"server.port":      8080,
	"server.db_path":   filepath.Join(".taskfeed", "taskfeed.db"),
	"server.page_size": 200,

	"client.url":             "http://localhost:8080",
	"client.user_id":         0,
	"client.poll_interval":   "2s",
	"client.request_timeout": "10s",
	"client.max_follow_ups":  10,

	"log.file":         "",
	"log.max_size_mb":  50,
	"log.max_backups":  3,
	"log.max_age_days": 28,
	"log.compress":     false,
}

// Loader reads configuration through viper.
type Loader struct {
	v     *viper.Viper
	found bool
}

// NewLoader creates a loader. If configFile is empty, taskfeed.toml is
// searched for in the working directory and $HOME/.taskfeed.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taskfeed"))
		}
	}
	return &Loader{v: v}
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFileUsed returns the file that was read, or "".
func (l *Loader) ConfigFileUsed() string {
	if !l.found {
		return ""
	}
	return l.v.ConfigFileUsed()
}

// Load reads the config file, if any, and decodes the merged settings.
// A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		l.found = true
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls fn with the re-decoded config whenever the config file
// changes. Invalid edits are reported through onError and otherwise
// ignored. Load must have found a file first.
func (l *Loader) Watch(fn func(*Config), onError func(error)) error {
	if !l.found {
		return errors.New("no config file to watch")
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload of %s failed: %w", e.Name, err))
			}
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
	return nil
}

// Settings returns every effective key and value.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got %d)", c.Server.Port)
	}
	if c.Server.PageSize < 1 || c.Server.PageSize > 1000 {
		return fmt.Errorf("server.page_size must be between 1 and 1000 (got %d)", c.Server.PageSize)
	}
	if c.Client.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("client.poll_interval must be at least 100ms (got %s)", c.Client.PollInterval)
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client.request_timeout must be positive (got %s)", c.Client.RequestTimeout)
	}
	if c.Client.MaxFollowUps < 0 {
		return fmt.Errorf("client.max_follow_ups must not be negative (got %d)", c.Client.MaxFollowUps)
	}
	return nil
}

// WriteDefault writes a config file holding the defaults. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "# taskfeed configuration"); err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(nestedDefaults()); err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	return f.Close()
}

// nestedDefaults turns the dotted default keys into TOML tables.
func nestedDefaults() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for key, value := range defaults {
		section, name, _ := strings.Cut(key, ".")
		if out[section] == nil {
			out[section] = make(map[string]any)
		}
		out[section][name] = value
	}
	return out
}
