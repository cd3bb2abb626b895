// Package config provides configuration management for charoster using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the CHAROSTER_ prefix, and validation. It locates the work folder that
// holds packs, the temp folder for derived images, per-theme size ratios,
// per-type render widths, and the settings of the development server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/charoster/internal/errors"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "CHAROSTER"

// DefaultTheme names the design used when a request does not pick one
const DefaultTheme = "default"

// DefaultSizeRatios are the width/height ratios of the built-in sizes
var DefaultSizeRatios = map[string]float64{
	"square":    1,
	"portrait":  0.75,
	"landscape": 1.7778,
	"banner":    4,
}

type Config struct {
	WorkFolderPath string                  `mapstructure:"work_folder" yaml:"work_folder"`
	TempFolderPath string                  `mapstructure:"temp_path" yaml:"temp_path"`
	Log            LogConfig               `mapstructure:"log" yaml:"log"`
	Server         ServerConfig            `mapstructure:"server" yaml:"server"`
	Watch          WatchConfig             `mapstructure:"watch" yaml:"watch"`
	Render         RenderConfig            `mapstructure:"render" yaml:"render"`
	Designs        map[string]DesignConfig `mapstructure:"designs" yaml:"designs"`

	settings map[string]interface{}
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type RenderConfig struct {
	// MaxWidth caps the output width of derived images per entity type
	MaxWidth map[string]int `mapstructure:"max_width" yaml:"max_width"`
}

type DesignConfig struct {
	Sizes map[string]float64 `mapstructure:"sizes" yaml:"sizes"`
}

// Default returns a configuration holding only default values
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration currently held by viper
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid,
			"failed to decode configuration")
	}

	// Handle debounce set via viper as a plain number of milliseconds
	if viper.IsSet("watch.debounce") && config.Watch.Debounce > 0 && config.Watch.Debounce < time.Millisecond {
		config.Watch.Debounce = time.Duration(viper.GetInt64("watch.debounce")) * time.Millisecond
	}

	applyDefaults(&config)
	config.settings = viper.AllSettings()

	if err := validateConfig(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid,
			"invalid configuration")
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.TempFolderPath == "" {
		config.TempFolderPath = filepath.Join(os.TempDir(), "charoster")
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8180
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 300 * time.Millisecond
	}
	if config.Render.MaxWidth == nil {
		config.Render.MaxWidth = make(map[string]int)
	}
	if config.Designs == nil {
		config.Designs = make(map[string]DesignConfig)
	}
	if config.WorkFolderPath != "" {
		config.WorkFolderPath = filepath.Clean(config.WorkFolderPath)
	}
}

// WorkFolder returns the folder holding packs/<packId>/..., empty when unset
func (c *Config) WorkFolder() string {
	return c.WorkFolderPath
}

// TempPath returns the folder for derived image files
func (c *Config) TempPath() string {
	return c.TempFolderPath
}

// Get returns a raw value by dotted key, nil when absent
func (c *Config) Get(key string) interface{} {
	if c.settings == nil {
		return nil
	}
	var current interface{} = c.settings
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// Set overrides a raw value by dotted key
func (c *Config) Set(key string, value interface{}) {
	if c.settings == nil {
		c.settings = make(map[string]interface{})
	}
	parts := strings.Split(strings.ToLower(key), ".")
	m := c.settings
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// SizeRatio returns the width/height ratio of a size in a theme. Themes fall
// back to the default design, then to the built-in ratios, then to 1.
func (c *Config) SizeRatio(theme, size string) float64 {
	if design, ok := c.Designs[theme]; ok {
		if ratio := design.Sizes[size]; ratio > 0 {
			return ratio
		}
	}
	if design, ok := c.Designs[DefaultTheme]; ok {
		if ratio := design.Sizes[size]; ratio > 0 {
			return ratio
		}
	}
	if ratio, ok := DefaultSizeRatios[size]; ok {
		return ratio
	}
	return 1
}

// MaxRenderWidth returns the maximum output width for an entity type, 0 for none
func (c *Config) MaxRenderWidth(entityType string) int {
	return c.Render.MaxWidth[entityType]
}

// RequireWorkFolder returns a configuration error when no work folder is set
func (c *Config) RequireWorkFolder() error {
	if c.WorkFolderPath == "" {
		return errors.ErrMissingWorkFolder()
	}
	return nil
}

// PacksFolder returns <work>/packs
func (c *Config) PacksFolder() string {
	if c.WorkFolderPath == "" {
		return ""
	}
	return filepath.Join(c.WorkFolderPath, "packs")
}

// Address returns host:port of the development server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
