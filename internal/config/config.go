// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// HubConfig locates the remote automation hub and shapes the HTTP
// traffic sent to it.
type HubConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// RequestTimeout bounds a single HTTP exchange at the transport
	// level. The driver's command timeout is enforced separately.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// RequestsPerSecond throttles outbound hub traffic; zero disables
	// the limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// BaseURL renders the hub endpoint the wire client talks to.
func (h HubConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", h.Host, h.Port)
}

// DriverConfig holds the timing policy for remote commands and waits.
type DriverConfig struct {
	// CommandTimeout is the default deadline applied to every remote
	// action.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// WaitTotal is the default overall bound for WaitUntil.
	WaitTotal time.Duration `mapstructure:"wait_total" yaml:"wait_total"`
	// PollInterval is the default spacing between condition checks.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// ScreenshotDir is where the visit command persists captures.
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Hub    HubConfig    `mapstructure:"hub" yaml:"hub"`
	Driver DriverConfig `mapstructure:"driver" yaml:"driver"`
}

// NewDefaultConfig creates a configuration populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration keys.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gridpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Hub --
	v.SetDefault("hub.host", "localhost")
	v.SetDefault("hub.port", 4444)
	v.SetDefault("hub.request_timeout", "90s")
	v.SetDefault("hub.requests_per_second", 0.0)

	// -- Driver --
	v.SetDefault("driver.command_timeout", "30s")
	v.SetDefault("driver.wait_total", "30s")
	v.SetDefault("driver.poll_interval", "500ms")
	v.SetDefault("driver.screenshot_dir", ".")
}

// NewConfigFromViper creates a configuration instance from a viper
// object and validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Hub.Host == "" {
		return fmt.Errorf("hub.host is a required configuration field")
	}
	if c.Hub.Port <= 0 || c.Hub.Port > 65535 {
		return fmt.Errorf("hub.port must be in (0, 65535], got %d", c.Hub.Port)
	}
	if c.Driver.CommandTimeout <= 0 {
		return fmt.Errorf("driver.command_timeout must be positive")
	}
	if c.Driver.WaitTotal <= 0 {
		return fmt.Errorf("driver.wait_total must be positive")
	}
	if c.Driver.PollInterval <= 0 {
		return fmt.Errorf("driver.poll_interval must be positive")
	}
	return nil
}
