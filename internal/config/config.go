// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Vision  VisionConfig  `mapstructure:"vision" yaml:"vision"`
	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the driven browser instance.
type BrowserConfig struct {
	Headless bool           `mapstructure:"headless" yaml:"headless"`
	Debug    bool           `mapstructure:"debug" yaml:"debug"`
	Args     []string       `mapstructure:"args" yaml:"args"`
	Viewport map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// NestedFrames enables searching the course content iframe in addition
	// to the top-level document.
	NestedFrames  bool   `mapstructure:"nested_frames" yaml:"nested_frames"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// NetworkConfig tunes page-load waiting behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// VisionProvider identifies a supported vision backend.
type VisionProvider string

const (
	ProviderGemini VisionProvider = "gemini"
	ProviderOllama VisionProvider = "ollama"
)

// VisionConfig defines the configuration for the vision query gateway.
type VisionConfig struct {
	Provider    VisionProvider `mapstructure:"provider" yaml:"provider"`
	Model       string         `mapstructure:"model" yaml:"model"`
	APIKey      string         `mapstructure:"api_key" yaml:"-"`
	Endpoint    string         `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration  `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32        `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int            `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// RunConfig holds settings populated from CLI flags for a single automation run.
type RunConfig struct {
	StartURL       string
	MaxIterations  int
	AutoLogin      bool
	IterationDelay time.Duration
}

// SetDefaults initializes default values for the configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "coursepilot")
	v.SetDefault("logger.log_file", "coursepilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.nested_frames", true)
	v.SetDefault("browser.screenshot_dir", "screenshots")
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- Vision --
	v.SetDefault("vision.provider", "gemini")
	v.SetDefault("vision.model", "gemini-2.5-flash")
	v.SetDefault("vision.endpoint", "")
	v.SetDefault("vision.api_timeout", "2m")
	v.SetDefault("vision.temperature", 0.2)
	v.SetDefault("vision.max_tokens", 1024)
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with static defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("vision.api_key", "COURSEPILOT_VISION_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually pick up the key if Unmarshal didn't.
	if cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if dir, err := homedir.Expand(cfg.Browser.ScreenshotDir); err == nil {
		cfg.Browser.ScreenshotDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Vision.Provider {
	case ProviderGemini:
		if c.Vision.APIKey == "" {
			return fmt.Errorf("vision.api_key is required for the gemini provider (set GEMINI_API_KEY)")
		}
	case ProviderOllama:
		if c.Vision.Endpoint == "" {
			c.Vision.Endpoint = "http://localhost:11434"
		}
	default:
		return fmt.Errorf("unknown vision provider: %q (supported: %s, %s)",
			c.Vision.Provider, ProviderGemini, ProviderOllama)
	}
	if c.Vision.Model == "" {
		return fmt.Errorf("vision.model must not be empty")
	}
	if c.Vision.APITimeout <= 0 {
		return fmt.Errorf("vision.api_timeout must be a positive duration")
	}
	if c.Network.PostLoadWait < 0 {
		return fmt.Errorf("network.post_load_wait must not be negative")
	}
	return nil
}

// Validate checks the per-run settings populated from CLI flags.
func (r *RunConfig) Validate() error {
	if r.StartURL == "" {
		return fmt.Errorf("a starting URL is required")
	}
	if r.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be greater than 0")
	}
	return nil
}
