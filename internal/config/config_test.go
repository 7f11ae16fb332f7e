// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "coursepilot", cfg.Logger.ServiceName)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.NestedFrames)
	assert.Equal(t, 1920, cfg.Browser.Viewport["width"])
	assert.Equal(t, 1080, cfg.Browser.Viewport["height"])
	assert.Equal(t, 30*time.Second, cfg.Network.NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Network.PostLoadWait)
	assert.Equal(t, ProviderGemini, cfg.Vision.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Vision.Model)
	assert.Equal(t, 2*time.Minute, cfg.Vision.APITimeout)
}

func TestNewConfigFromViper_APIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key-from-env")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)

	require.NoError(t, err)
	assert.Equal(t, "test-key-from-env", cfg.Vision.APIKey)
}

func TestNewConfigFromViper_PrefixedEnvWins(t *testing.T) {
	t.Setenv("COURSEPILOT_VISION_API_KEY", "prefixed-key")
	t.Setenv("GEMINI_API_KEY", "plain-key")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)

	require.NoError(t, err)
	assert.Equal(t, "prefixed-key", cfg.Vision.APIKey)
}

func TestNewConfigFromViper_GeminiWithoutKeyFails(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("COURSEPILOT_VISION_API_KEY", "")

	v := viper.New()
	SetDefaults(v)

	_, err := NewConfigFromViper(v)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestNewConfigFromViper_ExpandsScreenshotDir(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")

	v := viper.New()
	SetDefaults(v)
	v.Set("browser.screenshot_dir", "~/captures")

	cfg, err := NewConfigFromViper(v)

	require.NoError(t, err)
	assert.NotContains(t, cfg.Browser.ScreenshotDir, "~")
}

func TestValidate_OllamaDefaultsEndpoint(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vision.Provider = ProviderOllama
	cfg.Vision.Endpoint = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434", cfg.Vision.Endpoint)
}

func TestValidate_OllamaNeedsNoAPIKey(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vision.Provider = ProviderOllama
	cfg.Vision.APIKey = ""

	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vision.Provider = "watson"
	cfg.Vision.APIKey = "k"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "watson")
}

func TestValidate_EmptyModel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vision.APIKey = "k"
	cfg.Vision.Model = ""

	assert.Error(t, cfg.Validate())
}

func TestValidate_NonPositiveTimeout(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vision.APIKey = "k"
	cfg.Vision.APITimeout = 0

	assert.Error(t, cfg.Validate())
}

func TestRunConfigValidate(t *testing.T) {
	valid := RunConfig{StartURL: "https://jkodirect.jten.mil", MaxIterations: 100}
	assert.NoError(t, valid.Validate())

	missingURL := RunConfig{MaxIterations: 100}
	assert.Error(t, missingURL.Validate())

	zeroIterations := RunConfig{StartURL: "https://example.com"}
	assert.Error(t, zeroIterations.Validate())
}
