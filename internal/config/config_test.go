package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta", cfg.Gemini.BaseURL)
	assert.Equal(t, "rest", cfg.Gemini.Backend)
	assert.Equal(t, "30s", cfg.Gemini.Timeout)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, 512, cfg.Generation.MaxOutputTokens)
	assert.InDelta(t, 0.95, cfg.Generation.TopP, 1e-9)
	assert.Equal(t, 40, cfg.Generation.TopK)
	assert.Equal(t, "--sql:", cfg.Completion.Marker)
	assert.Equal(t, "~/.config/current/schema.yaml", cfg.Schema.Path)
	assert.False(t, cfg.Schema.AllowEmpty)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.NoError(t, validateConfig(cfg))
}

func TestLoadConfigFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	testConfig := map[string]interface{}{
		"gemini": map[string]interface{}{
			"model":   "gemini-1.5-pro",
			"timeout": "5s",
		},
		"generation": map[string]interface{}{
			"temperature": 0.2,
			"top_k":       10,
		},
		"schema": map[string]interface{}{
			"path": "/custom/schema.toml",
		},
	}

	data, err := json.MarshalIndent(testConfig, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, data, 0600))

	config := DefaultConfig()
	require.NoError(t, loadConfigFromFile(config, configPath))

	assert.Equal(t, "gemini-1.5-pro", config.Gemini.Model)
	assert.Equal(t, "5s", config.Gemini.Timeout)
	assert.InDelta(t, 0.2, config.Generation.Temperature, 1e-9)
	assert.Equal(t, 10, config.Generation.TopK)
	assert.Equal(t, "/custom/schema.toml", config.Schema.Path)
	// untouched fields keep their defaults
	assert.Equal(t, 512, config.Generation.MaxOutputTokens)
	assert.Equal(t, "--sql:", config.Completion.Marker)
}

func TestLoadConfigFromFileZeroValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(
		`{"generation": {"temperature": 0}, "schema": {"allow_empty": false}, "server": {"allow_origins": []}}`,
	), 0600))

	config := DefaultConfig()
	config.Schema.AllowEmpty = true

	require.NoError(t, loadConfigFromFile(config, configPath))

	assert.Zero(t, config.Generation.Temperature)
	assert.False(t, config.Schema.AllowEmpty)
	assert.Empty(t, config.Server.AllowOrigins)
	assert.Equal(t, 40, config.Generation.TopK)
	assert.NoError(t, validateConfig(config))
}

func TestLoadConfigZeroTemperature(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"generation":{"temperature":0}}`), 0600))
	t.Setenv("CURRENT_CONFIG", configPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.Generation.Temperature)
}

func TestLoadConfigFromFileInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0600))

	err := loadConfigFromFile(DefaultConfig(), configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnvironment(t *testing.T) {
	environ := map[string]string{
		"GEMINI_API_KEY":               "secret-key",
		"GEMINI_MODEL":                 "gemini-1.5-flash",
		"CURRENT_SCHEMA_PATH":          "/env/schema.json",
		"CURRENT_TEMPERATURE":          "0.1",
		"CURRENT_TOP_K":                "8",
		"CURRENT_MARKER":               "-- ask:",
		"CURRENT_LOG_LEVEL":            "debug",
		"CURRENT_SERVER_ALLOW_ORIGINS": "vscode-webview://a,http://localhost:3000",
	}

	config := DefaultConfig()
	require.NoError(t, applyEnvironment(config, environ))

	assert.Equal(t, "secret-key", config.Gemini.APIKey)
	assert.Equal(t, "gemini-1.5-flash", config.Gemini.Model)
	assert.Equal(t, "/env/schema.json", config.Schema.Path)
	assert.InDelta(t, 0.1, config.Generation.Temperature, 1e-9)
	assert.Equal(t, 8, config.Generation.TopK)
	assert.Equal(t, "-- ask:", config.Completion.Marker)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, []string{"vscode-webview://a", "http://localhost:3000"}, config.Server.AllowOrigins)
}

func TestApplyEnvironmentKeepsFileValues(t *testing.T) {
	config := DefaultConfig()
	config.Gemini.Model = "from-file"
	config.Generation.TopK = 3

	require.NoError(t, applyEnvironment(config, map[string]string{"CURRENT_TOP_P": "0.5"}))

	assert.Equal(t, "from-file", config.Gemini.Model, "defaults must not clobber file values")
	assert.Equal(t, 3, config.Generation.TopK)
	assert.InDelta(t, 0.5, config.Generation.TopP, 1e-9)
}

func TestLoadConfigPrecedence(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"gemini":{"model":"file-model","timeout":"10s"}}`), 0600))

	t.Setenv("CURRENT_CONFIG", configPath)
	t.Setenv("GEMINI_TIMEOUT", "20s")

	cfg, err := LoadConfigWithOverrides(map[string]interface{}{"timeout": "40s"})
	require.NoError(t, err)

	assert.Equal(t, "file-model", cfg.Gemini.Model)
	assert.Equal(t, "40s", cfg.Gemini.Timeout)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := DefaultConfig()

	overrides := map[string]interface{}{
		"schema":             "/flag/schema.yaml",
		"model":              "gemini-exp",
		"backend":            "genai",
		"log-level":          "error",
		"marker":             "##nl:",
		"addr":               ":9000",
		"allow-empty-schema": true,
	}

	require.NoError(t, applyFlagOverrides(config, overrides))

	assert.Equal(t, "/flag/schema.yaml", config.Schema.Path)
	assert.Equal(t, "gemini-exp", config.Gemini.Model)
	assert.Equal(t, "genai", config.Gemini.Backend)
	assert.Equal(t, "error", config.Logging.Level)
	assert.Equal(t, "##nl:", config.Completion.Marker)
	assert.Equal(t, ":9000", config.Server.Addr)
	assert.True(t, config.Schema.AllowEmpty)

	err := applyFlagOverrides(config, map[string]interface{}{"bogus": "x"})
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name          string
		modifyConfig  func(*Config)
		expectError   bool
		errorContains string
	}{
		{
			name:         "valid config",
			modifyConfig: func(_ *Config) {},
			expectError:  false,
		},
		{
			name:          "invalid log level",
			modifyConfig:  func(c *Config) { c.Logging.Level = "invalid" },
			expectError:   true,
			errorContains: "invalid log level",
		},
		{
			name:          "invalid log output",
			modifyConfig:  func(c *Config) { c.Logging.Output = "syslog" },
			expectError:   true,
			errorContains: "invalid log output",
		},
		{
			name:          "invalid backend",
			modifyConfig:  func(c *Config) { c.Gemini.Backend = "grpc" },
			expectError:   true,
			errorContains: "invalid backend",
		},
		{
			name:          "invalid request timeout",
			modifyConfig:  func(c *Config) { c.Gemini.Timeout = "soon" },
			expectError:   true,
			errorContains: "invalid request timeout",
		},
		{
			name:          "zero request timeout",
			modifyConfig:  func(c *Config) { c.Gemini.Timeout = "0s" },
			expectError:   true,
			errorContains: "invalid request timeout",
		},
		{
			name:          "temperature out of range",
			modifyConfig:  func(c *Config) { c.Generation.Temperature = 3 },
			expectError:   true,
			errorContains: "temperature",
		},
		{
			name:          "top_p out of range",
			modifyConfig:  func(c *Config) { c.Generation.TopP = 0 },
			expectError:   true,
			errorContains: "top_p",
		},
		{
			name:          "non-positive max output tokens",
			modifyConfig:  func(c *Config) { c.Generation.MaxOutputTokens = 0 },
			expectError:   true,
			errorContains: "max output tokens",
		},
		{
			name:          "blank marker",
			modifyConfig:  func(c *Config) { c.Completion.Marker = "   " },
			expectError:   true,
			errorContains: "marker",
		},
		{
			name:          "invalid database timeout",
			modifyConfig:  func(c *Config) { c.Database.QueryTimeout = "invalid" },
			expectError:   true,
			errorContains: "invalid database query timeout",
		},
		{
			name:          "invalid max connections",
			modifyConfig:  func(c *Config) { c.Database.MaxConnections = -1 },
			expectError:   true,
			errorContains: "database max connections must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modifyConfig(config)

			err := validateConfig(config)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveConfigOmitsAPIKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.json")
	t.Setenv("CURRENT_CONFIG", configPath)

	cfg := DefaultConfig()
	cfg.Gemini.APIKey = "do-not-write"

	require.NoError(t, SaveConfig(cfg))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-write")
	assert.Equal(t, "do-not-write", cfg.Gemini.APIKey, "caller's config is untouched")
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "/absolute/path", ExpandPath("/absolute/path"))
	assert.Equal(t, homeDir, ExpandPath("~"))
	assert.Equal(t, filepath.Join(homeDir, "schema.yaml"), ExpandPath("~/schema.yaml"))
}

func TestMaskedAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "(not set)", cfg.MaskedAPIKey())

	cfg.Gemini.APIKey = "abc"
	assert.Equal(t, "***", cfg.MaskedAPIKey())

	cfg.Gemini.APIKey = "AIzaSyExample1234"
	assert.Equal(t, "*************1234", cfg.MaskedAPIKey())
}
