package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	Gemini     GeminiConfig     `json:"gemini"`
	Generation GenerationConfig `json:"generation" envPrefix:"CURRENT_"`
	Schema     SchemaConfig     `json:"schema"     envPrefix:"CURRENT_"`
	Completion CompletionConfig `json:"completion" envPrefix:"CURRENT_"`
	Database   DatabaseConfig   `json:"database"   envPrefix:"CURRENT_"`
	Server     ServerConfig     `json:"server"     envPrefix:"CURRENT_"`
	Logging    LoggingConfig    `json:"logging"    envPrefix:"CURRENT_"`
}

// GeminiConfig represents the remote generation endpoint
type GeminiConfig struct {
	APIKey  string `json:"api_key,omitempty" env:"GEMINI_API_KEY"`
	BaseURL string `json:"base_url"          env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	Model   string `json:"model"             env:"GEMINI_MODEL"    envDefault:"gemini-2.0-flash"`
	Backend string `json:"backend"           env:"GEMINI_BACKEND"  envDefault:"rest"` // rest, genai
	Timeout string `json:"timeout"           env:"GEMINI_TIMEOUT"  envDefault:"30s"`
}

// GenerationConfig holds the sampling parameters attached to every request
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"       env:"TEMPERATURE"       envDefault:"0.7"`
	MaxOutputTokens int     `json:"max_output_tokens" env:"MAX_OUTPUT_TOKENS" envDefault:"512"`
	TopP            float64 `json:"top_p"             env:"TOP_P"             envDefault:"0.95"`
	TopK            int     `json:"top_k"             env:"TOP_K"             envDefault:"40"`
}

// SchemaConfig locates the schema document
type SchemaConfig struct {
	Path       string `json:"path"        env:"SCHEMA_PATH"        envDefault:"~/.config/current/schema.yaml"`
	AllowEmpty bool   `json:"allow_empty" env:"SCHEMA_ALLOW_EMPTY" envDefault:"false"` // degrade to an empty schema instead of failing
}

// CompletionConfig holds completion behavior settings
type CompletionConfig struct {
	Marker string `json:"marker" env:"MARKER" envDefault:"--sql:"`
}

// DatabaseConfig represents the database used for schema introspection
type DatabaseConfig struct {
	Driver          string `json:"driver"             env:"DB_DRIVER"             envDefault:"duckdb"` // duckdb, sqlite, sqlserver
	DSN             string `json:"dsn"                env:"DB_DSN"`
	MaxConnections  int    `json:"max_connections"    env:"DB_MAX_CONNECTIONS"    envDefault:"4"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  env:"DB_CONN_MAX_LIFETIME"  envDefault:"30m"`
	QueryTimeout    string `json:"query_timeout"      env:"DB_QUERY_TIMEOUT"      envDefault:"30s"`
}

// ServerConfig represents the local editor-integration HTTP server
type ServerConfig struct {
	Addr         string   `json:"addr"          env:"SERVER_ADDR"          envDefault:"127.0.0.1:7878"`
	AllowOrigins []string `json:"allow_origins" env:"SERVER_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`                              // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`                              // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"`                            // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/current/logs/current.log"` // log file path when output is file
}

// TimeoutDuration returns the parsed request timeout
func (g GeminiConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 0
	}

	return d
}

// QueryTimeoutDuration returns the parsed introspection query timeout
func (d DatabaseConfig) QueryTimeoutDuration() time.Duration {
	v, err := time.ParseDuration(d.QueryTimeout)
	if err != nil {
		return 0
	}

	return v
}

// ConnMaxLifetimeDuration returns the parsed connection lifetime
func (d DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	v, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0
	}

	return v
}

// DefaultConfig returns the configuration built purely from struct defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	// An empty environment yields only envDefault values.
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic("current: invalid config defaults: " + err.Error())
	}

	return cfg
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence: defaults < config file < environment < flags.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	// Load from config file if it exists
	configPath := ConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvironment(config, env.ToMap(os.Environ())); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile decodes a JSON file over config. Keys present in the
// file win even when their value is zero; absent keys keep their value.
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	fileConfig := *config
	fileConfig.Server.AllowOrigins = append([]string(nil), config.Server.AllowOrigins...)

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	*config = fileConfig

	return nil
}

// applyEnvironment copies only the variables that are actually set in environ,
// so defaults never clobber values that came from the config file.
func applyEnvironment(config *Config, environ map[string]string) error {
	explicit := make(map[string]bool)

	var fromEnv Config
	if err := env.ParseWithOptions(&fromEnv, env.Options{
		Environment: environ,
		OnSet: func(tag string, _ interface{}, isDefault bool) {
			if !isDefault {
				explicit[tag] = true
			}
		},
	}); err != nil {
		return err
	}

	copyExplicit(reflect.ValueOf(config).Elem(), reflect.ValueOf(&fromEnv).Elem(), "", explicit)

	return nil
}

// copyExplicit walks both structs in parallel and copies leaf fields whose
// environment key was explicitly set.
func copyExplicit(target, source reflect.Value, prefix string, explicit map[string]bool) {
	typ := source.Type()

	for i := range source.NumField() {
		field := typ.Field(i)

		if field.Type.Kind() == reflect.Struct {
			copyExplicit(target.Field(i), source.Field(i), prefix+field.Tag.Get("envPrefix"), explicit)
			continue
		}

		key, _, _ := strings.Cut(field.Tag.Get("env"), ",")
		if key != "" && explicit[prefix+key] {
			target.Field(i).Set(source.Field(i))
		}
	}
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "schema":
			if str, ok := value.(string); ok && str != "" {
				config.Schema.Path = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.Gemini.Model = str
			}
		case "backend":
			if str, ok := value.(string); ok && str != "" {
				config.Gemini.Backend = str
			}
		case "timeout":
			if str, ok := value.(string); ok && str != "" {
				config.Gemini.Timeout = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "marker":
			if str, ok := value.(string); ok && str != "" {
				config.Completion.Marker = str
			}
		case "addr":
			if str, ok := value.(string); ok && str != "" {
				config.Server.Addr = str
			}
		case "allow-empty-schema":
			if b, ok := value.(bool); ok && b {
				config.Schema.AllowEmpty = true
			}
		default:
			return fmt.Errorf("unknown override: %s", key)
		}
	}

	return nil
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validBackends := map[string]bool{"rest": true, "genai": true}
	if !validBackends[strings.ToLower(config.Gemini.Backend)] {
		return fmt.Errorf("invalid backend: %s (must be rest or genai)", config.Gemini.Backend)
	}

	if d, err := time.ParseDuration(config.Gemini.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid request timeout: %s", config.Gemini.Timeout)
	}

	if _, err := time.ParseDuration(config.Database.QueryTimeout); err != nil {
		return fmt.Errorf("invalid database query timeout: %s", config.Database.QueryTimeout)
	}

	if _, err := time.ParseDuration(config.Database.ConnMaxLifetime); err != nil {
		return fmt.Errorf("invalid database connection lifetime: %s", config.Database.ConnMaxLifetime)
	}

	if config.Generation.Temperature < 0 || config.Generation.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2: %g", config.Generation.Temperature)
	}

	if config.Generation.TopP <= 0 || config.Generation.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1]: %g", config.Generation.TopP)
	}

	if config.Generation.MaxOutputTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive: %d", config.Generation.MaxOutputTokens)
	}

	if config.Generation.TopK <= 0 {
		return fmt.Errorf("top_k must be positive: %d", config.Generation.TopK)
	}

	if strings.TrimSpace(config.Completion.Marker) == "" {
		return fmt.Errorf("completion marker must not be empty")
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	return nil
}

// SaveConfig saves configuration to file. The API key is never written.
func SaveConfig(config *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	redacted := *config
	redacted.Gemini.APIKey = ""

	data, err := json.MarshalIndent(&redacted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the path of the configuration file, honoring CURRENT_CONFIG
func ConfigPath() string {
	if configPath := os.Getenv("CURRENT_CONFIG"); configPath != "" {
		return ExpandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.json")
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Schema.Path = ExpandPath(c.Schema.Path)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/current"
	}

	return filepath.Join(homeDir, ".config", "current")
}

// MaskedAPIKey returns the API key with all but the last four characters hidden
func (c *Config) MaskedAPIKey() string {
	key := c.Gemini.APIKey
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}

	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
