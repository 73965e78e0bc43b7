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
	Database  DatabaseConfig  `json:"database"  envPrefix:"PORTQUERY_"`
	Schema    SchemaConfig    `json:"schema"    envPrefix:"PORTQUERY_"`
	LLM       LLMConfig       `json:"llm"       envPrefix:"PORTQUERY_"`
	Cache     CacheConfig     `json:"cache"     envPrefix:"PORTQUERY_"`
	Formatter FormatterConfig `json:"formatter" envPrefix:"PORTQUERY_"`
	Logging   LoggingConfig   `json:"logging"   envPrefix:"PORTQUERY_"`
}

// DatabaseConfig represents the read-only execution database configuration
type DatabaseConfig struct {
	Path          string `json:"path"            env:"DB_PATH"           envDefault:"~/.config/portquery/settlement.db"`
	QueryTimeout  string `json:"query_timeout"   env:"DB_QUERY_TIMEOUT"  envDefault:"30s"`
	MaxResultRows int    `json:"max_result_rows" env:"DB_MAX_RESULT_ROWS" envDefault:"1000"`
	MaxOpenConns  int    `json:"max_open_conns"  env:"DB_MAX_OPEN_CONNS" envDefault:"4"`
}

// SchemaConfig represents schema description loading configuration
type SchemaConfig struct {
	// Path to a YAML or JSON schema description. Empty means the embedded
	// default settlement schema.
	Path string `json:"path" env:"SCHEMA_PATH" envDefault:""`
}

// LLMConfig represents the language-model service configuration
type LLMConfig struct {
	Provider       string `json:"provider"        env:"LLM_PROVIDER"        envDefault:"openai"` // openai, azure, anthropic, ollama
	Model          string `json:"model"           env:"LLM_MODEL"           envDefault:"gpt-4o"`
	APIKey         string `json:"api_key,omitempty" env:"LLM_API_KEY"`
	BaseURL        string `json:"base_url,omitempty" env:"LLM_BASE_URL"`
	Deployment     string `json:"deployment,omitempty" env:"LLM_DEPLOYMENT"` // Azure deployment name
	APIVersion     string `json:"api_version,omitempty" env:"LLM_API_VERSION" envDefault:"2024-02-15-preview"`
	Timeout        string `json:"timeout"         env:"LLM_TIMEOUT"         envDefault:"30s"`
	RetryAttempts  int    `json:"retry_attempts"  env:"LLM_RETRY_ATTEMPTS"  envDefault:"1"`
	RetryDelay     string `json:"retry_delay"     env:"LLM_RETRY_DELAY"     envDefault:"2s"`
	EnableFallback bool   `json:"enable_fallback" env:"LLM_ENABLE_FALLBACK" envDefault:"true"`
}

// CacheConfig represents synthesized-query caching configuration
type CacheConfig struct {
	Directory string `json:"directory" env:"CACHE_DIR"       envDefault:"~/.cache/portquery"`
	TTLHours  int    `json:"ttl_hours" env:"CACHE_TTL_HOURS" envDefault:"24"`
	Enabled   bool   `json:"enabled"   env:"CACHE_ENABLED"   envDefault:"true"`
}

// FormatterConfig represents result display configuration
type FormatterConfig struct {
	PageSize int  `json:"page_size" env:"FORMAT_PAGE_SIZE" envDefault:"20"`
	MaskPII  bool `json:"mask_pii"  env:"FORMAT_MASK_PII"  envDefault:"true"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`   // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/portquery/logs/portquery.log"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := &Config{}

	// Load from config file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply environment variable overrides using env library (also sets defaults)
	if err := env.ParseWithOptions(config, env.Options{
		Prefix: "PORTQUERY_",
	}); err != nil {
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

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Path = str
			}
		case "schema-path":
			if str, ok := value.(string); ok && str != "" {
				config.Schema.Path = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "no-cache":
			if b, ok := value.(bool); ok && b {
				config.Cache.Enabled = false
			}
		}
	}

	return nil
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
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

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validProviders := map[string]bool{
		"openai": true, "azure": true, "anthropic": true, "ollama": true,
	}
	if !validProviders[strings.ToLower(config.LLM.Provider)] {
		return fmt.Errorf(
			"invalid LLM provider: %s (must be openai, azure, anthropic, or ollama)",
			config.LLM.Provider,
		)
	}

	if _, err := time.ParseDuration(config.Database.QueryTimeout); err != nil {
		return fmt.Errorf("invalid database query timeout: %s", config.Database.QueryTimeout)
	}

	if _, err := time.ParseDuration(config.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid LLM timeout: %s", config.LLM.Timeout)
	}

	if _, err := time.ParseDuration(config.LLM.RetryDelay); err != nil {
		return fmt.Errorf("invalid LLM retry delay: %s", config.LLM.RetryDelay)
	}

	if config.Database.MaxResultRows <= 0 {
		return fmt.Errorf(
			"database max result rows must be positive: %d",
			config.Database.MaxResultRows,
		)
	}

	if config.Formatter.PageSize <= 0 {
		return fmt.Errorf("formatter page size must be positive: %d", config.Formatter.PageSize)
	}

	return nil
}

// QueryTimeoutDuration returns the parsed database query timeout
func (c *Config) QueryTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Database.QueryTimeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

// LLMTimeoutDuration returns the parsed LLM call timeout
func (c *Config) LLMTimeoutDuration() time.Duration {
	return c.LLM.TimeoutDuration()
}

// TimeoutDuration returns the parsed LLM call timeout
func (lc LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(lc.Timeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

// RetryDelayDuration returns the parsed delay between retry attempts
func (lc LLMConfig) RetryDelayDuration() time.Duration {
	d, err := time.ParseDuration(lc.RetryDelay)
	if err != nil {
		return 2 * time.Second
	}

	return d
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("PORTQUERY_CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "portquery", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
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
	c.Database.Path = expandPath(c.Database.Path)
	c.Schema.Path = expandPath(c.Schema.Path)
	c.Cache.Directory = expandPath(c.Cache.Directory)
	c.Logging.File = expandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/portquery"
	}

	return filepath.Join(homeDir, ".config", "portquery")
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Database.Path),
		c.Cache.Directory,
		filepath.Dir(c.Logging.File),
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
