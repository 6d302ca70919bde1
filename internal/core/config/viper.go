package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// secretKeys may only come from the environment.
var secretKeys = []string{
	"hmac_secret",
	"server.hmac_secret",
	"api_key",
	"client.api_key",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults matching Default()
	def := Default()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("server.max_body_bytes", def.Server.MaxBodyBytes)
	v.SetDefault("preview.debounce", def.Preview.Debounce.String())
	v.SetDefault("preview.sample_size", def.Preview.SampleSize)
	v.SetDefault("client.base_url", def.Client.BaseURL)
	v.SetDefault("client.timeout", def.Client.Timeout.String())
	v.SetDefault("database.url", "")

	// Bind environment variables with SK_ prefix
	v.SetEnvPrefix("SK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxBodyBytes:   v.GetInt64("server.max_body_bytes"),
		},
		Preview: PreviewConfig{
			Debounce:   v.GetDuration("preview.debounce"),
			SampleSize: v.GetInt("preview.sample_size"),
		},
		Client: ClientConfig{
			BaseURL: strings.TrimRight(v.GetString("client.base_url"), "/"),
			Timeout: v.GetDuration("client.timeout"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive limits and timeouts.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Preview.Debounce < 0 {
		return fmt.Errorf("preview debounce cannot be negative, got %v", cfg.Preview.Debounce)
	}
	if cfg.Preview.SampleSize <= 0 || cfg.Preview.SampleSize > 100 {
		return fmt.Errorf("sample_size must be between 1 and 100, got %d", cfg.Preview.SampleSize)
	}
	if cfg.Client.BaseURL == "" {
		return fmt.Errorf("client base_url cannot be empty")
	}
	if cfg.Client.Timeout <= 0 {
		return fmt.Errorf("client timeout must be positive, got %v", cfg.Client.Timeout)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
// InConfig looks at the file only, so SK_HMAC_SECRET in the environment passes.
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range secretKeys {
		if v.InConfig(key) {
			return fmt.Errorf("secrets not allowed in config files (use SK_HMAC_SECRET or SK_API_KEY environment variables)")
		}
	}
	return nil
}
