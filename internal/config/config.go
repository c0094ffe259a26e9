package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Models     ModelsConfig     `mapstructure:"models"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Users      UsersConfig      `mapstructure:"users"`
	Uploads    UploadsConfig    `mapstructure:"uploads"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type ModelsConfig struct {
	Default        string          `mapstructure:"default"`
	NamingModel    string          `mapstructure:"naming_model"`
	EmbeddingModel string          `mapstructure:"embedding_model"`
	// RequestsPerSecond paces outbound LLM API calls across all users.
	RequestsPerSecond float64         `mapstructure:"requests_per_second"`
	Endpoints         []ModelEndpoint `mapstructure:"endpoints"`
}

type ModelEndpoint struct {
	Name        string      `mapstructure:"name"`
	DisplayName string      `mapstructure:"display_name"`
	BaseURL     string      `mapstructure:"base_url"`
	APIKey      string      `mapstructure:"api_key"`
	Models      []ModelInfo `mapstructure:"models"`
}

type ModelInfo struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type SessionsConfig struct {
	Directory string `mapstructure:"directory"`
}

type UsersConfig struct {
	// Type selects the credential store backend: "json" or "sqlite".
	Type   string       `mapstructure:"type"`
	Path   string       `mapstructure:"path"`
	Tokens TokensConfig `mapstructure:"tokens"`
}

type TokensConfig struct {
	// Type selects the login token store: "memory" or "redis".
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type UploadsConfig struct {
	Directory   string `mapstructure:"directory"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	AudioMaxMB  int    `mapstructure:"audio_max_mb"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled    bool                      `mapstructure:"enabled"`
	Categories map[string]CategoryBudget `mapstructure:"categories"`
}

// CategoryBudget is the (max_requests, window) pair for one action category.
type CategoryBudget struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

type KnowledgeConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	DBPath    string `mapstructure:"db_path"`
	TopK      int    `mapstructure:"top_k"`
}

// LoadConfig loads configuration from file and environment variables.
// ${VAR} references in the file are expanded before parsing so secrets
// like API keys stay out of the config file itself.
func LoadConfig(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadConfig(strings.NewReader(os.ExpandEnv(string(raw)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set environment variable overrides
	viper.BindEnv("users.tokens.redis.addr", "REDIS_HOST", "REDIS_PORT")
	viper.BindEnv("users.tokens.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("users.tokens.redis.db", "REDIS_DB")
	viper.BindEnv("server.port", "PORT")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := viper.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := viper.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Users.Tokens.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	// Load custom endpoints from environment variables
	if customEndpoints := os.Getenv("CUSTOM_ENDPOINTS"); customEndpoints != "" {
		endpoints := strings.Split(customEndpoints, ",")
		for _, endpointName := range endpoints {
			endpointName = strings.TrimSpace(endpointName)
			if endpointName == "" {
				continue
			}

			envPrefix := strings.ToUpper(strings.ReplaceAll(endpointName, "-", "_"))

			baseURL := os.Getenv(envPrefix + "_BASE_URL")
			apiKey := os.Getenv(envPrefix + "_API_KEY")
			modelsStr := os.Getenv(envPrefix + "_MODELS")

			if baseURL == "" || apiKey == "" {
				continue
			}

			endpoint := ModelEndpoint{
				Name:        endpointName,
				DisplayName: endpointName,
				BaseURL:     baseURL,
				APIKey:      apiKey,
				Models:      []ModelInfo{},
			}

			if modelsStr != "" {
				modelList := strings.Split(modelsStr, ",")
				for _, modelStr := range modelList {
					modelStr = strings.TrimSpace(modelStr)
					if modelStr == "" {
						continue
					}

					// Check if model has display name
					parts := strings.SplitN(modelStr, ":", 2)
					modelID := parts[0]
					modelName := modelID
					if len(parts) == 2 {
						modelName = parts[1]
					}

					endpoint.Models = append(endpoint.Models, ModelInfo{
						ID:   modelID,
						Name: modelName,
					})
				}
			}

			config.Models.Endpoints = append(config.Models.Endpoints, endpoint)
		}
	}

	applyDefaults(&config)

	// Validate required fields
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// DefaultBudgets are the built-in per-category rate limit budgets, used when
// the config file does not override a category.
func DefaultBudgets() map[string]CategoryBudget {
	return map[string]CategoryBudget{
		"default":     {MaxRequests: 60, Window: time.Minute},
		"chat":        {MaxRequests: 20, Window: time.Minute},
		"file_upload": {MaxRequests: 10, Window: 5 * time.Minute},
		"audio":       {MaxRequests: 5, Window: 5 * time.Minute},
		"auth":        {MaxRequests: 5, Window: time.Minute},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.TokenTTL == 0 {
		cfg.Server.TokenTTL = 24 * time.Hour
	}
	if cfg.Sessions.Directory == "" {
		cfg.Sessions.Directory = "data/chat_sessions"
	}
	if cfg.Users.Type == "" {
		cfg.Users.Type = "json"
	}
	if cfg.Users.Path == "" {
		cfg.Users.Path = "data/user_info/users.json"
	}
	if cfg.Users.Tokens.Type == "" {
		cfg.Users.Tokens.Type = "memory"
	}
	if cfg.Uploads.Directory == "" {
		cfg.Uploads.Directory = "data/uploads"
	}
	if cfg.Models.RequestsPerSecond == 0 {
		cfg.Models.RequestsPerSecond = 2
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 3
	}
	if cfg.I18n.DefaultLanguage == "" {
		cfg.I18n.DefaultLanguage = "en"
	}
	if cfg.I18n.Directory == "" {
		cfg.I18n.Directory = "configs/i18n"
	}

	defaults := DefaultBudgets()
	if cfg.RateLimit.Categories == nil {
		cfg.RateLimit.Categories = defaults
		return
	}
	for name, budget := range defaults {
		if _, ok := cfg.RateLimit.Categories[name]; !ok {
			cfg.RateLimit.Categories[name] = budget
		}
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.Models.Endpoints) == 0 {
		return fmt.Errorf("at least one model endpoint is required")
	}
	switch cfg.Users.Type {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unsupported user store type: %s", cfg.Users.Type)
	}
	switch cfg.Users.Tokens.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported token store type: %s", cfg.Users.Tokens.Type)
	}
	for name, budget := range cfg.RateLimit.Categories {
		if budget.MaxRequests <= 0 || budget.Window <= 0 {
			return fmt.Errorf("rate limit category %s must have positive budget and window", name)
		}
	}
	return nil
}
