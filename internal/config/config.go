package config

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/cwarner/sniper/pkg/secrets"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Mexc     MexcConfig     `mapstructure:"mexc"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	AuthSecret string `mapstructure:"auth_secret"`
}

type MexcConfig struct {
	APIKey    string          `mapstructure:"api_key"`
	SecretKey string          `mapstructure:"secret_key"`
	RestURL   string          `mapstructure:"rest_url"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type WebSocketConfig struct {
	URL            string `mapstructure:"url"`
	MaxReconnects  int    `mapstructure:"max_reconnects"`
	PingInterval   int    `mapstructure:"ping_interval"`
	ReconnectDelay int    `mapstructure:"reconnect_delay"`
}

type TradingConfig struct {
	SnipeQuoteAmount float64 `mapstructure:"snipe_quote_amount"`
	ListingBuffer    int     `mapstructure:"listing_buffer"`
	SnapshotBuffer   int     `mapstructure:"snapshot_buffer"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sniper")
	}

	v.SetEnvPrefix("SNIPER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_secret", "")

	// MEXC defaults
	v.SetDefault("mexc.rest_url", "https://api.mexc.com")
	v.SetDefault("mexc.websocket.url", "wss://wbs.mexc.com/ws")
	v.SetDefault("mexc.websocket.max_reconnects", 10)
	v.SetDefault("mexc.websocket.ping_interval", 30)
	v.SetDefault("mexc.websocket.reconnect_delay", 1)

	// Trading defaults
	v.SetDefault("trading.snipe_quote_amount", 25.0)
	v.SetDefault("trading.listing_buffer", 64)
	v.SetDefault("trading.snapshot_buffer", 1024)

	// Database defaults
	v.SetDefault("database.url", "postgres://localhost:5432/sniper")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.api_key", secretNames.APIKey)
	v.SetDefault("gcp.secret_names.secret_key", secretNames.SecretKey)
	v.SetDefault("gcp.secret_names.auth_secret", secretNames.AuthSecret)
}

func overrideFromEnv(config *Config) {
	// MEXC credentials from environment
	if apiKey := os.Getenv("MEXC_API_KEY"); apiKey != "" {
		config.Mexc.APIKey = apiKey
	}
	if secretKey := os.Getenv("MEXC_SECRET_KEY"); secretKey != "" {
		config.Mexc.SecretKey = secretKey
	}

	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		config.Database.URL = databaseURL
	}

	if authSecret := os.Getenv("API_AUTH_SECRET"); authSecret != "" {
		config.Server.AuthSecret = authSecret
	}

	// GCP configuration from environment
	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets that are not already set
	if config.Mexc.APIKey == "" {
		config.Mexc.APIKey = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APIKey, "")
	}
	if config.Mexc.SecretKey == "" {
		config.Mexc.SecretKey = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.SecretKey, "")
	}
	if config.Server.AuthSecret == "" {
		config.Server.AuthSecret = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.AuthSecret, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
