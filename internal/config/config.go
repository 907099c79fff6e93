package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	Spam      SpamConfig      `mapstructure:"spam"`
	Retention RetentionConfig `mapstructure:"retention"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SecurityConfig holds the credential encryption key and the API key
// guarding the HTTP API
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	APIKey        string `mapstructure:"api_key"`
}

// SpamConfig holds spam-scoring API client configuration
type SpamConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	KeyValidationTimeout time.Duration `mapstructure:"key_validation_timeout"`
}

// RetentionConfig holds report retention job configuration
type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// RelayConfig holds outbound SMTP delivery configuration
type RelayConfig struct {
	HeloHostname   string        `mapstructure:"helo_hostname"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`

	// Fallback is the transport used for emails the router passes through
	FallbackHost       string `mapstructure:"fallback_host"`
	FallbackPort       int    `mapstructure:"fallback_port"`
	FallbackEncryption string `mapstructure:"fallback_encryption"`
	FallbackUsername   string `mapstructure:"fallback_username"`
	FallbackPassword   string `mapstructure:"fallback_password"`
	FallbackSender     string `mapstructure:"fallback_sender"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "60s")

	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("spam.timeout", "30s")
	viper.SetDefault("spam.key_validation_timeout", "15s")

	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.schedule", "0 30 3 * * *")

	viper.SetDefault("relay.helo_hostname", "localhost")
	viper.SetDefault("relay.connect_timeout", "30s")
	viper.SetDefault("relay.command_timeout", "5m")
	viper.SetDefault("relay.max_attempts", 3)
	viper.SetDefault("relay.fallback_port", 25)
	viper.SetDefault("relay.fallback_encryption", "none")

	viper.SetDefault("log.level", "info")
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.driver", "DB_DRIVER")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.sslmode", "DB_SSLMODE")

	// Security
	viper.BindEnv("security.encryption_key", "SECURITY_ENCRYPTION_KEY")
	viper.BindEnv("security.api_key", "SECURITY_API_KEY")

	// Spam
	viper.BindEnv("spam.timeout", "SPAM_TIMEOUT")
	viper.BindEnv("spam.key_validation_timeout", "SPAM_KEY_VALIDATION_TIMEOUT")

	// Retention
	viper.BindEnv("retention.enabled", "RETENTION_ENABLED")
	viper.BindEnv("retention.schedule", "RETENTION_SCHEDULE")

	// Relay
	viper.BindEnv("relay.helo_hostname", "RELAY_HELO_HOSTNAME")
	viper.BindEnv("relay.connect_timeout", "RELAY_CONNECT_TIMEOUT")
	viper.BindEnv("relay.command_timeout", "RELAY_COMMAND_TIMEOUT")
	viper.BindEnv("relay.fallback_host", "RELAY_FALLBACK_HOST")
	viper.BindEnv("relay.max_attempts", "RELAY_MAX_ATTEMPTS")
	viper.BindEnv("relay.fallback_port", "RELAY_FALLBACK_PORT")
	viper.BindEnv("relay.fallback_encryption", "RELAY_FALLBACK_ENCRYPTION")
	viper.BindEnv("relay.fallback_username", "RELAY_FALLBACK_USERNAME")
	viper.BindEnv("relay.fallback_password", "RELAY_FALLBACK_PASSWORD")
	viper.BindEnv("relay.fallback_sender", "RELAY_FALLBACK_SENDER")

	viper.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// HasFallback reports whether a last-resort SMTP transport is configured
func (c *RelayConfig) HasFallback() bool {
	return c.FallbackHost != "" && c.FallbackPort > 0
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("security encryption key is required")
	}

	if c.Spam.Timeout <= 0 || c.Spam.KeyValidationTimeout <= 0 {
		return fmt.Errorf("spam timeouts must be greater than 0")
	}

	if c.Relay.ConnectTimeout <= 0 {
		return fmt.Errorf("relay connect timeout must be greater than 0")
	}

	switch c.Relay.FallbackEncryption {
	case "", "none", "ssl", "tls":
	default:
		return fmt.Errorf("unsupported fallback encryption %q", c.Relay.FallbackEncryption)
	}

	if c.Retention.Enabled && c.Retention.Schedule == "" {
		return fmt.Errorf("retention schedule is required when retention is enabled")
	}

	return nil
}
