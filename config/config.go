package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	Issuer    string `mapstructure:"ISSUER"`
	MountPath string `mapstructure:"MOUNT_PATH"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	CodeTTLMin             int `mapstructure:"CODE_TTL_MIN"`
	AccessTokenTTLMin      int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	IDTokenTTLHour         int `mapstructure:"ID_TOKEN_TTL_HOUR"`
	SessionTTLHour         int `mapstructure:"SESSION_TTL_HOUR"`
	CollaboratorTimeoutSec int `mapstructure:"COLLABORATOR_TIMEOUT_SEC"`

	SigningKeyFile string `mapstructure:"SIGNING_KEY_FILE"`
	ClientsFile    string `mapstructure:"CLIENTS_FILE"`
	UsersFile      string `mapstructure:"USERS_FILE"`

	// Redis token store; empty address selects the in-memory store.
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/grantd/")
	v.AddConfigPath("$HOME/.grantd")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("MOUNT_PATH", "/login/oauth")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "grantd")
	v.SetDefault("CODE_TTL_MIN", 10)
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("ID_TOKEN_TTL_HOUR", 24)
	v.SetDefault("SESSION_TTL_HOUR", 12)
	v.SetDefault("COLLABORATOR_TIMEOUT_SEC", 5)
	v.SetDefault("REDIS_PREFIX", "grantd")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
