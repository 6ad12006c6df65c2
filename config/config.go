// Package config loads the service configuration from built-in defaults, an
// optional YAML file and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"conference-central/logging"
	"conference-central/model"
	"conference-central/validation"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Store        StoreConfig        `koanf:"store"`
	Auth         AuthConfig         `koanf:"auth"`
	Logging      logging.Config     `koanf:"logging"`
	Notification NotificationConfig `koanf:"notification"`
	Announcement AnnouncementConfig `koanf:"announcement"`
}

type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"min=0"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StoreConfig struct {
	Backend       string `koanf:"backend" validate:"oneof=badger mongo"`
	BadgerPath    string `koanf:"badger_path" validate:"required_if=Backend badger InMemory false"`
	InMemory      bool   `koanf:"in_memory"`
	MongoURI      string `koanf:"mongo_uri" validate:"required_if=Backend mongo"`
	MongoDatabase string `koanf:"mongo_database" validate:"required_if=Backend mongo"`

	TxMaxRetries     int           `koanf:"tx_max_retries" validate:"min=0,max=50"`
	TxInitialBackoff time.Duration `koanf:"tx_initial_backoff" validate:"min=0"`
	TxMaxBackoff     time.Duration `koanf:"tx_max_backoff" validate:"min=0"`
	QueryPageLimit   int           `koanf:"query_page_limit" validate:"min=1,max=1000"`
}

type AuthConfig struct {
	SigningKey string           `koanf:"signing_key" validate:"required,min=16"`
	TokenTTL   time.Duration    `koanf:"token_ttl" validate:"min=1m"`
	Accounts   []model.UserData `koanf:"accounts" validate:"dive"`
}

type NotificationConfig struct {
	Topic              string        `koanf:"topic" validate:"required"`
	BufferSize         int64         `koanf:"buffer_size" validate:"min=0"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"min=1"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" validate:"min=0"`
}

type AnnouncementConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"min=1s"`
	Threshold       int           `koanf:"threshold" validate:"min=1"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        80,
			ReadTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:          "badger",
			BadgerPath:       "./database/badger",
			MongoDatabase:    "conference-central",
			TxMaxRetries:     5,
			TxInitialBackoff: 10 * time.Millisecond,
			TxMaxBackoff:     500 * time.Millisecond,
			QueryPageLimit:   100,
		},
		Auth: AuthConfig{
			TokenTTL: 8 * time.Hour,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Notification: NotificationConfig{
			Topic:              "conference.emails",
			BufferSize:         64,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Announcement: AnnouncementConfig{
			RefreshInterval: time.Minute,
			Threshold:       5,
		},
	}
}

// Validate checks field constraints after loading.
func (c *Config) Validate() error {
	return validation.Struct(c)
}

// GetSecret reads a raw value from the environment.
func GetSecret(key string) (string, error) {
	val, exist := os.LookupEnv(key)
	if exist {
		return val, nil
	}
	return "", fmt.Errorf("no env variable with key %v", key)
}
