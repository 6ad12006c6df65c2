package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/conference-central/config.yaml",
}

const ConfigPathEnvVar = "CONFIG_PATH"

// envMappings maps environment variables to config paths.
var envMappings = map[string]string{
	"http_host":                   "server.host",
	"http_port":                   "server.port",
	"http_read_timeout":           "server.read_timeout",
	"store_backend":               "store.backend",
	"badger_path":                 "store.badger_path",
	"badger_in_memory":            "store.in_memory",
	"mongodb_connstring":          "store.mongo_uri",
	"mongodb_database":            "store.mongo_database",
	"store_tx_max_retries":        "store.tx_max_retries",
	"store_tx_initial_backoff":    "store.tx_initial_backoff",
	"store_tx_max_backoff":        "store.tx_max_backoff",
	"store_query_page_limit":      "store.query_page_limit",
	"sign":                        "auth.signing_key",
	"token_ttl":                   "auth.token_ttl",
	"log_level":                   "logging.level",
	"log_format":                  "logging.format",
	"notification_topic":          "notification.topic",
	"notification_buffer_size":    "notification.buffer_size",
	"announcement_refresh":        "announcement.refresh_interval",
	"announcement_seat_threshold": "announcement.threshold",
}

// Load builds the configuration: defaults, then the config file if one
// exists, then environment variables.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path; an empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps known variables and drops everything else.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
