package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/couchcryptid/qso-map-service/internal/domain"
)

// ConfigPathEnvVar names an optional YAML file layered between the defaults
// and the environment.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config holds all service settings. It is read once at startup.
type Config struct {
	BindAddr string `koanf:"bind_addr"`
	HTTPAddr string `koanf:"http_addr"`

	// QRZ.com XML API configuration.
	QRZUser         string        `koanf:"qrz_user"`
	QRZPassword     string        `koanf:"qrz_password"`
	QRZURL          string        `koanf:"qrz_url"`
	LookupTimeout   time.Duration `koanf:"lookup_timeout"`
	LookupRateLimit float64       `koanf:"lookup_rate_limit"`
	LookupCacheSize int           `koanf:"lookup_cache_size"`

	Home        domain.Point `koanf:"home"`
	HubCapacity int          `koanf:"hub_capacity"`
	AssetsDir   string       `koanf:"assets_dir"`

	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Optional Kafka mirror of enriched contacts.
	KafkaEnabled bool     `koanf:"kafka_enabled"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

func defaultConfig() *Config {
	return &Config{
		BindAddr:        "[::]:12060",
		HTTPAddr:        "[::]:8641",
		QRZURL:          "https://xmldata.qrz.com/xml/1.34/",
		LookupTimeout:   5 * time.Second,
		LookupRateLimit: 5,
		LookupCacheSize: 1000,
		HubCapacity:     10,
		LogLevel:        "warn",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
		KafkaBrokers:    []string{"localhost:9092"},
		KafkaTopic:      "qso-contacts",
	}
}

// envKeys maps environment variables to koanf paths. Anything not listed is ignored,
// which keeps unrelated variables such as HOME out of the config tree.
var envKeys = map[string]string{
	"BIND_ADDR":         "bind_addr",
	"HTTP_ADDR":         "http_addr",
	"QRZ_USER":          "qrz_user",
	"QRZ_PASSWORD":      "qrz_password",
	"QRZ_URL":           "qrz_url",
	"LOOKUP_TIMEOUT":    "lookup_timeout",
	"LOOKUP_RATE_LIMIT": "lookup_rate_limit",
	"LOOKUP_CACHE_SIZE": "lookup_cache_size",
	"HOME_LATITUDE":     "home.latitude",
	"HOME_LONGITUDE":    "home.longitude",
	"HUB_CAPACITY":      "hub_capacity",
	"ASSETS_DIR":        "assets_dir",
	"LOG_LEVEL":         "log_level",
	"LOG_FORMAT":        "log_format",
	"SHUTDOWN_TIMEOUT":  "shutdown_timeout",
	"KAFKA_ENABLED":     "kafka_enabled",
	"KAFKA_BROKERS":     "kafka_brokers",
	"KAFKA_TOPIC":       "kafka_topic",
}

// Load reads configuration from defaults, the optional CONFIG_PATH file, and
// environment variables, in increasing priority.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(k); err != nil {
		return nil, err
	}
	return cfg, nil
}

func transformEnv(key, value string) (string, any) {
	path, ok := envKeys[key]
	if !ok {
		return "", nil
	}
	if path == "kafka_brokers" {
		return path, sharedcfg.ParseBrokers(value)
	}
	return path, strings.TrimSpace(value)
}

func (c *Config) validate(k *koanf.Koanf) error {
	if c.BindAddr == "" {
		return errors.New("BIND_ADDR is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if c.QRZUser == "" {
		return errors.New("QRZ_USER is required")
	}
	if c.QRZPassword == "" {
		return errors.New("QRZ_PASSWORD is required")
	}
	if c.QRZURL == "" {
		return errors.New("QRZ_URL is required")
	}
	if !k.Exists("home.latitude") {
		return errors.New("HOME_LATITUDE is required")
	}
	if !k.Exists("home.longitude") {
		return errors.New("HOME_LONGITUDE is required")
	}
	if c.Home.Latitude < -90 || c.Home.Latitude > 90 {
		return fmt.Errorf("HOME_LATITUDE %g out of range", c.Home.Latitude)
	}
	if c.Home.Longitude < -180 || c.Home.Longitude > 180 {
		return fmt.Errorf("HOME_LONGITUDE %g out of range", c.Home.Longitude)
	}
	if c.LookupTimeout <= 0 {
		return errors.New("invalid LOOKUP_TIMEOUT")
	}
	if c.LookupRateLimit <= 0 {
		return errors.New("invalid LOOKUP_RATE_LIMIT")
	}
	if c.LookupCacheSize < 0 {
		return errors.New("invalid LOOKUP_CACHE_SIZE")
	}
	if c.HubCapacity < 1 {
		return errors.New("invalid HUB_CAPACITY")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("invalid SHUTDOWN_TIMEOUT")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is not set")
		}
	}
	return nil
}
