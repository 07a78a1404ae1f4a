package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "is0gvh"
	testPassword = "secret"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("QRZ_USER", testUser)
	t.Setenv("QRZ_PASSWORD", testPassword)
	t.Setenv("HOME_LATITUDE", "39.2")
	t.Setenv("HOME_LONGITUDE", "9.1")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "[::]:12060", cfg.BindAddr)
	assert.Equal(t, "[::]:8641", cfg.HTTPAddr)
	assert.Equal(t, testUser, cfg.QRZUser)
	assert.Equal(t, testPassword, cfg.QRZPassword)
	assert.Equal(t, "https://xmldata.qrz.com/xml/1.34/", cfg.QRZURL)
	assert.Equal(t, 5*time.Second, cfg.LookupTimeout)
	assert.Equal(t, 5.0, cfg.LookupRateLimit)
	assert.Equal(t, 1000, cfg.LookupCacheSize)
	assert.Equal(t, 39.2, cfg.Home.Latitude)
	assert.Equal(t, 9.1, cfg.Home.Longitude)
	assert.Equal(t, 10, cfg.HubCapacity)
	assert.Empty(t, cfg.AssetsDir)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "qso-contacts", cfg.KafkaTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("BIND_ADDR", "127.0.0.1:2237")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("QRZ_URL", "http://localhost:8000/xml/")
	t.Setenv("LOOKUP_TIMEOUT", "2s")
	t.Setenv("LOOKUP_RATE_LIMIT", "0.5")
	t.Setenv("LOOKUP_CACHE_SIZE", "50")
	t.Setenv("HUB_CAPACITY", "32")
	t.Setenv("ASSETS_DIR", "/srv/assets")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "contacts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2237", cfg.BindAddr)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8000/xml/", cfg.QRZURL)
	assert.Equal(t, 2*time.Second, cfg.LookupTimeout)
	assert.Equal(t, 0.5, cfg.LookupRateLimit)
	assert.Equal(t, 50, cfg.LookupCacheSize)
	assert.Equal(t, 32, cfg.HubCapacity)
	assert.Equal(t, "/srv/assets", cfg.AssetsDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "contacts", cfg.KafkaTopic)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
qrz_user: fileuser
qrz_password: filepass
home:
  latitude: 45.5
  longitude: -73.6
hub_capacity: 20
`), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HUB_CAPACITY", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fileuser", cfg.QRZUser)
	assert.Equal(t, "filepass", cfg.QRZPassword)
	assert.Equal(t, 45.5, cfg.Home.Latitude)
	assert.Equal(t, -73.6, cfg.Home.Longitude)
	assert.Equal(t, 25, cfg.HubCapacity, "environment overrides the file")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	setRequired(t)
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestLoad_HomeAtZeroIsAccepted(t *testing.T) {
	setRequired(t)
	t.Setenv("HOME_LATITUDE", "0")
	t.Setenv("HOME_LONGITUDE", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Home.Latitude)
	assert.Equal(t, 0.0, cfg.Home.Longitude)
}

func TestLoad_RequiredSettings(t *testing.T) {
	for _, name := range []string{"QRZ_USER", "QRZ_PASSWORD", "HOME_LATITUDE", "HOME_LONGITUDE"} {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			require.NoError(t, os.Unsetenv(name))

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		env, value, want string
	}{
		{"HOME_LATITUDE", "91", "HOME_LATITUDE"},
		{"HOME_LONGITUDE", "-181", "HOME_LONGITUDE"},
		{"LOOKUP_TIMEOUT", "bad", "lookup_timeout"},
		{"LOOKUP_TIMEOUT", "-1s", "LOOKUP_TIMEOUT"},
		{"LOOKUP_RATE_LIMIT", "0", "LOOKUP_RATE_LIMIT"},
		{"LOOKUP_CACHE_SIZE", "-1", "LOOKUP_CACHE_SIZE"},
		{"HUB_CAPACITY", "0", "HUB_CAPACITY"},
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "shutdown_timeout"},
		{"SHUTDOWN_TIMEOUT", "-1s", "SHUTDOWN_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.env, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_UnrelatedEnvironmentIgnored(t *testing.T) {
	setRequired(t)
	t.Setenv("HOME", "/home/operator")
	t.Setenv("HTTP_PROXY", "http://proxy:3128")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 39.2, cfg.Home.Latitude)
}
