package config

import (
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "false")

	conf, err := newConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "8080", conf.App.Port)
	assert.Equal(t, DriverMemory, conf.Store.Driver)
	assert.Equal(t, "participants", conf.Store.Collection)
	assert.Equal(t, uint16(5432), conf.DB.Port)
	assert.Equal(t, "info", conf.Log.Level)
	assert.Empty(t, conf.Auth.Username)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AUTH_USERNAME", "admin")
	t.Setenv("AUTH_PASSWORD", "secret")

	conf, err := newConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "9090", conf.App.Port)
	assert.Equal(t, DriverRedis, conf.Store.Driver)
	assert.Equal(t, "redis://localhost:6379/0", conf.Redis.URL)
	assert.Equal(t, "admin", conf.Auth.Username)
	assert.Equal(t, "secret", conf.Auth.Password)
}

func TestNewConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	data := "STORE_DRIVER=postgres\nDB_HOST=db\nDB_NAME=registry\nDB_PORT=6543\nLOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("CONFIG_FILE", "true")
	t.Setenv("LOG_LEVEL", "warn")

	conf, err := newConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, conf.Store.Driver)
	assert.Equal(t, "db", conf.DB.Hostname)
	assert.Equal(t, uint16(6543), conf.DB.Port)
	assert.Equal(t, "warn", conf.Log.Level, "env overrides file")
}

func TestNewConfigMissingFileIsTolerated(t *testing.T) {
	t.Setenv("CONFIG_FILE", "true")

	_, err := newConfig(viper.New(), filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestNewConfigRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad config flag":     {"CONFIG_FILE": "maybe"},
		"unknown driver":      {"STORE_DRIVER": "dynamo"},
		"redis without url":   {"STORE_DRIVER": "redis"},
		"postgres without db": {"STORE_DRIVER": "postgres"},
		"half auth":           {"AUTH_USERNAME": "admin"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := newConfig(viper.New(), "")
			assert.Error(t, err)
		})
	}
}
