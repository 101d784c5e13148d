package config

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
	"os"
	"strconv"
)

const (
	APP_PORT                 = "APP_PORT"
	APP_HOST                 = "APP_HOST"
	STORE_DRIVER             = "STORE_DRIVER"
	STORE_COLLECTION         = "STORE_COLLECTION"
	DB_HOST                  = "DB_HOST"
	DB_NAME                  = "DB_NAME"
	DB_USERNAME              = "DB_USERNAME"
	DB_PASS                  = "DB_PASS"
	DB_PORT                  = "DB_PORT"
	DB_CONN_MAX_LIFE_MINUTES = "DB_CONN_MAX_LIFE_MINUTES"
	DB_MAX_OPEN_CONNS        = "DB_MAX_OPEN_CONNS"
	DB_MIN_CONNS             = "DB_MIN_CONNS"
	REDIS_URL                = "REDIS_URL"
	REDIS_POOL_SIZE          = "REDIS_POOL_SIZE"
	JAG_DSN                  = "JAG_DSN"
	AUTH_USERNAME            = "AUTH_USERNAME"
	AUTH_PASSWORD            = "AUTH_PASSWORD"
	LOG_LEVEL                = "LOG_LEVEL"
	LOG_FILE                 = "LOG_FILE"

	DEFAULT_CONFIG_FILE = "./configs/.env"
)

// Supported values of STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

var ErrUnknownDriver = errors.New("unknown store driver")

type Entity struct {
	App   Application `mapstructure:",squash"`
	Store Store       `mapstructure:",squash"`
	DB    Database    `mapstructure:",squash"`
	Redis Redis       `mapstructure:",squash"`
	Jag   Jaeger      `mapstructure:",squash"`
	Auth  Auth        `mapstructure:",squash"`
	Log   Log         `mapstructure:",squash"`
}

// NewConfig reads configuration from the environment. When CONFIG_FILE=true the
// env file at DEFAULT_CONFIG_FILE is read too; environment variables win over it.
func NewConfig() (*Entity, error) {
	return newConfig(viper.GetViper(), DEFAULT_CONFIG_FILE)
}

func newConfig(v *viper.Viper, path string) (*Entity, error) {
	readFile := false
	if readConfigFile, ok := os.LookupEnv("CONFIG_FILE"); ok {
		var err error
		readFile, err = strconv.ParseBool(readConfigFile)
		if err != nil {
			return nil, fmt.Errorf("NewConfig failed: %w", errors.New("Error during env variable parse"))
		}
	}

	setDefaults(v)
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	if readFile {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("NewConfig failed: %w", err)
			}
		}
	}

	// Unmarshal only sees keys viper knows about, so every key is bound explicitly
	// for AutomaticEnv to pick it up.
	for _, key := range allKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("NewConfig failed: %w", err)
		}
	}

	config := &Entity{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("NewConfig failed: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("NewConfig failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(APP_HOST, "0.0.0.0")
	v.SetDefault(APP_PORT, "8080")
	v.SetDefault(STORE_DRIVER, DriverMemory)
	v.SetDefault(STORE_COLLECTION, "participants")
	v.SetDefault(DB_PORT, 5432)
	v.SetDefault(DB_CONN_MAX_LIFE_MINUTES, 30)
	v.SetDefault(DB_MAX_OPEN_CONNS, 20)
	v.SetDefault(DB_MIN_CONNS, 2)
	v.SetDefault(REDIS_POOL_SIZE, 10)
	v.SetDefault(LOG_LEVEL, "info")
	v.SetDefault(LOG_FILE, "./logs/logs.txt")
}

var allKeys = []string{
	APP_PORT, APP_HOST, STORE_DRIVER, STORE_COLLECTION,
	DB_HOST, DB_NAME, DB_USERNAME, DB_PASS, DB_PORT, DB_CONN_MAX_LIFE_MINUTES, DB_MAX_OPEN_CONNS, DB_MIN_CONNS,
	REDIS_URL, REDIS_POOL_SIZE, JAG_DSN, AUTH_USERNAME, AUTH_PASSWORD, LOG_LEVEL, LOG_FILE,
}

func (e *Entity) validate() error {
	switch e.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if e.Redis.URL == "" {
			return fmt.Errorf("%s is required for driver %q", REDIS_URL, DriverRedis)
		}
	case DriverPostgres:
		if e.DB.Hostname == "" || e.DB.Name == "" {
			return fmt.Errorf("%s and %s are required for driver %q", DB_HOST, DB_NAME, DriverPostgres)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, e.Store.Driver)
	}

	if (e.Auth.Username == "") != (e.Auth.Password == "") {
		return fmt.Errorf("%s and %s must be set together", AUTH_USERNAME, AUTH_PASSWORD)
	}

	return nil
}

type Application struct {
	Port string `mapstructure:"APP_PORT"`
	Host string `mapstructure:"APP_HOST"`
}

type Store struct {
	Driver     string `mapstructure:"STORE_DRIVER"`
	Collection string `mapstructure:"STORE_COLLECTION"`
}

type Database struct {
	Hostname     string `mapstructure:"DB_HOST"`
	Name         string `mapstructure:"DB_NAME"`
	User         string `mapstructure:"DB_USERNAME"`
	Pass         string `mapstructure:"DB_PASS"`
	Port         uint16 `mapstructure:"DB_PORT"`
	ConnLifeTime int    `mapstructure:"DB_CONN_MAX_LIFE_MINUTES"`
	MaxOpenConns int32  `mapstructure:"DB_MAX_OPEN_CONNS"`
	MinConns     int32  `mapstructure:"DB_MIN_CONNS"`
}

type Redis struct {
	URL      string `mapstructure:"REDIS_URL"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

type Jaeger struct {
	Dsn string `mapstructure:"JAG_DSN"`
}

// Auth holds the admin credentials for Basic authentication. Empty means disabled.
type Auth struct {
	Username string `mapstructure:"AUTH_USERNAME"`
	Password string `mapstructure:"AUTH_PASSWORD"`
}

type Log struct {
	Level string `mapstructure:"LOG_LEVEL"`
	File  string `mapstructure:"LOG_FILE"`
}
