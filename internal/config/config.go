package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Name      string `yaml:"name"`
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // console | json
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type ActivityConfig struct {
	Sink       string `yaml:"sink"` // postgres | mongo | none
	MongoURL   string `yaml:"mongo_url"`
	MongoDB    string `yaml:"mongo_db"`
	BufferSize int    `yaml:"buffer_size"`
}

type WriteOffConfig struct {
	// BlockPaymentOnFailure aborts the whole payment when the write-off fails.
	BlockPaymentOnFailure bool `yaml:"block_payment_on_failure"`
	MaxAttempts           int  `yaml:"max_attempts"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	Activity ActivityConfig `yaml:"activity"`
	WriteOff WriteOffConfig `yaml:"writeoff"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "pos-service"
	cfg.App.Port = "8080"
	cfg.App.LogLevel = "info"
	cfg.App.LogFormat = "console"
	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	cfg.Postgres.Migrate = true
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Activity.Sink = "postgres"
	cfg.Activity.MongoDB = "pos_activity"
	cfg.Activity.BufferSize = 256
	cfg.WriteOff.MaxAttempts = 2
	return cfg
}

// NewConfig reads CONFIG_PATH (yaml), then .env, then the process environment.
func NewConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"), ".env")
}

func Load(yamlPath, envPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		file, err := os.Open(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	if envPath != "" {
		err := godotenv.Load(envPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.App.LogFormat, "LOG_FORMAT")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	if err := setBool(&cfg.Postgres.Migrate, "DB_MIGRATE"); err != nil {
		return err
	}

	setString(&cfg.NATS.URL, "NATS_URL")
	if err := setBool(&cfg.NATS.Enabled, "NATS_ENABLED"); err != nil {
		return err
	}

	setString(&cfg.Activity.Sink, "ACTIVITY_SINK")
	setString(&cfg.Activity.MongoURL, "ACTIVITY_MONGO_URL")
	setString(&cfg.Activity.MongoDB, "ACTIVITY_MONGO_DB")

	if err := setBool(&cfg.WriteOff.BlockPaymentOnFailure, "WRITEOFF_BLOCK_PAYMENT"); err != nil {
		return err
	}
	if v := os.Getenv("WRITEOFF_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WRITEOFF_MAX_ATTEMPTS %q: %w", v, err)
		}
		cfg.WriteOff.MaxAttempts = n
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Postgres.Host == "" {
		return errors.New("DB_HOST is required")
	}
	if c.Postgres.User == "" {
		return errors.New("DB_USER is required")
	}
	if c.Postgres.DBName == "" {
		return errors.New("DB_NAME is required")
	}
	switch c.Activity.Sink {
	case "postgres", "none":
	case "mongo":
		if c.Activity.MongoURL == "" {
			return errors.New("ACTIVITY_MONGO_URL is required for the mongo activity sink")
		}
	default:
		return fmt.Errorf("unknown activity sink %q", c.Activity.Sink)
	}
	if c.WriteOff.MaxAttempts < 1 {
		return fmt.Errorf("writeoff max attempts must be at least 1, got %d", c.WriteOff.MaxAttempts)
	}
	return nil
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}
