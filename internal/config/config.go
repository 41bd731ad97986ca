// Package config loads the file-manager configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// S3Config holds object-storage backend settings.
type S3Config struct {
	Enabled    bool   `yaml:"enabled"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`    // custom endpoint, e.g. LocalStack
	PasswdFile string `yaml:"passwd_file"` // ACCESS:SECRET file, optional
}

// LocalConfig holds local-filesystem backend settings.
type LocalConfig struct {
	// RenameOverwrite makes plain renames replace an existing target
	// instead of failing.
	RenameOverwrite bool `yaml:"rename_overwrite"`
}

// PostgresConfig holds the PostgreSQL key-value backend settings.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	ConnStr string `yaml:"conn_str"`
	Table   string `yaml:"table"`
}

// MongoConfig holds the MongoDB key-value backend settings.
type MongoConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Config is the top-level application configuration.
type Config struct {
	Local    LocalConfig    `yaml:"local"`
	S3       S3Config       `yaml:"s3"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		S3: S3Config{
			Region: "us-east-1",
		},
		Postgres: PostgresConfig{
			Table: "gofm_objects",
		},
		Mongo: MongoConfig{
			Database:   "gofm",
			Collection: "objects",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A
// missing file is not an error; defaults plus the environment apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps GOFM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOFM_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("GOFM_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("GOFM_S3_PASSWD_FILE"); v != "" {
		cfg.S3.PasswdFile = v
	}
	if v := os.Getenv("GOFM_POSTGRES_CONN_STR"); v != "" {
		cfg.Postgres.ConnStr = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("GOFM_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
		cfg.Mongo.Enabled = true
	}
	if v := os.Getenv("GOFM_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}

func (c *Config) validate() error {
	if c.Postgres.Enabled && c.Postgres.ConnStr == "" {
		return fmt.Errorf("postgres backend enabled without conn_str")
	}
	if c.Mongo.Enabled && c.Mongo.URI == "" {
		return fmt.Errorf("mongo backend enabled without uri")
	}
	switch c.Logger.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logger format %q", c.Logger.Format)
	}
	return nil
}
