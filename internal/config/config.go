package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
}

type Database struct {
	// Dialect selects the SQL backend: sqlite, postgres or mysql.
	Dialect string `yaml:"dialect"`
	// Path is the database file, sqlite only.
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func Load(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	if err := cfg.Database.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func (d *Database) check() error {
	switch d.Dialect {
	case "sqlite":
		if d.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "mysql":
		if d.Host == "" || d.Dbname == "" {
			return fmt.Errorf("database.host and database.dbname are required for %s", d.Dialect)
		}
	default:
		return fmt.Errorf("unknown database.dialect %q", d.Dialect)
	}
	return nil
}

// DSN renders the driver-specific connection string.
func (d *Database) DSN() string {
	switch d.Dialect {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			d.Host, d.Port, d.User, d.Password, d.Dbname)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Dbname)
	default:
		return d.Path
	}
}
