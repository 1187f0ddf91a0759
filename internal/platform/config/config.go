package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | postgres | pgx | sqlite3
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	// sqlite3 のみ使用
	Path string `yaml:"path"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	Certificate Certs    `yaml:"certificate"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

type LendingConfig struct {
	LoanPeriodDays int `yaml:"loan_period_days"`
}

type Config struct {
	Version string         `yaml:"version"`
	Mode    string         `yaml:"mode"`
	Server  ServerConfig   `yaml:"server"`
	DB      DatabaseConfig `yaml:"database"`
	Auth    AuthConfig     `yaml:"auth"`
	Log     LogConfig      `yaml:"log"`
	Lending LendingConfig  `yaml:"lending"`
}

// Load reads the YAML file at path, applies LIBRARY_* environment overrides
// and fills defaults. A missing file is not an error: env + defaults are used.
func Load(path string) (*Config, error) {
	var cfg Config
	buf, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "mysql"
	}
	if c.DB.Driver == "sqlite3" && c.DB.Path == "" {
		c.DB.Path = "data/library.db"
	}
	if c.Auth.AccessTTL <= 0 {
		c.Auth.AccessTTL = time.Hour
	}
	if c.Auth.RefreshTTL <= 0 {
		c.Auth.RefreshTTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Lending.LoanPeriodDays <= 0 {
		c.Lending.LoanPeriodDays = 14
	}
	if c.Mode == "dev" && c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "dev-secret-change-me"
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	switch c.DB.Driver {
	case "mysql", "postgres", "pgx", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DB.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in %s mode", c.Mode)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Mode = getEnv("LIBRARY_MODE", c.Mode)
	c.Server.Addr = getEnv("LIBRARY_ADDR", c.Server.Addr)
	c.DB.Driver = getEnv("LIBRARY_DB_DRIVER", c.DB.Driver)
	c.DB.Host = getEnv("LIBRARY_DB_HOST", c.DB.Host)
	if v, ok := os.LookupEnv("LIBRARY_DB_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB.Port = n
		}
	}
	c.DB.Username = getEnv("LIBRARY_DB_USER", c.DB.Username)
	c.DB.Password = getEnv("LIBRARY_DB_PASSWORD", c.DB.Password)
	c.DB.DBName = getEnv("LIBRARY_DB_NAME", c.DB.DBName)
	c.DB.Path = getEnv("LIBRARY_DB_PATH", c.DB.Path)
	c.Auth.JWTSecret = getEnv("LIBRARY_JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
