package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type SessionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	SendBuffer        int           `yaml:"send_buffer"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
}

// CatalogConfig selects where the collection comes from. Manifest wins when
// both sources are set.
type CatalogConfig struct {
	Manifest string `yaml:"manifest"`
	Database string `yaml:"database"`
	Group    int64  `yaml:"group"`
	BaseDir  string `yaml:"base_dir"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          3000,
			Host:          "127.0.0.1",
			ShutdownGrace: 10 * time.Second,
		},
		Session: SessionConfig{
			HeartbeatInterval: 3 * time.Second,
			WriteTimeout:      10 * time.Second,
			SendBuffer:        64,
			MaxMessageSize:    4096,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from VIEWER_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("VIEWER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getenv("VIEWER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VIEWER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("VIEWER_MANIFEST"); v != "" {
		c.Catalog.Manifest = v
	}
	if v := getenv("VIEWER_DATABASE"); v != "" {
		c.Catalog.Database = v
	}
	if v := getenv("VIEWER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Session.HeartbeatInterval <= 0 {
		return errors.New("session.heartbeat_interval must be positive")
	}
	if c.Session.WriteTimeout <= 0 {
		return errors.New("session.write_timeout must be positive")
	}
	if c.Session.SendBuffer <= 0 {
		return errors.New("session.send_buffer must be positive")
	}
	if c.Catalog.Manifest == "" && c.Catalog.Database == "" {
		return errors.New("no catalog source: set catalog.manifest or catalog.database")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
