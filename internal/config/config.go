package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transport modes.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DataConfig locates the room documents.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// DBConfig locates the activity journal.
type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

// RoomsConfig controls room selection for requests without an access code.
type RoomsConfig struct {
	DefaultCode string `yaml:"default_code"`
}

// ArchiveConfig enables mirroring room documents to S3 when Bucket is set.
type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Data: DataConfig{
			Dir: "data",
		},
		DB: DBConfig{
			Path: "data/activity.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode: TransportHTTP,
		},
		Rooms: RoomsConfig{
			DefaultCode: "default",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("TALLY_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("TALLY_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("TALLY_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TALLY_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dir := os.Getenv("TALLY_DATA_DIR"); dir != "" {
		cfg.Data.Dir = dir
	}
	if dbPath := os.Getenv("TALLY_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("TALLY_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("TALLY_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if mode := os.Getenv("TALLY_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = strings.ToLower(mode)
	}
	if code := os.Getenv("TALLY_DEFAULT_ROOM"); code != "" {
		cfg.Rooms.DefaultCode = code
	}
	if bucket := os.Getenv("TALLY_ARCHIVE_BUCKET"); bucket != "" {
		cfg.Archive.Bucket = bucket
	}
	if endpoint := os.Getenv("TALLY_ARCHIVE_ENDPOINT"); endpoint != "" {
		cfg.Archive.Endpoint = endpoint
		cfg.Archive.PathStyle = true
	}
	if region := os.Getenv("TALLY_ARCHIVE_REGION"); region != "" {
		cfg.Archive.Region = region
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server can't start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Transport.Mode {
	case TransportHTTP, TransportStdio:
	default:
		return fmt.Errorf("unknown transport mode %q", c.Transport.Mode)
	}
	if strings.TrimSpace(c.Data.Dir) == "" {
		return fmt.Errorf("data dir required")
	}
	if strings.TrimSpace(c.Rooms.DefaultCode) == "" {
		return fmt.Errorf("default room code required")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
