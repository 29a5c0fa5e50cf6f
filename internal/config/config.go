// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"

	defaultListen       = ":4242"
	defaultDataPath     = "./data"
	defaultMaxBlockSize = 1<<24 - 1
)

type Config struct {
	Listen        string `yaml:"listen"`
	Backend       string `yaml:"backend"`
	DataPath      string `yaml:"dataPath"`
	DSN           string `yaml:"dsn"`
	MaxBlockSize  int    `yaml:"maxBlockSize"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	Compression   string `yaml:"compression"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load reads path and fills unset fields with defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data and fills unset fields with defaults.
func Parse(data []byte) (Config, error) {
	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Backend == "" {
		c.Backend = BackendBadger
	}
	if c.DataPath == "" {
		c.DataPath = defaultDataPath
	}
	if c.MaxBlockSize == 0 {
		c.MaxBlockSize = defaultMaxBlockSize
	}
	if c.Compression == "" {
		c.Compression = "zstd"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks values that have no sensible fallback.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBadger:
	case BackendSQLite:
		if c.DSN == "" {
			return errors.New("config: sqlite backend needs a dsn")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.MaxBlockSize < 0 {
		return errors.New("config: maxBlockSize must not be negative")
	}
	switch c.Compression {
	case "zstd", "xz", "none":
	default:
		return fmt.Errorf("config: unknown compression %q", c.Compression)
	}
	return nil
}
