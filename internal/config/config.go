// Package config loads netmap settings: built-in defaults, then an optional YAML file,
// then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string       `yaml:"http_addr"`
	DatabaseURL string       `yaml:"database_url"`
	DefaultMap  string       `yaml:"default_map"`
	StaticDir   string       `yaml:"static_dir"`
	Log         LogConfig    `yaml:"log"`
	Render      RenderConfig `yaml:"render"`
	Import      ImportConfig `yaml:"import"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotated log file next to stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type RenderConfig struct {
	DotPath       string        `yaml:"dot_path"`
	DefaultLayout string        `yaml:"default_layout"`
	Layouts       []string      `yaml:"layouts"`
	Timeout       time.Duration `yaml:"timeout"`
}

type ImportConfig struct {
	SNMPEnabled   bool          `yaml:"snmp_enabled"`
	SNMPCommunity string        `yaml:"snmp_community"`
	SNMPVersion   string        `yaml:"snmp_version"`
	SNMPTimeout   time.Duration `yaml:"snmp_timeout"`
	DNSServer     string        `yaml:"dns_server"`
	Workers       int           `yaml:"workers"`
}

func Default() Config {
	return Config{
		HTTPAddr:   ":8080",
		DefaultMap: "main",
		StaticDir:  "static",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Render: RenderConfig{
			DotPath:       "dot",
			DefaultLayout: "neato",
			Layouts:       []string{"neato", "circo", "fdp"},
			Timeout:       10 * time.Second,
		},
		Import: ImportConfig{
			SNMPCommunity: "public",
			SNMPVersion:   "2c",
			SNMPTimeout:   900 * time.Millisecond,
			Workers:       8,
		},
	}
}

// Load builds the configuration. path may be empty; getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("DEFAULT_MAP", &cfg.DefaultMap)
	str("STATIC_DIR", &cfg.StaticDir)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("DOT_PATH", &cfg.Render.DotPath)
	str("DEFAULT_LAYOUT", &cfg.Render.DefaultLayout)
	str("SNMP_COMMUNITY", &cfg.Import.SNMPCommunity)
	str("SNMP_VERSION", &cfg.Import.SNMPVersion)
	str("DNS_SERVER", &cfg.Import.DNSServer)

	if v := strings.TrimSpace(getenv("RENDER_LAYOUTS")); v != "" {
		var layouts []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				layouts = append(layouts, l)
			}
		}
		cfg.Render.Layouts = layouts
	}
	if v := strings.TrimSpace(getenv("RENDER_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RENDER_TIMEOUT: %w", err)
		}
		cfg.Render.Timeout = d
	}
	if v := strings.TrimSpace(getenv("SNMP_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SNMP_ENABLED: %w", err)
		}
		cfg.Import.SNMPEnabled = b
	}
	if v := strings.TrimSpace(getenv("ENRICH_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENRICH_WORKERS: %w", err)
		}
		cfg.Import.Workers = n
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http_addr is required")
	}
	if strings.TrimSpace(c.DefaultMap) == "" {
		return errors.New("default_map is required")
	}
	if len(c.Render.Layouts) == 0 {
		return errors.New("render.layouts must not be empty")
	}
	if !slices.Contains(c.Render.Layouts, c.Render.DefaultLayout) {
		return fmt.Errorf("render.default_layout %q is not one of %v", c.Render.DefaultLayout, c.Render.Layouts)
	}
	if c.Render.Timeout <= 0 {
		return errors.New("render.timeout must be positive")
	}
	return nil
}
