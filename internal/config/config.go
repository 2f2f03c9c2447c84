// Package config loads server configuration.
//
// Values come from Default, then an optional YAML file, then PIA_*
// environment variables. Command-line flags are applied last by cmd/server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/pia-workflow/internal/utils"
)

const devSecret = "pia-dev-secret"

type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type DatabaseConfig struct {
	// Path is the SQLite file. ":memory:" keeps everything in process.
	Path string `yaml:"path"`

	// MigrationsDir overrides the embedded migrations when set.
	MigrationsDir string `yaml:"migrations_dir"`
}

type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	CORSOrigins     []string `yaml:"cors_origins"`
	StaticDir       string   `yaml:"static_dir"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Duration accepts Go duration strings ("90m", "24h") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) { return time.Duration(d).String(), nil }

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Default() *Config {
	return &Config{
		Addr: ":8080",
		Database: DatabaseConfig{
			Path: "data/pia.db",
		},
		Auth: AuthConfig{
			JWTSecret: devSecret,
			TokenTTL:  Duration(24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// LoadFile reads path over the defaults. Fields missing from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load returns the defaults, or the file at path when path is set, with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PIA_* variables that are set.
func (c *Config) ApplyEnv() error {
	c.Addr = utils.SafeEnv("PIA_ADDR", c.Addr)
	c.Database.Path = utils.SafeEnv("PIA_DB_PATH", c.Database.Path)
	c.Database.MigrationsDir = utils.SafeEnv("PIA_MIGRATIONS_DIR", c.Database.MigrationsDir)
	c.Auth.JWTSecret = utils.SafeEnv("PIA_JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = utils.SafeEnv("PIA_LOG_LEVEL", c.Log.Level)
	c.Log.Format = utils.SafeEnv("PIA_LOG_FORMAT", c.Log.Format)
	c.HTTP.StaticDir = utils.SafeEnv("PIA_STATIC_DIR", c.HTTP.StaticDir)
	if v := utils.SafeEnv("PIA_TOKEN_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PIA_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = Duration(d)
	}
	if v := utils.SafeEnv("PIA_CORS_ORIGINS", ""); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.HTTP.CORSOrigins = origins
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.TokenTTL.Std() <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.HTTP.ShutdownTimeout.Std() <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// UsesDevSecret reports whether the built-in development secret is in use.
func (c *Config) UsesDevSecret() bool { return c.Auth.JWTSecret == devSecret }
