package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/devorch/internal/logger"
	"github.com/loykin/devorch/internal/orchestrator"
	devtls "github.com/loykin/devorch/internal/tls"
)

// EnvPrefix prefixes environment overrides: server.listen -> DEVORCH_SERVER_LISTEN.
const EnvPrefix = "DEVORCH"

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config represents the top-level TOML structure.
type Config struct {
	Mode     string                      `mapstructure:"mode"`
	Server   ServerConfig                `mapstructure:"server"`
	Frontend orchestrator.FrontendConfig `mapstructure:"frontend"`
	Backend  orchestrator.BackendConfig  `mapstructure:"backend"`
	Stop     StopConfig                  `mapstructure:"stop"`
	Log      LogConfig                   `mapstructure:"log"`
	Metrics  MetricsConfig               `mapstructure:"metrics"`
	History  HistoryConfig               `mapstructure:"history"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	BasePath        string        `mapstructure:"base_path"`
	CompatPrefix    string        `mapstructure:"compat_prefix"`
	StaticDir       string        `mapstructure:"static_dir"`
	ProxyHost       string        `mapstructure:"proxy_host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             devtls.Config `mapstructure:"tls"`
}

// StopConfig controls StopAll. Wait == 0 returns right after signalling.
type StopConfig struct {
	Wait time.Duration `mapstructure:"wait"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	ProcessDir string `mapstructure:"process_dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Path         string `mapstructure:"path"`
	ProcessStats bool   `mapstructure:"process_stats"`
}

// DefaultHistoryDSN keeps lifecycle history in a SQLite file next to the
// working directory.
const DefaultHistoryDSN = "sqlite://devorch-history.db"

// HistoryConfig lists sink DSNs (sqlite, postgres, clickhouse, opensearch).
// An explicit empty list disables history.
type HistoryConfig struct {
	DSNs []string `mapstructure:"dsns"`
}

func setDefaults(v *viper.Viper) {
	d := orchestrator.DefaultConfig()
	v.SetDefault("mode", ModeDevelopment)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api/viton")
	v.SetDefault("server.compat_prefix", "/api")
	v.SetDefault("server.static_dir", "dist")
	v.SetDefault("server.proxy_host", d.Host)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "")
	v.SetDefault("server.tls.max_version", "")

	v.SetDefault("frontend.label", d.Frontend.Label)
	v.SetDefault("frontend.command", d.Frontend.Command)
	v.SetDefault("frontend.shell", d.Frontend.Shell)
	v.SetDefault("frontend.port", d.Frontend.Port)
	v.SetDefault("frontend.proxy_prefix", d.Frontend.ProxyPrefix)
	v.SetDefault("frontend.env", []string{})

	v.SetDefault("backend.label", d.Backend.Label)
	v.SetDefault("backend.venv", d.Backend.Venv)
	v.SetDefault("backend.command", d.Backend.Command)
	v.SetDefault("backend.port", d.Backend.Port)
	v.SetDefault("backend.proxy_prefix", d.Backend.ProxyPrefix)
	v.SetDefault("backend.env", []string{})

	v.SetDefault("stop.wait", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")
	v.SetDefault("log.file", "")
	v.SetDefault("log.process_dir", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.process_stats", true)

	v.SetDefault("history.dsns", []string{DefaultHistoryDSN})
}

// Load reads the TOML file at path (optional) on top of the defaults and
// applies DEVORCH_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) normalize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Server.BasePath = CleanPrefix(c.Server.BasePath)
	c.Server.CompatPrefix = CleanPrefix(c.Server.CompatPrefix)
	c.Frontend.ProxyPrefix = CleanPrefix(c.Frontend.ProxyPrefix)
	c.Backend.ProxyPrefix = CleanPrefix(c.Backend.ProxyPrefix)
	c.Metrics.Path = CleanPrefix(c.Metrics.Path)
}

// CleanPrefix returns p with exactly one leading slash and no trailing
// slash; "" and "/" yield "".
func CleanPrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeDevelopment, ModeProduction, c.Mode))
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Server.BasePath == "" {
		errs = append(errs, errors.New("server.base_path must not be the root"))
	}
	for name, port := range map[string]int{"frontend.port": c.Frontend.Port, "backend.port": c.Backend.Port} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s out of range: %d", name, port))
		}
	}
	if len(c.Backend.Command) == 0 {
		errs = append(errs, errors.New("backend.command must not be empty"))
	}
	if strings.TrimSpace(c.Frontend.Command) == "" {
		errs = append(errs, errors.New("frontend.command must not be empty"))
	}
	prefixes := map[string]string{}
	for name, p := range map[string]string{
		"server.base_path":      c.Server.BasePath,
		"frontend.proxy_prefix": c.Frontend.ProxyPrefix,
		"backend.proxy_prefix":  c.Backend.ProxyPrefix,
	} {
		if p == "" {
			continue
		}
		if other, dup := prefixes[p]; dup {
			errs = append(errs, fmt.Errorf("%s and %s share the prefix %s", name, other, p))
		}
		prefixes[p] = name
	}
	if c.Stop.Wait < 0 {
		errs = append(errs, errors.New("stop.wait must not be negative"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "color", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the orchestrator routes and proxies are mounted.
func (c *Config) IsDevelopment() bool { return c.Mode == ModeDevelopment }

// Orchestrator derives the orchestrator settings.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Frontend: c.Frontend,
		Backend:  c.Backend,
		StopWait: c.Stop.Wait,
		Host:     c.Server.ProxyHost,
		ProcessLog: logger.Config{
			Dir:        c.Log.ProcessDir,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// LoggerSettings derives the server logger settings.
func (c *Config) LoggerSettings() logger.Settings {
	return logger.Settings{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
