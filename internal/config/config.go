// Package config loads broker settings with viper.
//
// PRECEDENCE (highest wins):
//
//	cobra flags → RUNBROKER_* env → YAML file → built-in defaults
//
// The YAML file comes from --config, then RUNBROKER_CONFIG, then
// ./runbroker.yaml if present. A file named explicitly must exist; the
// implicit one is optional.
//
// The bare PORT variable is honoured for server.port, below RUNBROKER_SERVER_PORT.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "RUNBROKER"

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SandboxConfig struct {
	Root string `mapstructure:"root"`
}

// ToolConfig locates the external tool. Path, when set, wins over Dir.
type ToolConfig struct {
	Dir  string `mapstructure:"dir"`
	Path string `mapstructure:"path"`
}

type ExecConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	KillGrace     time.Duration `mapstructure:"kill_grace"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
}

type RequestConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Tool    ToolConfig    `mapstructure:"tool"`
	Exec    ExecConfig    `mapstructure:"exec"`
	Request RequestConfig `mapstructure:"request"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// NewViper returns a viper instance with defaults and environment binding
// in place. Callers may bind flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("sandbox.root", "temp")
	v.SetDefault("tool.dir", ".")
	v.SetDefault("tool.path", "")
	v.SetDefault("exec.timeout", 5*time.Second)
	v.SetDefault("exec.kill_grace", 2*time.Second)
	v.SetDefault("exec.max_concurrent", 2*runtime.NumCPU())
	v.SetDefault("exec.queue_timeout", 10*time.Second)
	v.SetDefault("request.max_body_bytes", int64(1<<20))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// BindEnv only errors when called with no key.
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")

	return v
}

// Load reads the optional config file into v, decodes everything and validates it.
// file may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file == "" {
		file = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", file, err)
		}
	} else {
		v.SetConfigName("runbroker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: reading runbroker.yaml: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the broker cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be 1-65535, got %d", c.Server.Port)
	check(c.Server.ReadTimeout > 0, "server.read_timeout must be positive")
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout must be positive")
	check(c.Sandbox.Root != "", "sandbox.root must not be empty")
	check(c.Exec.Timeout > 0, "exec.timeout must be positive")
	check(c.Exec.KillGrace > 0, "exec.kill_grace must be positive")
	check(c.Exec.MaxConcurrent > 0, "exec.max_concurrent must be positive, got %d", c.Exec.MaxConcurrent)
	check(c.Exec.QueueTimeout > 0, "exec.queue_timeout must be positive")
	check(c.Request.MaxBodyBytes > 0, "request.max_body_bytes must be positive")

	// A response that outlives the write deadline is cut off mid-body.
	worst := c.Exec.QueueTimeout + c.Exec.Timeout + c.Exec.KillGrace
	check(c.Server.WriteTimeout > worst,
		"server.write_timeout (%s) must exceed exec.queue_timeout + exec.timeout + exec.kill_grace (%s)",
		c.Server.WriteTimeout, worst)

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format must be text or json, got %q", c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
