package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the test into an empty directory so a stray
// ./runbroker.yaml can't leak into the result.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "temp", cfg.Sandbox.Root)
	assert.Equal(t, ".", cfg.Tool.Dir)
	assert.Empty(t, cfg.Tool.Path)
	assert.Equal(t, 5*time.Second, cfg.Exec.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Exec.KillGrace)
	assert.Equal(t, 2*runtime.NumCPU(), cfg.Exec.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.Exec.QueueTimeout)
	assert.Equal(t, int64(1<<20), cfg.Request.MaxBodyBytes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RUNBROKER_EXEC_TIMEOUT", "3s")
	t.Setenv("RUNBROKER_SANDBOX_ROOT", "/var/tmp/runs")
	t.Setenv("RUNBROKER_LOG_FORMAT", "json")
	t.Setenv("RUNBROKER_METRICS_ENABLED", "false")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Exec.Timeout)
	assert.Equal(t, "/var/tmp/runs", cfg.Sandbox.Root)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_BarePort(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "8080")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	t.Setenv("RUNBROKER_SERVER_PORT", "9090")
	cfg, err = Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port, "prefixed variable wins over PORT")
}

func TestLoad_ImplicitFile(t *testing.T) {
	dir := chdirTemp(t)
	yaml := "exec:\n  timeout: 7s\n  max_concurrent: 3\ntool:\n  path: /opt/lang/app\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runbroker.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Exec.Timeout)
	assert.Equal(t, 3, cfg.Exec.MaxConcurrent)
	assert.Equal(t, "/opt/lang/app", cfg.Tool.Path)
}

func TestLoad_ExplicitFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4000\n"), 0o644))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	t.Setenv("RUNBROKER_CONFIG", path)

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exec:\n  timeout: 7s\n"), 0o644))
	t.Setenv("RUNBROKER_EXEC_TIMEOUT", "2s")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Exec.Timeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)

	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: reading")
}

func TestLoad_InvalidValue(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RUNBROKER_EXEC_MAX_CONCURRENT", "0")

	_, err := Load(NewViper(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec.max_concurrent must be positive")
}

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0", Port: 3000,
			ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second, ShutdownTimeout: 30 * time.Second,
		},
		Sandbox: SandboxConfig{Root: "temp"},
		Tool:    ToolConfig{Dir: "."},
		Exec: ExecConfig{
			Timeout: 5 * time.Second, KillGrace: 2 * time.Second,
			MaxConcurrent: 4, QueueTimeout: 10 * time.Second,
		},
		Request: RequestConfig{MaxBodyBytes: 1 << 20},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "empty sandbox", mutate: func(c *Config) { c.Sandbox.Root = "" }, wantErr: "sandbox.root"},
		{name: "zero timeout", mutate: func(c *Config) { c.Exec.Timeout = 0 }, wantErr: "exec.timeout"},
		{name: "negative kill grace", mutate: func(c *Config) { c.Exec.KillGrace = -time.Second }, wantErr: "exec.kill_grace"},
		{name: "zero kill grace", mutate: func(c *Config) { c.Exec.KillGrace = 0 }, wantErr: "exec.kill_grace"},
		{name: "zero queue timeout", mutate: func(c *Config) { c.Exec.QueueTimeout = 0 }, wantErr: "exec.queue_timeout"},
		{name: "zero body cap", mutate: func(c *Config) { c.Request.MaxBodyBytes = 0 }, wantErr: "request.max_body_bytes"},
		{name: "write timeout too short", mutate: func(c *Config) { c.Server.WriteTimeout = 10 * time.Second }, wantErr: "server.write_timeout"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log.level"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "warn"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, "WARN", level.String())
}
