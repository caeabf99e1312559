// Package main is the entry point for the execution broker.
//
// main's job is small:
//  1. Read configuration (flags, env, file)
//  2. Build the logger
//  3. Check the startup preconditions: sandbox root writable, external tool present.
//     Either failing is fatal; the broker never serves traffic it can't handle.
//  4. Wire the dependency graph and start the HTTP server
//
// All actual logic lives in internal/.
package main

import (
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/runbroker/internal/artifact"
	"github.com/sakif/runbroker/internal/config"
	"github.com/sakif/runbroker/internal/executor/process"
	"github.com/sakif/runbroker/internal/identifier"
	"github.com/sakif/runbroker/internal/server"
	"github.com/sakif/runbroker/internal/service"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "runbroker",
		Short: "Execution broker for an external compiler/interpreter",
		Long: `runbroker accepts source code over HTTP, runs it once through an external
tool with the caller's input on stdin, and returns the output.

Each run gets its own temporary source file, a wall-clock timeout that kills
the tool, and cleanup on every path.

Examples:
  runbroker
  runbroker --port 8080 --timeout 10s
  runbroker --config /etc/runbroker.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v, configFile)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Config file (default ./runbroker.yaml if present)")
	bindFlags(cmd, v)

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln(err)
		c.PrintErrln(c.UsageString())
		return err
	})
	return cmd
}

// bindFlags registers the override flags and binds each to its config key.
// Flag defaults are zero values; the real defaults live in config.NewViper.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("host", "", "Interface to listen on (default 0.0.0.0)")
	f.Int("port", 0, "Port to listen on (default 3000)")
	f.String("sandbox", "", "Directory for temporary source files (default ./temp)")
	f.String("tool-dir", "", "Directory containing the external tool (default .)")
	f.String("tool", "", "Explicit path to the external tool (overrides --tool-dir)")
	f.Duration("timeout", 0, "Wall-clock limit per run (default 5s)")
	f.Int("max-concurrent", 0, "Runs allowed at once (default 2 x CPUs)")
	f.String("log-level", "", "debug, info, warn or error (default info)")
	f.String("log-format", "", "text or json (default text)")
	f.Bool("metrics", true, "Serve Prometheus metrics on /metrics")

	for key, flag := range map[string]string{
		"server.host":         "host",
		"server.port":         "port",
		"sandbox.root":        "sandbox",
		"tool.dir":            "tool-dir",
		"tool.path":           "tool",
		"exec.timeout":        "timeout",
		"exec.max_concurrent": "max-concurrent",
		"log.level":           "log-level",
		"log.format":          "log-format",
		"metrics.enabled":     "metrics",
	} {
		// BindPFlag only fails on a nil flag; every name above is registered.
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
}

func runServe(cmd *cobra.Command, v *viper.Viper, configFile string) error {
	// Until the config is read, log with defaults.
	logger := newLogger(os.Stdout, slog.LevelInfo, "text")

	cfg, err := config.Load(v, configFile)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		return err
	}

	level, _ := cfg.Log.SlogLevel() // validated by Load
	logger = newLogger(os.Stdout, level, cfg.Log.Format)
	slog.SetDefault(logger)

	// === STARTUP PRECONDITIONS ===
	store, err := artifact.New(cfg.Sandbox.Root, logger)
	if err != nil {
		logger.Error("sandbox root unusable", slog.String("error", err.Error()))
		return err
	}

	tool, err := process.ResolveTool(cfg.Tool.Dir, cfg.Tool.Path)
	if err != nil {
		logger.Error("external tool unavailable", slog.String("error", err.Error()))
		return err
	}

	// === WIRING ===
	procCfg := process.Config{
		Timeout:       cfg.Exec.Timeout,
		KillGrace:     cfg.Exec.KillGrace,
		MaxConcurrent: cfg.Exec.MaxConcurrent,
		QueueTimeout:  cfg.Exec.QueueTimeout,
	}
	supervisor := process.New(tool, procCfg, logger)
	gate := process.NewGate(procCfg, logger)
	runService := service.NewRunService(identifier.UUIDProvider{}, store, supervisor, gate, cfg.Exec.Timeout, logger)

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Request.MaxBodyBytes,
		MetricsEnabled:  cfg.Metrics.Enabled,
	}, runService, gate, logger)

	logger.Info("execution broker ready",
		slog.String("url", "http://"+net.JoinHostPort("localhost", strconv.Itoa(cfg.Server.Port))),
		slog.String("tool", tool.Path),
		slog.String("sandbox", store.Root()),
		slog.Duration("timeout", cfg.Exec.Timeout),
		slog.Int("maxConcurrent", cfg.Exec.MaxConcurrent),
	)

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(cmd.Context()); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// newLogger builds the process-wide logger. format is "text" or "json".
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func main() {
	if err := newRootCmd(config.NewViper()).Execute(); err != nil {
		// Already logged; the exit code is all that's left.
		os.Exit(1)
	}
}
