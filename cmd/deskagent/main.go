// Deskagent is the local conversation service behind the desktop shell. It
// loads settings, binds a completion provider, and serves the HTTP interface
// on loopback until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/deskagent/deskagent"
	"github.com/deskagent/deskagent/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		host       string
		port       int
		configPath string
		dataDir    string
		logLevel   string
		logFormat  string
	)

	pflag.StringVar(&host, "host", "", "listen address (overrides settings file)")
	pflag.IntVar(&port, "port", 0, "listen port (overrides settings file)")
	pflag.StringVar(&configPath, "config", "", "path to the YAML settings file")
	pflag.StringVar(&dataDir, "data-dir", "", "per-user data directory (overrides settings file)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pflag.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	pflag.Parse()

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(logLevel),
		Format: logFormat,
		Output: os.Stderr,
	})

	if dataDir != "" {
		os.Setenv("DESKAGENT_DATA_DIR", dataDir)
	}

	da, err := deskagent.New(func(o *deskagent.Options) {
		o.ConfigPath = configPath
		o.Logger = logger
	})
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	defer da.Shutdown()

	settings := da.Settings()
	if host != "" {
		settings.Host = host
	}
	if port != 0 {
		settings.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		"host", settings.Host,
		"port", settings.Port,
		"provider", settings.Runtime.Provider,
		"model", settings.Runtime.Model,
		"data_dir", settings.DataDir)

	if err := da.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
