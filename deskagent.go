// Package deskagent provides a high-level façade over the conversation
// service: settings resolution, provider binding, and the HTTP transport.
// Most applications interact with this package by:
//  1. Creating a DeskAgent via New() (optionally overriding the settings
//     path, logger, or provider binding)
//  2. Serving it with ListenAndServe, or mounting Handler() into an
//     existing server
//
// The façade delegates orchestration to agent.Orchestrator via
// server.Service while keeping setup ergonomics concise. All defaults are
// safe for local use; the embedding shell typically supplies only a data
// directory.
package deskagent

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/deskagent/deskagent/agent"
	"github.com/deskagent/deskagent/config"
	"github.com/deskagent/deskagent/logging"
	"github.com/deskagent/deskagent/model"
	"github.com/deskagent/deskagent/server"
)

// Options configures the DeskAgent instance.
type Options struct {
	// ConfigPath points at the optional YAML settings file.
	ConfigPath string

	// Logger defaults to a no-op logger if nil.
	Logger logging.Logger

	// Model overrides the provider binding built from the runtime config.
	Model model.Model
}

// DeskAgent aggregates the resolved settings, the service object graph and
// its HTTP transport.
type DeskAgent struct {
	settings *config.Settings
	service  *server.Service
	httpSrv  *server.Server
}

// New creates a DeskAgent with optional overrides.
func New(optFns ...func(o *Options)) (*DeskAgent, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	settings, err := config.Load(opts.ConfigPath, func(o *config.Options) { o.Logger = opts.Logger })
	if err != nil {
		return nil, err
	}

	service := server.NewService(settings, func(o *server.ServiceOptions) {
		o.Logger = opts.Logger
		o.Model = opts.Model
	})

	return &DeskAgent{
		settings: settings,
		service:  service,
		httpSrv:  server.New(service, func(o *server.Options) { o.Logger = opts.Logger }),
	}, nil
}

// Settings returns the resolved process configuration.
func (d *DeskAgent) Settings() *config.Settings { return d.settings }

// Orchestrator exposes the conversation engine for direct embedding without
// the HTTP layer.
func (d *DeskAgent) Orchestrator() *agent.Orchestrator { return d.service.Orchestrator() }

// Handler returns the full HTTP handler for mounting into another server.
func (d *DeskAgent) Handler() http.Handler { return d.httpSrv.Handler() }

// ListenAndServe serves the HTTP interface on the configured host and port
// until ctx is cancelled.
func (d *DeskAgent) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(d.settings.Host, strconv.Itoa(d.settings.Port))
	return d.httpSrv.ListenAndServe(ctx, addr)
}

// Shutdown stops the background scheduler loop.
func (d *DeskAgent) Shutdown() { d.service.Shutdown() }
