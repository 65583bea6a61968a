// Package app wires the pipeline, stores, event mirror and HTTP surface
// into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"

	"botpipe/internal/retention"
	"botpipe/pkg/config"
	"botpipe/pkg/connector"
	"botpipe/pkg/events"
	"botpipe/pkg/logger"
	"botpipe/pkg/pipeline"
	"botpipe/pkg/store"
	"botpipe/pkg/transcript"
	"botpipe/pkg/validation"
)

// App encapsulates the service components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	store   transcript.Store
	pebble  *store.PebbleStore
	adapter *pipeline.Adapter
	bot     *EchoBot
	pub     events.Publisher

	srv *http.Server
}

// New initializes resources that do not require a running context: the
// transcript store, validation rules and the pipeline. Call Run to start
// the broker connection, retention and the HTTP server.
func New(cfg *config.Config, version string) (*App, error) {
	a := &App{cfg: cfg, version: version}

	validation.SetRules(validation.Rules{
		MaxTextLen:  cfg.Validation.MaxTextLen,
		RequireFrom: cfg.Validation.RequireFrom,
	})

	switch cfg.Storage.Backend {
	case "memory":
		a.store = transcript.NewMemoryStore()
	case "pebble", "":
		ps, err := store.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
		}
		a.pebble = ps
		a.store = ps
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	var transport pipeline.Transport
	switch cfg.Channel.Transport {
	case "loopback", "":
		transport = connector.NewLoopback()
	case "http":
		transport = connector.NewHTTPTransport(cfg.Channel.CallbackTimeout)
	default:
		return nil, fmt.Errorf("unknown channel transport: %s", cfg.Channel.Transport)
	}

	a.bot = NewEchoBot()
	a.adapter = pipeline.NewAdapter(transport).
		Use(transcript.NewLogger(a.store)).
		OnTurnError(func(ctx context.Context, tc *pipeline.TurnContext, err error) error {
			logger.Error("turn_aborted", "conversation", tc.Ref.Conversation, "error", err)
			return err
		})

	return a, nil
}

// Run connects optional collaborators, starts the HTTP server and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Events.Enabled {
		pub, err := events.Dial(ctx, events.DialOptions{
			URL:      a.cfg.Events.URL,
			Exchange: a.cfg.Events.Exchange,
		})
		if err != nil {
			return fmt.Errorf("failed to connect event broker: %w", err)
		}
		a.pub = pub
		a.adapter.Use(events.NewMirror(pub))
	}

	stopRetention, err := retention.Start(ctx, a.store, retention.Options{
		Enabled:   a.cfg.Retention.Enabled,
		ChannelID: a.cfg.Channel.ID,
		Cron:      a.cfg.Retention.Cron,
		Period:    a.cfg.Retention.Period,
	})
	if err != nil {
		return err
	}
	defer stopRetention()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// shutdown releases resources in reverse startup order.
func (a *App) shutdown() {
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
	}
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			logger.Warn("event_publisher_close_failed", "error", err)
		}
	}
	if a.pebble != nil {
		if err := a.pebble.Close(); err != nil {
			logger.Warn("store_close_failed", "error", err)
		}
	}
	logger.Info("shutdown_complete")
}
