package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"botpipe/pkg/api"
	"botpipe/pkg/api/handlers"
	"botpipe/pkg/auth"
	"botpipe/pkg/logger"
)

const httpShutdownTimeout = 10 * time.Second

// setupHTTPHandlers mounts the API, health probes and metrics.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	env := &handlers.Env{
		Adapter:   a.adapter,
		Bot:       a.bot.Handle,
		Store:     a.store,
		ChannelID: a.cfg.Channel.ID,
	}
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.Handler(env))
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if a.pebble != nil && !a.pebble.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + a.version + `"}`))
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// startHTTP builds the handler stack, starts the server in a goroutine
// and returns a channel carrying any fatal server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	secCfg := auth.SecConfig{
		RPS:        a.cfg.Security.RateLimit.RPS,
		Burst:      a.cfg.Security.RateLimit.Burst,
		IngestKeys: keySet(a.cfg.Security.APIKeys.Ingest),
		ReaderKeys: keySet(a.cfg.Security.APIKeys.Reader),
		AdminKeys:  keySet(a.cfg.Security.APIKeys.Admin),
	}
	handler := auth.Middleware(secCfg)(mux)

	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}
