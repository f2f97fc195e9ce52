package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Code4me2/data-compose/internal/observability"
	"github.com/Code4me2/data-compose/internal/platform/logger"
)

const (
	ensureIndexTimeout = 10 * time.Second
	shutdownTimeout    = 15 * time.Second
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Services Services

	server       *http.Server
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "haystack-service",
	})

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	// Bring the index up if Elasticsearch is reachable. A failure here
	// is not fatal: the cluster may still be starting, and every
	// operation reports availability on its own.
	ensureCtx, cancel := context.WithTimeout(ctx, ensureIndexTimeout)
	if created, err := clients.Store.EnsureIndex(ensureCtx); err != nil {
		log.Warn("index bootstrap failed, continuing", "error", err)
	} else if created {
		log.Info("created index", "index", clients.Store.IndexName())
	}
	cancel()

	svcs := wireServices(log, clients)
	handlerset := wireHandlers(svcs)
	router := wireRouter(log, cfg, handlerset)

	return &App{
		Log:      log,
		Cfg:      cfg,
		Clients:  clients,
		Services: svcs,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: router,
		},
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled or the listener fails, then
// drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
