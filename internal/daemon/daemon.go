package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/api"
	"github.com/vibe-dev/academy/internal/app/engagement"
	"github.com/vibe-dev/academy/internal/health"
	"github.com/vibe-dev/academy/internal/infra/catalog"
	"github.com/vibe-dev/academy/internal/infra/localstore"
	"github.com/vibe-dev/academy/internal/infra/logging"
	"github.com/vibe-dev/academy/internal/infra/sqlite"
)

// Daemon is the running engine with all its resources.
type Daemon struct {
	Config Config
	Log    *zap.Logger
	DB     *sqlite.DB
	Local  *localstore.Store
	Engine *engagement.Engine
	Health *health.Checker
	Server *api.Server

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a daemon with config loaded from disk.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a daemon with the given config.
func NewWithConfig(cfg Config) (*Daemon, error) {
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.LoadFile(cfg.Catalog.File)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.Store.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	local, err := localstore.Open(cfg.Local.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	eng, err := engagement.NewEngine(db, local, cat, cfg.EngineConfig(), log)
	if err != nil {
		local.Close()
		db.Close()
		return nil, err
	}

	d := &Daemon{
		Config: cfg,
		Log:    log,
		DB:     db,
		Local:  local,
		Engine: eng,
	}

	d.Health = health.NewChecker(health.Options{
		Remote:  db,
		Local:   local,
		DataDir: cfg.Local.Dir,
		Backlog: func() (int, error) {
			users, err := eng.Mirror.DirtyUsers()
			return len(users), err
		},
		MaxBacklog: 100,
		Drain:      eng.ReconcileNow,
	})

	d.Server = api.NewServer(eng, d.Health, log.Named("api"))
	d.Server.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}
	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.Engine.Start(); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Serve returns only after shutdown has flushed queued XP.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		d.shutdown(shutdownCtx)
	}()

	fmt.Printf("Vibe gamification engine serving on http://%s\n", addr)
	fmt.Printf("  Store: %s\n", d.Config.Store.Dir)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	} else {
		cancel()
	}
	<-stopped
	return err
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.shutdown(ctx)
}

// shutdown flushes sessions before the stores go away. Runs once.
func (d *Daemon) shutdown(ctx context.Context) {
	d.stopOnce.Do(func() { d.stop(ctx) })
}

func (d *Daemon) stop(ctx context.Context) {
	if d.Engine != nil {
		if err := d.Engine.Close(ctx); err != nil {
			d.Log.Warn("engine shutdown", zap.Error(err))
		}
	}
	if d.Local != nil {
		_ = d.Local.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	_ = d.Log.Sync()
}
