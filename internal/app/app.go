package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pokeescape/pokeescape-server/internal/catalog"
	"github.com/pokeescape/pokeescape-server/internal/config"
	"github.com/pokeescape/pokeescape-server/internal/core"
	"github.com/pokeescape/pokeescape-server/internal/log"
	"github.com/pokeescape/pokeescape-server/internal/metrics"
	"github.com/pokeescape/pokeescape-server/internal/pool"
	transporthttp "github.com/pokeescape/pokeescape-server/internal/transport/http"
	"github.com/pokeescape/pokeescape-server/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	cfg    config.Config
	coord  *core.Coordinator
	pool   *pool.Pool
	server *tcp.Server
	log    *zerolog.Logger
}

var errListenerClosed = errors.New("listener closed")

// New loads the map catalog and builds every component. A catalog that
// cannot be loaded is fatal.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	maps, err := catalog.Load(cfg.Maps, log.Component(logger, "catalog"))
	if err != nil {
		return nil, fmt.Errorf("load maps: %w", err)
	}
	logger.Info().
		Str("catalog_version", maps.Version().String()).
		Strs("maps", maps.AvailableMaps()).
		Msg("maps loaded")

	m := metrics.New()
	coord := core.NewCoordinator(maps, log.Component(logger, "coordinator"), m)

	p, err := pool.New(cfg.Threads, log.Component(logger, "pool"), m)
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	sessionCfg := tcp.SessionConfig{
		IdleTimeout:       cfg.IdleTimeout,
		CloseOnDisconnect: cfg.CloseOnDisconnect,
	}
	httpServer := transporthttp.NewServer(transporthttp.Deps{
		Maps:     maps,
		Registry: coord,
		Coord:    coord,
		Session:  sessionCfg,
		Metrics:  m,
	}, cfg.ReadHeaderTimeout, log.Component(logger, "http"))

	server := tcp.NewServer(tcp.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Session:          sessionCfg,
	}, coord, p, httpServer, log.Component(logger, "tcp"), m)

	return &App{
		cfg:    cfg,
		coord:  coord,
		pool:   p,
		server: server,
		log:    logger,
	}, nil
}

// Coordinator exposes the coordinator for inspection.
func (a *App) Coordinator() *core.Coordinator {
	return a.coord
}

// Run listens on the configured address and blocks until ctx is cancelled or
// the listener fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		_ = a.pool.Shutdown(context.Background())
		a.coord.Close()
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	go a.coord.Run(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil {
			return err
		}
		if ctx.Err() == nil {
			return errListenerClosed
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down")
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.log.Warn().Err(err).Msg("failed to close listener")
		}
		a.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown drains the pool, forcing connections closed once the grace period
// runs out, then stops the coordinator.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	err := a.pool.Shutdown(ctx)
	cancel()
	if err != nil {
		n := a.server.CloseConnections()
		a.log.Warn().Err(err).Int("connections", n).Msg("grace period over, closing connections")

		ctx, cancel = context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		if err := a.pool.Shutdown(ctx); err != nil {
			a.log.Error().Err(err).Msg("workers still busy after closing connections")
		}
		cancel()
	}
	a.coord.Close()
	select {
	case <-a.coord.Done():
		a.log.Info().Msg("coordinator stopped")
	case <-time.After(a.cfg.ShutdownTimeout):
		a.log.Warn().Msg("coordinator did not stop in time")
	}
}
