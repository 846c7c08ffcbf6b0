// Package http answers HTTP requests that arrive on the game port. The
// negotiator hands over connections whose first line looks like HTTP/1.1.
package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/core"
	"github.com/pokeescape/pokeescape-server/internal/metrics"
	"github.com/pokeescape/pokeescape-server/internal/transport/tcp"
	"github.com/pokeescape/pokeescape-server/internal/version"
)

// MapCatalog is the read side of the map store used by the API.
type MapCatalog interface {
	Version() version.Version
	AvailableMaps() []string
	Author(name string) (string, bool)
	Render(name string) (string, error)
}

// Registry answers registry snapshots.
type Registry interface {
	Snapshot(ctx context.Context) (core.Snapshot, error)
}

// Deps are the collaborators behind the routes. Metrics may be nil.
type Deps struct {
	Maps     MapCatalog
	Registry Registry
	Coord    tcp.Coordinator
	Session  tcp.SessionConfig
	Metrics  *metrics.Metrics
}

// Server serves HTTP on connections handed over by the negotiator.
type Server struct {
	handler           stdhttp.Handler
	readHeaderTimeout time.Duration
	log               *zerolog.Logger
}

// NewServer builds the router.
func NewServer(deps Deps, readHeaderTimeout time.Duration, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	api := NewAPIHandlers(deps.Maps, deps.Registry, logger)
	router.GET("/health", healthHandler)
	router.GET("/", api.Info)
	router.GET("/api/maps", api.ListMaps)
	router.GET("/api/maps/:name", api.GetMap)
	router.GET("/api/groups", api.Groups)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	// gin's writer refuses the websocket hijack; /ws bypasses the engine.
	mux := stdhttp.NewServeMux()
	mux.Handle("/", router)
	if deps.Coord != nil {
		mux.Handle("/ws", NewWSHandler(deps.Coord, deps.Session, logger, deps.Metrics))
	}

	return &Server{
		handler:           mux,
		readHeaderTimeout: readHeaderTimeout,
		log:               logger,
	}
}

// Handler exposes the routes: /ws plus the gin router for everything else.
func (s *Server) Handler() stdhttp.Handler {
	return s.handler
}

// ServeConn serves requests on one connection until it is closed or ctx is
// done. Keep-alive is off, so a plain request closes the connection after the
// response; a websocket upgrade lasts until the websocket closes.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn, firstLine string, r *bufio.Reader) error {
	rc := newReplayConn(conn, firstLine, r)
	ln := newSingleListener(rc)

	srv := &stdhttp.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv.SetKeepAlivesEnabled(false)

	stop := context.AfterFunc(ctx, func() { _ = srv.Close() })
	defer stop()

	err := srv.Serve(ln)
	if errors.Is(err, errConnDone) || errors.Is(err, stdhttp.ErrServerClosed) {
		return nil
	}
	return err
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
