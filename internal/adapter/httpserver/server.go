package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pztrick/television/internal/adapter/auth"
	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/adapter/redis"
	"github.com/pztrick/television/internal/dispatch"
	"github.com/pztrick/television/internal/hub"
	"github.com/pztrick/television/internal/platform/config"
	"github.com/pztrick/television/internal/registry"
)

// Deps are the collaborators the server routes traffic to.
type Deps struct {
	Directory    *hub.Directory
	Dispatcher   *dispatch.Dispatcher
	Registry     *registry.Registry
	Resolver     auth.Resolver
	Metrics      *metrics.Metrics
	Prometheus   *prometheus.Registry
	HealthChecks []HealthCheck
	// Instances lists peers on the channel layer. Nil in single-instance mode.
	Instances InstanceLister
	Clock     clockwork.Clock
}

// InstanceLister reports the server instances sharing the channel layer.
type InstanceLister interface {
	Active(ctx context.Context) ([]redis.InstanceInfo, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	directory  *hub.Directory
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	resolver   auth.Resolver
	metrics    *metrics.Metrics
	promReg    *prometheus.Registry
	clock      clockwork.Clock

	upgrader     websocket.Upgrader
	limits       *ConnectionLimits
	healthChecks []HealthCheck
	instances    InstanceLister
	startTime    time.Time

	// connCtx outlives individual requests; it is cancelled on Shutdown so
	// hijacked WebSocket connections close with a going-away frame.
	connCtx    context.Context
	cancelConn context.CancelFunc
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		echo:         e,
		config:       cfg,
		directory:    deps.Directory,
		dispatcher:   deps.Dispatcher,
		registry:     deps.Registry,
		resolver:     deps.Resolver,
		metrics:      deps.Metrics,
		promReg:      deps.Prometheus,
		clock:        clock,
		upgrader:     newUpgrader(cfg.Origins(), !cfg.IsProduction()),
		healthChecks: deps.HealthChecks,
		instances:    deps.Instances,
		startTime:    clock.Now(),
		connCtx:      ctx,
		cancelConn:   cancel,
		limits: NewConnectionLimits(
			int64(cfg.MaxWebSocketConnections),
			cfg.MaxConnectionsPerIP,
			cfg.ConnectionRatePerSecond,
			cfg.ConnectionBurst,
		),
	}
	if srv.resolver == nil {
		srv.resolver = auth.Chain{}
	}

	srv.registerRoutes()
	return srv
}

// ServeHTTP lets tests drive the router through httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown closes live WebSocket connections and stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelConn()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Limits exposes the connection limiter for the ops endpoints and tests.
func (s *Server) Limits() *ConnectionLimits {
	return s.limits
}

// newUpgrader restricts browser origins to the allowlist when one is set.
// Requests without an Origin header come from non-browser clients and pass.
// In development localhost origins are accepted as well.
func newUpgrader(origins []string, development bool) websocket.Upgrader {
	u := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(origins) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, origin) {
				return true
			}
			if development && isLocalhostOrigin(origin) {
				return true
			}
			slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
			return false
		}
	}
	return u
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
