package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
	checkOK               = "ok"
)

// HealthCheck is a named dependency probe (Redis, Postgres).
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// probeReport is the body of the startup and readiness probes.
type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Failed []string          `json:"failed,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.writeProbe(c, startupProbeTimeout)
}

// handleReadiness reports draining once Shutdown has begun.
func (s *Server) handleReadiness(c echo.Context) error {
	if s.connCtx.Err() != nil {
		return s.writeJSON(c, http.StatusServiceUnavailable, probeReport{Status: "draining", Checks: map[string]string{}}, "readiness")
	}
	return s.writeProbe(c, readinessProbeTimeout)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return s.writeJSON(c, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      s.clock.Since(s.startTime).Seconds(),
		"connections": s.limits.Current(),
	}, "liveness")
}

func (s *Server) handleVersion(c echo.Context) error {
	return s.writeJSON(c, http.StatusOK, version.Get(), "version")
}

func (s *Server) writeProbe(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	report := s.runHealthChecks(ctx)
	status := http.StatusOK
	if len(report.Failed) > 0 {
		status = http.StatusServiceUnavailable
	}
	return s.writeJSON(c, status, report, "probe")
}

// runHealthChecks probes every dependency concurrently and reports each result.
func (s *Server) runHealthChecks(ctx context.Context) probeReport {
	report := probeReport{Status: "ready", Checks: make(map[string]string, len(s.healthChecks))}

	var mu sync.Mutex
	var g errgroup.Group
	for _, hc := range s.healthChecks {
		g.Go(func() error {
			result := checkOK
			if err := hc.Check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			report.Checks[hc.Name] = result
			if result != checkOK {
				report.Failed = append(report.Failed, hc.Name)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(report.Failed) > 0 {
		report.Status = "unhealthy"
		sort.Strings(report.Failed)
	}
	return report
}

func (s *Server) writeJSON(c echo.Context, status int, body any, what string) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write %s response: %w", what, err)
	}
	return nil
}

func (s *Server) wsMetrics() *metrics.WebSocketMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.WebSocket
}
