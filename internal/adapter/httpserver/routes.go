package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/platform/httperr"
)

// WebSocketPath is the upgrade endpoint clients connect to.
const WebSocketPath = "/tv/"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(requestLoggerMiddleware())
	s.echo.Use(middleware.Recover())

	s.echo.Use(httperr.Middleware(s.errorCounter()))
	if s.metrics != nil {
		s.echo.Use(s.metrics.HTTP.Middleware(WebSocketPath))
	}

	s.echo.GET(WebSocketPath, s.handleWebSocket)

	s.registerHealthRoutes()
	if s.promReg != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.promReg)))
	}

	debug := s.echo.Group("/debug", newRateLimiter(s.config.ConnectionRatePerSecond, s.config.ConnectionBurst))
	debug.GET("/channels", s.handleChannels)
	debug.GET("/groups", s.handleGroups)
	debug.GET("/instances", s.handleInstances)
}
