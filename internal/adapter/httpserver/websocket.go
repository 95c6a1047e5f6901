package httpserver

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/pztrick/television/internal/adapter/auth"
	"github.com/pztrick/television/internal/hub"
	"github.com/pztrick/television/internal/platform/correlation"
	"github.com/pztrick/television/internal/platform/httperr"
)

// handleWebSocket upgrades the request, joins the connection to its identity's
// groups and feeds every inbound frame to the dispatcher until the socket closes.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		s.reject(string(reason))
		slog.Warn("WebSocket connection rejected", "ip", ip, "reason", reason)
		if reason == LimitReasonGlobal {
			return httperr.Unavailable("server at capacity", nil)
		}
		return httperr.RateLimited("too many connections")
	}
	defer s.limits.Release(ip)

	identity, err := s.resolver.Resolve(c.Request())
	if err != nil {
		s.reject("auth")
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return httperr.Unauthorized("invalid credentials")
		}
		return httperr.Internal("identity resolution failed", err)
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.reject("upgrade")
		slog.Debug("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	conn := hub.NewConn(ws, identity, hub.ConnOptions{
		SendBufferSize: s.config.SendBufferSize,
		Clock:          s.clock,
		Metrics:        s.wsMetrics(),
	})
	ctx := correlation.WithConnID(s.connCtx, conn.ID())

	if err := s.directory.Connect(conn, identity); err != nil {
		slog.ErrorContext(ctx, "Failed to join groups", "error", err)
		conn.Close("server unavailable")
		return nil
	}
	if m := s.wsMetrics(); m != nil {
		m.ActiveConnections.Inc()
		defer m.ActiveConnections.Dec()
	}
	slog.InfoContext(ctx, "Client connected",
		"ip", ip,
		"authenticated", identity.Authenticated,
		"user_id", identity.UserID,
	)

	code := conn.Serve(ctx, func(raw []byte) {
		s.dispatcher.Go(ctx, conn, raw)
	})

	left, err := s.directory.Disconnect(conn)
	if err != nil {
		slog.WarnContext(ctx, "Failed to leave groups", "error", err)
	}
	slog.InfoContext(ctx, "Client disconnected", "close_code", code, "groups_left", left)
	return nil
}

func (s *Server) reject(reason string) {
	if m := s.wsMetrics(); m != nil {
		m.ConnectionsRejected.WithLabelValues(reason).Inc()
	}
}
