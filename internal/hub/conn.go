package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/domain"
)

// ConnOptions tunes a connection's outbound queue and instrumentation.
type ConnOptions struct {
	SendBufferSize int
	Clock          clockwork.Clock
	Metrics        *metrics.WebSocketMetrics
}

// Conn is one live client session. Its identity is fixed at connect time.
type Conn struct {
	id       string
	identity domain.Identity
	ws       *websocket.Conn
	writer   *writer
	metrics  *metrics.WebSocketMetrics
}

var _ domain.Session = (*Conn)(nil)

// NewConn wraps an upgraded socket and starts its writer goroutine.
func NewConn(ws *websocket.Conn, identity domain.Identity, opts ConnOptions) *Conn {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Conn{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
		writer:   newWriter(ws, clock, opts.SendBufferSize, opts.Metrics),
		metrics:  opts.Metrics,
	}
}

// ID returns the connection's unique id.
func (c *Conn) ID() string {
	return c.id
}

// Identity returns the identity resolved at connect time.
func (c *Conn) Identity() domain.Identity {
	return c.identity
}

// Send enqueues one encoded frame without blocking. A full or closed queue drops
// the frame; it is logged, never retried.
func (c *Conn) Send(frame []byte) bool {
	if c.writer.enqueue(outbound{data: frame}) {
		return true
	}
	if c.metrics != nil {
		c.metrics.FramesDropped.Inc()
	}
	slog.Warn("Dropping frame for connection", "conn_id", c.id, "bytes", len(frame))
	return false
}

// SendJSON encodes v and sends it.
func (c *Conn) SendJSON(v any) bool {
	frame, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode frame", "conn_id", c.id, "error", err)
		return false
	}
	return c.Send(frame)
}

// CloseAfterFlush closes the connection once every frame queued so far is written.
// If the queue is full the connection is closed right away.
func (c *Conn) CloseAfterFlush() {
	if !c.writer.enqueue(outbound{close: true}) {
		go c.writer.stopGraceful("closed by server")
	}
}

// Close sends a close frame with reason and tears the socket down.
func (c *Conn) Close(reason string) {
	c.writer.stopGraceful(reason)
}

// Serve reads frames until the socket fails or ctx is done, calling onMessage for
// each text frame. It returns the close code reported by the peer, or
// websocket.CloseAbnormalClosure when there was none.
func (c *Conn) Serve(ctx context.Context, onMessage func(raw []byte)) int {
	stop := context.AfterFunc(ctx, func() { c.writer.stopGraceful("server shutting down") })
	defer stop()
	defer c.writer.stop()

	for {
		kind, raw, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return closeErr.Code
			}
			return websocket.CloseAbnormalClosure
		}
		c.writer.updateReadDeadline()
		c.writer.recordActivity()
		if kind != websocket.TextMessage {
			continue
		}
		onMessage(raw)
	}
}
