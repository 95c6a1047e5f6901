package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pztrick/television/internal/adapter/auth"
	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/dispatch"
	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/hub"
	"github.com/pztrick/television/internal/platform/config"
	"github.com/pztrick/television/internal/registry"
)

const testSecret = "test-jwt-secret-0123456789"

type testServer struct {
	*Server
	tokens  *auth.TokenResolver
	dir     *hub.Directory
	metrics *metrics.Metrics
}

type testOption func(*config.Config, *Deps)

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(_ *config.Config, d *Deps) { d.HealthChecks = checks }
}

func withLimits(global, perIP int, ratePerSecond float64, burst int) testOption {
	return func(c *config.Config, _ *Deps) {
		c.MaxWebSocketConnections = global
		c.MaxConnectionsPerIP = perIP
		c.ConnectionRatePerSecond = ratePerSecond
		c.ConnectionBurst = burst
	}
}

func withOrigins(origins string) testOption {
	return func(c *config.Config, _ *Deps) { c.AllowedOrigins = origins }
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                    "0",
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     100,
		ConnectionRatePerSecond: 100,
		ConnectionBurst:         100,
		SendBufferSize:          16,
	}
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Listen("ping", func(context.Context, domain.Session, registry.Args) (any, error) {
		return "pong", nil
	}))
	require.NoError(t, reg.Listen("whoami", func(_ context.Context, s domain.Session, _ registry.Args) (any, error) {
		id := s.Identity()
		return map[string]any{"user_id": id.UserID, "staff": id.IsStaff}, nil
	}))
	require.NoError(t, reg.Listen("fail", func(context.Context, domain.Session, registry.Args) (any, error) {
		return nil, errors.New("boom")
	}))
	reg.Seal()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	dir := hub.NewDirectory(nil, nil, m.Groups)
	t.Cleanup(dir.Stop)

	disp, err := dispatch.New(reg, dispatch.Options{Metrics: m.Dispatch})
	require.NoError(t, err)

	tokens := auth.NewTokenResolver(testSecret, "television")
	cfg := testConfig()
	deps := Deps{
		Directory:  dir,
		Dispatcher: disp,
		Registry:   reg,
		Resolver:   auth.Chain{tokens},
		Metrics:    m,
		Prometheus: promReg,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	srv := NewServer(cfg, deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		disp.Wait()
	})
	return &testServer{Server: srv, tokens: tokens, dir: dir, metrics: m}
}

func (ts *testServer) token(t *testing.T, id domain.Identity) string {
	t.Helper()
	token, err := ts.tokens.Sign(id, time.Minute)
	require.NoError(t, err)
	return token
}

// dial starts an httptest server around ts and opens a WebSocket to it.
func dial(t *testing.T, ts *testServer, token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	httpSrv := httptest.NewServer(ts)
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + WebSocketPath
	if token != "" {
		url += "?token=" + token
	}
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if ws != nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(v))
}
