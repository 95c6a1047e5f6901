package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pztrick/television/internal/platform/httperr"
)

func limitedCall(t *testing.T, mw echo.MiddlewareFunc, remoteAddr string) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/debug/channels", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()

	h := httperr.Middleware(nil)(mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) }))
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec.Code
}

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	mw := newRateLimiter(0.01, 2)

	assert.Equal(t, http.StatusOK, limitedCall(t, mw, "1.2.3.4:1000"))
	assert.Equal(t, http.StatusOK, limitedCall(t, mw, "1.2.3.4:1001"))
	assert.Equal(t, http.StatusTooManyRequests, limitedCall(t, mw, "1.2.3.4:1002"))
}

func TestRateLimiter_PerClientIP(t *testing.T) {
	mw := newRateLimiter(0.01, 1)

	assert.Equal(t, http.StatusOK, limitedCall(t, mw, "1.2.3.4:1000"))
	assert.Equal(t, http.StatusOK, limitedCall(t, mw, "5.6.7.8:1000"))
	assert.Equal(t, http.StatusTooManyRequests, limitedCall(t, mw, "1.2.3.4:1001"))
}
