package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/pztrick/television/internal/platform/httperr"
)

// Idle per-IP buckets are dropped after this long.
const opsLimiterExpiry = 5 * time.Minute

// newRateLimiter throttles the /debug endpoints per client IP, reusing the
// connection accept rate. Denials surface as structured rate_limited errors.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(ratePerSecond),
		Burst:     burst,
		ExpiresIn: opsLimiterExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(_ echo.Context, ip string, _ error) error {
			return httperr.RateLimited("too many debug requests").With("client_ip", ip)
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return httperr.Internal("rate limiter failed", err)
		},
	})
}
