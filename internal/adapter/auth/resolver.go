package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pztrick/television/internal/domain"
)

// ErrInvalidCredentials is returned when a client presented credentials that
// could not be verified. Missing credentials are not an error.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Resolver derives an identity from an HTTP request.
type Resolver interface {
	Resolve(r *http.Request) (domain.Identity, error)
}

// Chain tries each resolver in order and returns the first authenticated
// identity, or the anonymous identity when none matches.
type Chain []Resolver

func (c Chain) Resolve(r *http.Request) (domain.Identity, error) {
	for _, res := range c {
		if res == nil {
			continue
		}
		id, err := res.Resolve(r)
		if err != nil {
			return domain.Anonymous(), err
		}
		if id.Authenticated {
			return id, nil
		}
	}
	return domain.Anonymous(), nil
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (domain.Identity, error)

func (f ResolverFunc) Resolve(r *http.Request) (domain.Identity, error) {
	return f(r)
}

func logResolved(source string, id domain.Identity) {
	slog.Debug("Identity resolved",
		"source", source,
		"user_id", id.UserID,
		"staff", id.IsStaff,
		"superuser", id.IsSuperuser,
	)
}
