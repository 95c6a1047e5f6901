package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/sessions"

	"github.com/pztrick/television/internal/domain"
)

// Session value keys written by the auth application.
const (
	SessionKeyUserID    = "user_id"
	SessionKeyStaff     = "is_staff"
	SessionKeySuperuser = "is_superuser"
)

// NewCookieStore builds the cookie store shared with the auth application.
func NewCookieStore(secret string, maxAge time.Duration, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// SessionResolver reads the identity from a gorilla session.
type SessionResolver struct {
	store sessions.Store
	name  string
}

func NewSessionResolver(store sessions.Store, name string) *SessionResolver {
	return &SessionResolver{store: store, name: name}
}

// Resolve returns the anonymous identity for a missing or undecodable cookie.
// A tampered cookie is indistinguishable from an expired one to the client.
func (s *SessionResolver) Resolve(r *http.Request) (domain.Identity, error) {
	session, err := s.store.Get(r, s.name)
	if err != nil {
		slog.Debug("Ignoring unreadable session cookie", "error", err)
		return domain.Anonymous(), nil
	}

	userID, ok := stringValue(session.Values[SessionKeyUserID])
	if !ok {
		return domain.Anonymous(), nil
	}

	id := domain.Identity{
		Authenticated: true,
		UserID:        userID,
		IsStaff:       boolValue(session.Values[SessionKeyStaff]),
		IsSuperuser:   boolValue(session.Values[SessionKeySuperuser]),
	}
	logResolved("session", id)
	return id, nil
}

func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case fmt.Stringer:
		s := x.String()
		return s, s != ""
	default:
		return "", false
	}
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}
