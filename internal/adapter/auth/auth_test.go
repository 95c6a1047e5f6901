package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pztrick/television/internal/domain"
)

const (
	testSecret      = "test-session-secret-0123456789"
	testSessionName = "television-session"
)

func sessionRequest(t *testing.T, values map[any]any) *http.Request {
	t.Helper()
	store := NewCookieStore(testSecret, time.Hour, false)

	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	session, err := store.New(seed, testSessionName)
	require.NoError(t, err)
	for k, v := range values {
		session.Values[k] = v
	}
	rec := httptest.NewRecorder()
	require.NoError(t, session.Save(seed, rec))

	req := httptest.NewRequest(http.MethodGet, "/tv/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionResolver_Authenticated(t *testing.T) {
	resolver := NewSessionResolver(NewCookieStore(testSecret, time.Hour, false), testSessionName)
	req := sessionRequest(t, map[any]any{
		SessionKeyUserID: "42",
		SessionKeyStaff:  true,
	})

	id, err := resolver.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{Authenticated: true, UserID: "42", IsStaff: true}, id)
}

func TestSessionResolver_IntegerUserID(t *testing.T) {
	resolver := NewSessionResolver(NewCookieStore(testSecret, time.Hour, false), testSessionName)
	req := sessionRequest(t, map[any]any{SessionKeyUserID: 7, SessionKeySuperuser: true})

	id, err := resolver.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "7", id.UserID)
	assert.True(t, id.IsSuperuser)
	assert.False(t, id.IsStaff)
}

func TestSessionResolver_NoCookieIsAnonymous(t *testing.T) {
	resolver := NewSessionResolver(NewCookieStore(testSecret, time.Hour, false), testSessionName)

	id, err := resolver.Resolve(httptest.NewRequest(http.MethodGet, "/tv/", nil))
	require.NoError(t, err)
	assert.Equal(t, domain.Anonymous(), id)
}

func TestSessionResolver_ForeignKeyIsAnonymous(t *testing.T) {
	req := sessionRequest(t, map[any]any{SessionKeyUserID: "42"})
	other := NewSessionResolver(NewCookieStore("another-secret-0123456789", time.Hour, false), testSessionName)

	id, err := other.Resolve(req)
	require.NoError(t, err)
	assert.False(t, id.Authenticated)
}

func TestTokenResolver_HeaderAndQuery(t *testing.T) {
	resolver := NewTokenResolver(testSecret, "television")
	token, err := resolver.Sign(domain.Identity{UserID: "9", IsStaff: true}, time.Minute)
	require.NoError(t, err)

	header := httptest.NewRequest(http.MethodGet, "/tv/", nil)
	header.Header.Set("Authorization", "Bearer "+token)
	query := httptest.NewRequest(http.MethodGet, "/tv/?token="+token, nil)

	for _, req := range []*http.Request{header, query} {
		id, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, domain.Identity{Authenticated: true, UserID: "9", IsStaff: true}, id)
	}
}

func TestTokenResolver_Rejects(t *testing.T) {
	resolver := NewTokenResolver(testSecret, "television")

	expired, err := resolver.Sign(domain.Identity{UserID: "9"}, -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := NewTokenResolver(testSecret, "someone-else").Sign(domain.Identity{UserID: "9"}, time.Minute)
	require.NoError(t, err)
	wrongKey, err := NewTokenResolver("a-different-secret-0123456789", "television").Sign(domain.Identity{UserID: "9"}, time.Minute)
	require.NoError(t, err)
	noSubject, err := resolver.Sign(domain.Identity{}, time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "9"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"wrong key":    wrongKey,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tv/?token="+token, nil)
			id, err := resolver.Resolve(req)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.False(t, id.Authenticated)
		})
	}
}

func TestTokenResolver_NoTokenIsAnonymous(t *testing.T) {
	resolver := NewTokenResolver(testSecret, "")
	req := httptest.NewRequest(http.MethodGet, "/tv/", nil)
	req.Header.Set("Authorization", "Basic abc")

	id, err := resolver.Resolve(req)
	require.NoError(t, err)
	assert.False(t, id.Authenticated)
}

func TestChain(t *testing.T) {
	anon := ResolverFunc(func(*http.Request) (domain.Identity, error) { return domain.Anonymous(), nil })
	user := ResolverFunc(func(*http.Request) (domain.Identity, error) {
		return domain.Identity{Authenticated: true, UserID: "1"}, nil
	})
	failing := ResolverFunc(func(*http.Request) (domain.Identity, error) {
		return domain.Anonymous(), ErrInvalidCredentials
	})
	req := httptest.NewRequest(http.MethodGet, "/tv/", nil)

	id, err := Chain{anon, nil, user}.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "1", id.UserID)

	id, err = Chain{anon}.Resolve(req)
	require.NoError(t, err)
	assert.False(t, id.Authenticated)

	_, err = Chain{failing, user}.Resolve(req)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}
