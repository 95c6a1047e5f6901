package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pztrick/television/internal/domain"
)

// Claims is the JWT payload understood by TokenResolver.
type Claims struct {
	Staff     bool `json:"staff,omitempty"`
	Superuser bool `json:"superuser,omitempty"`
	jwt.RegisteredClaims
}

// TokenResolver verifies HS256 bearer tokens. Browsers cannot set headers on
// a WebSocket upgrade, so the token may also arrive as the "token" query parameter.
type TokenResolver struct {
	secret []byte
	issuer string
}

func NewTokenResolver(secret, issuer string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret), issuer: issuer}
}

func (t *TokenResolver) Resolve(r *http.Request) (domain.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return domain.Anonymous(), nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Anonymous(), fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject == "" {
		return domain.Anonymous(), fmt.Errorf("%w: subject missing", ErrInvalidCredentials)
	}

	id := domain.Identity{
		Authenticated: true,
		UserID:        claims.Subject,
		IsStaff:       claims.Staff,
		IsSuperuser:   claims.Superuser,
	}
	logResolved("token", id)
	return id, nil
}

// Sign issues a token for id valid for ttl.
func (t *TokenResolver) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Staff:     id.IsStaff,
		Superuser: id.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
