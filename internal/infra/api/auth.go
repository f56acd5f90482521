package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthManager issues and verifies HS256 bearer tokens for /v1.
type AuthManager struct {
	secret []byte
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret)}
}

// Enabled is false when no secret is configured; /v1 is then open.
func (a *AuthManager) Enabled() bool { return len(a.secret) > 0 }

type Claims struct {
	jwt.RegisteredClaims
}

// Mint signs a token for subject valid for ttl.
func (a *AuthManager) Mint(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Subject:   subject,
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*Claims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type subjectKey struct{}

// Require rejects requests without a valid token when auth is enabled.
func (a *AuthManager) Require() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// subject is the token subject, or the client IP for anonymous callers.
func subject(r *http.Request) string {
	if s, _ := r.Context().Value(subjectKey{}).(string); s != "" {
		return s
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
