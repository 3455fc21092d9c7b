// Package auth gates the admin API with HS256 bearer tokens. Public routes
// run without a caller; authoring needs RoleAdmin and destructive operations
// need RoleSuperAdmin.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lojf/formdesk/internal/logger"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 1
	case RoleSuperAdmin:
		return 2
	}
	return 0
}

// Satisfies reports whether r is at least want.
func (r Role) Satisfies(want Role) bool {
	return r.rank() > 0 && r.rank() >= want.rank()
}

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Caller is the authenticated principal of a request.
type Caller struct {
	Subject string
	Role    Role
}

var ErrNoSecret = errors.New("auth: JWT secret is not configured")

type Gate struct {
	secret []byte
	log    *logger.Logger
}

func NewGate(secret string, log *logger.Logger) *Gate {
	return &Gate{secret: []byte(secret), log: log.With("component", "auth")}
}

// Issue signs a token for subject with role.
func (g *Gate) Issue(subject string, role Role, ttl time.Duration) (string, error) {
	if len(g.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// Parse validates tokenString and returns its caller.
func (g *Gate) Parse(tokenString string) (Caller, error) {
	if len(g.secret) == 0 {
		return Caller{}, ErrNoSecret
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Caller{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Caller{}, errors.New("invalid or expired token")
	}
	if claims.Subject == "" || claims.Role.rank() == 0 {
		return Caller{}, errors.New("token has no subject or role")
	}
	return Caller{Subject: claims.Subject, Role: claims.Role}, nil
}

type ctxKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the caller set by Require.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// Require rejects requests without a valid bearer token for at least role.
func (g *Gate) Require(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearer(r)
			if tok == "" {
				deny(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
			c, err := g.Parse(tok)
			if err != nil {
				g.log.Debug("token rejected", "error", err)
				deny(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
			if !c.Role.Satisfies(role) {
				deny(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
		})
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}
