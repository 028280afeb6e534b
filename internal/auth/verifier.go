// Package auth verifies OpenID Connect bearer tokens and exposes the
// caller's identity to handlers through the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// PermissionKnowledgeWrite allows uploading and indexing knowledge-bank documents.
const PermissionKnowledgeWrite = "kb:write"

// Config holds identity provider settings.
type Config struct {
	Issuer   string // e.g. "https://clinic.eu.auth0.com"
	Audience string // API audience identifier; optional
	JWKSURL  string // defaults to <Issuer>/.well-known/jwks.json
	Leeway   time.Duration
}

// UserClaims are the JWT claims read from consultant tokens.
type UserClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Verifier validates RS256 tokens against the issuer's key set.
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// DefaultLeeway is the clock skew tolerated on exp and nbf.
const DefaultLeeway = 30 * time.Second

// NewVerifier creates a verifier that fetches signing keys from the issuer's
// JWKS endpoint. Keys are refreshed in the background until ctx is done.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}
	return NewVerifierWithKeyfunc(cfg, jwks.Keyfunc), nil
}

// NewVerifierWithKeyfunc creates a verifier with a caller-supplied key lookup.
func NewVerifierWithKeyfunc(cfg Config, kf jwt.Keyfunc) *Verifier {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(strings.TrimSuffix(cfg.Issuer, "/")),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{keyfunc: kf, parser: jwt.NewParser(opts...)}
}

// Verify validates a JWT and returns its claims.
func (v *Verifier) Verify(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token with a JSON 401.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				unauthorized(w, "missing token")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequirePermission wraps a handler so it only runs for callers holding permission.
func RequirePermission(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !HasPermission(r.Context(), permission) {
			writeError(w, http.StatusForbidden, "missing permission "+permission)
			return
		}
		next(w, r)
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
