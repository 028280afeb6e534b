package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://id.clinic.example"

func newTestVerifier(t *testing.T, audience string) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v := NewVerifierWithKeyfunc(Config{Issuer: testIssuer + "/", Audience: audience}, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	return v, key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims *UserClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() *UserClaims {
	return &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|consultant",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{"nourish-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:       "priya@clinic.example",
		Name:        "Dr Priya Rao",
		Permissions: []string{PermissionKnowledgeWrite},
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		want       string
	}{
		{"empty header", "", ""},
		{"valid bearer token", "Bearer eyJhbGciOiJSUzI1NiJ9.test", "eyJhbGciOiJSUzI1NiJ9.test"},
		{"lowercase bearer", "bearer token123", "token123"},
		{"no space", "Bearertoken123", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"empty token after bearer", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			assert.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}

func TestNewVerifier_RequiresIssuer(t *testing.T) {
	_, err := NewVerifier(context.Background(), Config{})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	v, key := newTestVerifier(t, "nourish-api")

	claims, err := v.Verify(signToken(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "auth0|consultant", claims.Subject)
	assert.Equal(t, "Dr Priya Rao", claims.Name)
	assert.Equal(t, []string{PermissionKnowledgeWrite}, claims.Permissions)
}

func TestVerify_Rejects(t *testing.T) {
	v, key := newTestVerifier(t, "nourish-api")
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://evil.example"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other-api"}

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", signToken(t, key, expired)},
		{"missing expiry", signToken(t, key, noExpiry)},
		{"wrong issuer", signToken(t, key, wrongIssuer)},
		{"wrong audience", signToken(t, key, wrongAudience)},
		{"wrong key", signToken(t, otherKey, validClaims())},
		{"wrong algorithm", hs256},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestVerify_ToleratesClockSkew(t *testing.T) {
	v, key := newTestVerifier(t, "nourish-api")

	c := validClaims()
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-10 * time.Second))
	_, err := v.Verify(signToken(t, key, c))
	assert.NoError(t, err, "within default leeway")

	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-2 * DefaultLeeway))
	_, err = v.Verify(signToken(t, key, c))
	assert.Error(t, err)
}

func TestVerify_NoAudienceConfigured(t *testing.T) {
	v, key := newTestVerifier(t, "")
	c := validClaims()
	c.Audience = nil

	_, err := v.Verify(signToken(t, key, c))
	assert.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	v, key := newTestVerifier(t, "nourish-api")
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(Consultant(r.Context())))
	}))

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error": "missing token"}`, rec.Body.String())
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid token")
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, validClaims()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Dr Priya Rao", rec.Body.String())
	})
}

func TestRequirePermission(t *testing.T) {
	handler := RequirePermission(PermissionKnowledgeWrite, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error": "missing permission kb:write"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithClaims(req.Context(), NewTestClaims("u", "e", PermissionKnowledgeWrite)))
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
