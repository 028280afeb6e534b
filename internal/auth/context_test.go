package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestClaims_RoundTripThroughContext(t *testing.T) {
	assert.Nil(t, Claims(context.Background()))

	ctx := WithClaims(context.Background(), NewTestClaims("auth0|abc", "priya@clinic.example"))
	got := Claims(ctx)
	if assert.NotNil(t, got) {
		assert.Equal(t, "auth0|abc", got.Subject)
		assert.Equal(t, "priya@clinic.example", got.Email)
	}
}

func TestConsultant(t *testing.T) {
	tests := []struct {
		name   string
		claims *UserClaims
		want   string
	}{
		{"unauthenticated", nil, ""},
		{"name preferred", &UserClaims{Name: "Dr Priya Rao", Email: "priya@clinic.example"}, "Dr Priya Rao"},
		{"email fallback", &UserClaims{Email: "priya@clinic.example"}, "priya@clinic.example"},
		{"subject last", &UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "auth0|abc"}}, "auth0|abc"},
		{"empty token", &UserClaims{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.claims != nil {
				ctx = WithClaims(ctx, tt.claims)
			}
			assert.Equal(t, tt.want, Consultant(ctx))
		})
	}
}

func TestHasPermission(t *testing.T) {
	assert.False(t, HasPermission(context.Background(), PermissionKnowledgeWrite))

	reader := WithClaims(context.Background(), NewTestClaims("u", "e", "sessions:read"))
	assert.False(t, HasPermission(reader, PermissionKnowledgeWrite))

	curator := WithClaims(context.Background(), NewTestClaims("u", "e", "sessions:read", PermissionKnowledgeWrite))
	assert.True(t, HasPermission(curator, PermissionKnowledgeWrite))
}
