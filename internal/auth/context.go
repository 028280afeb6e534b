package auth

import (
	"context"
	"slices"
)

type contextKey int

const claimsKey contextKey = iota

// WithClaims returns a new context carrying claims.
func WithClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Claims returns the verified claims from context, or nil if not authenticated.
func Claims(ctx context.Context) *UserClaims {
	claims, _ := ctx.Value(claimsKey).(*UserClaims)
	return claims
}

// Consultant names the signed-in consultant for session records: the token's
// name claim, then its email, then its subject. Empty when unauthenticated.
func Consultant(ctx context.Context) string {
	claims := Claims(ctx)
	if claims == nil {
		return ""
	}
	for _, s := range []string{claims.Name, claims.Email, claims.Subject} {
		if s != "" {
			return s
		}
	}
	return ""
}

// HasPermission reports whether the caller's token grants permission.
func HasPermission(ctx context.Context, permission string) bool {
	claims := Claims(ctx)
	return claims != nil && slices.Contains(claims.Permissions, permission)
}
