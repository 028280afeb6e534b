package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// NewTestClaims creates claims for a consultant with the given subject and
// email, holding the listed permissions. Intended for tests.
func NewTestClaims(userID, email string, permissions ...string) *UserClaims {
	return &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
		Email:       email,
		Permissions: permissions,
	}
}
