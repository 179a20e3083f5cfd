package local

import (
	"context"
	"fmt"

	"github.com/vovakirdan/directchat/internal/auth"
	"github.com/vovakirdan/directchat/internal/directchat"
)

// TokenValidator validates local JWTs.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Authenticator maps a local JWT to a provider for its account.
type Authenticator struct {
	tokens  TokenValidator
	backend *Backend
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens TokenValidator, backend *Backend) *Authenticator {
	return &Authenticator{tokens: tokens, backend: backend}
}

// Authenticate validates token and returns a provider for claims.UserID.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (directchat.Provider, error) {
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	// tokens outlive accounts when the database is reset
	exists, err := a.backend.Provider(claims.UserID).UserExists(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("account %s no longer exists", claims.UserID)
	}

	return a.backend.Provider(claims.UserID), nil
}
