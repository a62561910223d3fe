package services

import (
	"context"
	"fmt"
	"time"

	"pvetax/internal/models"
)

// TokenCredentials hands out stored access tokens. It never returns a
// credential without an unexpired token for the requested scope.
type TokenCredentials struct {
	tokens TokenStore
	now    func() time.Time
}

func NewTokenCredentials(tokens TokenStore) *TokenCredentials {
	return &TokenCredentials{tokens: tokens, now: time.Now}
}

func (c *TokenCredentials) Acquire(ctx context.Context, eveCharacterID int64, scope string) (models.Credential, error) {
	token, found, err := c.tokens.GetValid(ctx, eveCharacterID, scope, c.now().UTC())
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: character %d: %v", ErrAuthenticationUnavailable, eveCharacterID, err)
	}
	if !found || token.AccessToken == "" || !token.HasScope(scope) {
		return models.Credential{}, fmt.Errorf("%w: character %d scope %s", ErrAuthenticationUnavailable, eveCharacterID, scope)
	}
	return models.Credential{
		EveCharacterID: eveCharacterID,
		Scope:          scope,
		AccessToken:    token.AccessToken,
		ExpiresAt:      token.ExpiresAt,
	}, nil
}
