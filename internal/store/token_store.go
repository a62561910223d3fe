package store

import (
	"context"
	"database/sql"
	"time"

	"pvetax/internal/models"
)

type TokenStore struct {
	db DB
}

func NewTokenStore(db DB) *TokenStore {
	return &TokenStore{db: db}
}

// GetValid returns an unexpired token carrying scope. found is false when
// there is none.
func (s *TokenStore) GetValid(ctx context.Context, eveCharacterID int64, scope string, now time.Time) (models.Token, bool, error) {
	var row models.Token
	err := s.db.GetContext(ctx, &row, `
		SELECT eve_character_id, access_token, scopes, expires_at
		FROM esi_tokens
		WHERE eve_character_id = $1 AND $2 = ANY(scopes) AND expires_at > $3
		ORDER BY expires_at DESC
		LIMIT 1
	`, eveCharacterID, scope, now)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Token{}, false, nil
		}
		return models.Token{}, false, err
	}
	return row, true, nil
}
