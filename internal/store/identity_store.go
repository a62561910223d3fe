package store

import (
	"context"
	"database/sql"

	"pvetax/internal/models"

	"github.com/lib/pq"
)

// IdentityStore reads the account tables owned by the identity layer.
type IdentityStore struct {
	db DB
}

func NewIdentityStore(db DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) OwnerOf(ctx context.Context, eveCharacterID int64) (string, bool, error) {
	var accountID string
	err := s.db.GetContext(ctx, &accountID, `
		SELECT account_id
		FROM character_ownerships
		WHERE eve_character_id = $1
	`, eveCharacterID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return accountID, true, nil
}

// OwnedName returns the character name recorded with the ownership when the
// account owns the character.
func (s *IdentityStore) OwnedName(ctx context.Context, accountID string, eveCharacterID int64) (string, bool, error) {
	var name string
	err := s.db.GetContext(ctx, &name, `
		SELECT character_name
		FROM character_ownerships
		WHERE account_id = $1 AND eve_character_id = $2
	`, accountID, eveCharacterID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return name, true, nil
}

func (s *IdentityStore) GetAccount(ctx context.Context, id string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, main_character_name, discord_id
		FROM identity_accounts
		WHERE id = $1
	`, id)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *IdentityStore) GetAccounts(ctx context.Context, ids []string) ([]models.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, username, main_character_name, discord_id
		FROM identity_accounts
		WHERE id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	return rows, nil
}
