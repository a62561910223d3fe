package store

import (
	"context"
	"time"

	"pvetax/internal/db"
	"pvetax/internal/models"
)

// AdminCharacterStore tracks the corporation accountants whose wallet
// journals carry tax payments.
type AdminCharacterStore struct {
	db DB
}

func NewAdminCharacterStore(db DB) *AdminCharacterStore {
	return &AdminCharacterStore{db: db}
}

func (s *AdminCharacterStore) Create(ctx context.Context, eveCharacterID, corporationID int64, name string) (models.AdminCharacter, error) {
	var row models.AdminCharacter
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO admin_characters (eve_character_id, corporation_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, eve_character_id, corporation_id, name, last_update
	`, eveCharacterID, corporationID, name)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.AdminCharacter{}, ErrDuplicate
		}
		return models.AdminCharacter{}, err
	}
	return row, nil
}

func (s *AdminCharacterStore) GetByID(ctx context.Context, id int64) (models.AdminCharacter, error) {
	var row models.AdminCharacter
	err := s.db.GetContext(ctx, &row, `
		SELECT id, eve_character_id, corporation_id, name, last_update
		FROM admin_characters
		WHERE id = $1
	`, id)
	if err != nil {
		return models.AdminCharacter{}, err
	}
	return row, nil
}

func (s *AdminCharacterStore) ListAll(ctx context.Context) ([]models.AdminCharacter, error) {
	var rows []models.AdminCharacter
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, eve_character_id, corporation_id, name, last_update
		FROM admin_characters
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AdminCharacterStore) TouchUpdate(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE admin_characters
		SET last_update = $1
		WHERE id = $2
	`, at, id)
	return err
}
