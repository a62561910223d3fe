package store

import (
	"context"

	"pvetax/internal/models"
)

type StatsStore struct {
	db DB
}

func NewStatsStore(db DB) *StatsStore {
	return &StatsStore{db: db}
}

// Save replaces the stored snapshot wholesale.
func (s *StatsStore) Save(ctx context.Context, snapshot models.StatsSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_stats (id, payload, generated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, generated_at = EXCLUDED.generated_at
	`, snapshot, snapshot.GeneratedAt)
	return err
}

func (s *StatsStore) Load(ctx context.Context) (models.StatsSnapshot, error) {
	var snapshot models.StatsSnapshot
	err := s.db.GetContext(ctx, &snapshot, `SELECT payload FROM tax_stats WHERE id = 1`)
	if err != nil {
		return models.StatsSnapshot{}, err
	}
	return snapshot, nil
}
