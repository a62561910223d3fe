package store

import (
	"context"

	"pvetax/internal/models"
)

type SystemStore struct {
	db DB
}

func NewSystemStore(db DB) *SystemStore {
	return &SystemStore{db: db}
}

func (s *SystemStore) Get(ctx context.Context, id int64) (models.SolarSystem, error) {
	var row models.SolarSystem
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, security_status, region_id
		FROM solar_systems
		WHERE id = $1
	`, id)
	if err != nil {
		return models.SolarSystem{}, err
	}
	return row, nil
}

func (s *SystemStore) Upsert(ctx context.Context, system models.SolarSystem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solar_systems (id, name, security_status, region_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, security_status = EXCLUDED.security_status, region_id = EXCLUDED.region_id
	`, system.ID, system.Name, system.SecurityStatus, system.RegionID)
	return err
}
