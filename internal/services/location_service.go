package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pvetax/internal/models"
	"pvetax/internal/tax"
)

// LocationService answers resolver lookups from the solar system table,
// filling it from the game API on a miss.
type LocationService struct {
	systems         SystemStore
	source          SystemSource
	specialRegionID int64
	logger          *slog.Logger

	mu    sync.RWMutex
	cache map[int64]models.SolarSystem
}

func NewLocationService(systems SystemStore, source SystemSource, specialRegionID int64, logger *slog.Logger) *LocationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationService{
		systems:         systems,
		source:          source,
		specialRegionID: specialRegionID,
		logger:          logger,
		cache:           make(map[int64]models.SolarSystem),
	}
}

func (s *LocationService) Lookup(ctx context.Context, locationID int64) (tax.Location, error) {
	system, err := s.system(ctx, locationID)
	if err != nil {
		return tax.Location{}, err
	}
	return tax.Location{
		SecurityStatus: system.SecurityStatus,
		SpecialZone:    s.specialRegionID != 0 && system.RegionID == s.specialRegionID,
	}, nil
}

func (s *LocationService) system(ctx context.Context, id int64) (models.SolarSystem, error) {
	s.mu.RLock()
	cached, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	system, err := s.systems.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return models.SolarSystem{}, fmt.Errorf("%w: system %d: %v", ErrSourceLookup, id, err)
		}
		system, err = s.source.System(ctx, id)
		if err != nil {
			return models.SolarSystem{}, fmt.Errorf("%w: system %d: %v", ErrSourceLookup, id, err)
		}
		if err := s.systems.Upsert(ctx, system); err != nil {
			s.logger.Warn("solar system cache write failed", "system_id", id, "error", err)
		}
	}

	s.mu.Lock()
	s.cache[id] = system
	s.mu.Unlock()
	return system, nil
}
