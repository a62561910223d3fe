package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"pvetax/internal/models"
)

type memSystems struct {
	systems map[int64]models.SolarSystem
	getErr  error
	upserts int
}

func (m *memSystems) Get(ctx context.Context, id int64) (models.SolarSystem, error) {
	if m.getErr != nil {
		return models.SolarSystem{}, m.getErr
	}
	system, ok := m.systems[id]
	if !ok {
		return models.SolarSystem{}, sql.ErrNoRows
	}
	return system, nil
}

func (m *memSystems) Upsert(ctx context.Context, system models.SolarSystem) error {
	m.systems[system.ID] = system
	m.upserts++
	return nil
}

type stubSystemSource struct {
	systemFn func(ctx context.Context, id int64) (models.SolarSystem, error)
	calls    int
}

func (s *stubSystemSource) System(ctx context.Context, id int64) (models.SolarSystem, error) {
	s.calls++
	return s.systemFn(ctx, id)
}

func TestLocationLookupFillsTableOnMiss(t *testing.T) {
	systems := &memSystems{systems: map[int64]models.SolarSystem{}}
	source := &stubSystemSource{systemFn: func(ctx context.Context, id int64) (models.SolarSystem, error) {
		return models.SolarSystem{ID: id, Name: "Ahtila", SecurityStatus: -0.3, RegionID: 10000070}, nil
	}}
	service := NewLocationService(systems, source, 10000070, nil)

	loc, err := service.Lookup(context.Background(), 30045328)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loc.SpecialZone || loc.SecurityStatus != -0.3 {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if _, err := service.Lookup(context.Background(), 30045328); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 1 || systems.upserts != 1 {
		t.Fatalf("expected one upstream call and one upsert, got %d and %d", source.calls, systems.upserts)
	}
}

func TestLocationLookupPrefersStoredSystem(t *testing.T) {
	systems := &memSystems{systems: map[int64]models.SolarSystem{
		30000142: {ID: 30000142, Name: "Jita", SecurityStatus: 0.9, RegionID: 10000002},
	}}
	source := &stubSystemSource{systemFn: func(ctx context.Context, id int64) (models.SolarSystem, error) {
		t.Fatalf("unexpected upstream call")
		return models.SolarSystem{}, nil
	}}
	service := NewLocationService(systems, source, 10000070, nil)

	loc, err := service.Lookup(context.Background(), 30000142)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.SpecialZone || loc.SecurityStatus != 0.9 {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestLocationLookupWrapsFailures(t *testing.T) {
	systems := &memSystems{systems: map[int64]models.SolarSystem{}}
	source := &stubSystemSource{systemFn: func(ctx context.Context, id int64) (models.SolarSystem, error) {
		return models.SolarSystem{}, errors.New("esi down")
	}}
	service := NewLocationService(systems, source, 0, nil)

	if _, err := service.Lookup(context.Background(), 1); !errors.Is(err, ErrSourceLookup) {
		t.Fatalf("expected ErrSourceLookup, got %v", err)
	}
	systems.getErr = errors.New("db down")
	if _, err := service.Lookup(context.Background(), 2); !errors.Is(err, ErrSourceLookup) {
		t.Fatalf("expected ErrSourceLookup, got %v", err)
	}
}
