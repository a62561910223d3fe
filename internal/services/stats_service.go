package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"pvetax/internal/metrics"
	"pvetax/internal/models"
	"pvetax/internal/tax"
)

const (
	leaderboardSize = 10
	historyDays     = 90
)

type StatsService struct {
	source      StatsSource
	store       StatsStore
	taxableOnly bool
	logger      *slog.Logger
	now         func() time.Time
}

func NewStatsService(source StatsSource, store StatsStore, taxableOnly bool, logger *slog.Logger) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{
		source:      source,
		store:       store,
		taxableOnly: taxableOnly,
		logger:      logger,
		now:         time.Now,
	}
}

// Refresh rebuilds the snapshot from the income entries and replaces the
// stored one.
func (s *StatsService) Refresh(ctx context.Context) (models.StatsSnapshot, error) {
	started := time.Now()
	defer func() {
		metrics.StatsRefreshDuration.Observe(time.Since(started).Seconds())
	}()

	now := s.now().UTC()
	start := monthStart(now)
	snapshot := models.StatsSnapshot{
		GeneratedAt:    now,
		CurrentMonth:   make(map[string]models.ActivityTotals),
		Lifetime:       make(map[string]models.ActivityTotals),
		Leaderboards:   make(map[string][]models.LeaderboardRow),
		AccountHistory: make(map[string][]models.DailyTotal),
	}
	for _, activity := range tax.Activities() {
		snapshot.CurrentMonth[string(activity)] = models.ActivityTotals{}
		snapshot.Lifetime[string(activity)] = models.ActivityTotals{}
	}

	lifetime, err := s.source.ActivityTotals(ctx, nil)
	if err != nil {
		return models.StatsSnapshot{}, err
	}
	for _, row := range lifetime {
		snapshot.Lifetime[row.Activity] = models.ActivityTotals{Amount: row.Amount, Tax: row.Tax}
	}
	current, err := s.source.ActivityTotals(ctx, &start)
	if err != nil {
		return models.StatsSnapshot{}, err
	}
	for _, row := range current {
		snapshot.CurrentMonth[row.Activity] = models.ActivityTotals{Amount: row.Amount, Tax: row.Tax}
	}

	for _, activity := range tax.Activities() {
		board, err := s.source.Leaderboard(ctx, string(activity), start, s.taxableOnly, leaderboardSize)
		if err != nil {
			return models.StatsSnapshot{}, err
		}
		if board == nil {
			board = []models.LeaderboardRow{}
		}
		snapshot.Leaderboards[string(activity)] = board
	}

	daily, err := s.source.DailyTotalsByAccount(ctx, now.AddDate(0, 0, -historyDays))
	if err != nil {
		return models.StatsSnapshot{}, err
	}
	for _, row := range daily {
		snapshot.AccountHistory[row.AccountID] = append(snapshot.AccountHistory[row.AccountID], models.DailyTotal{
			Day:    row.Day,
			Amount: row.Amount,
			Tax:    row.Tax,
		})
	}

	if err := s.store.Save(ctx, snapshot); err != nil {
		return models.StatsSnapshot{}, err
	}
	s.logger.Info("stats refreshed", "accounts", len(snapshot.AccountHistory), "duration", time.Since(started).String())
	return snapshot, nil
}

// Snapshot returns the stored snapshot, building one when none exists yet.
func (s *StatsService) Snapshot(ctx context.Context) (models.StatsSnapshot, error) {
	snapshot, err := s.store.Load(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return s.Refresh(ctx)
	}
	return snapshot, err
}
