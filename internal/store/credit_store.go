package store

import (
	"context"

	"pvetax/internal/models"

	"github.com/shopspring/decimal"
)

type CreditStore struct {
	db DB
}

type MonthlyCreditRow struct {
	Month    string          `db:"month"`
	Category string          `db:"category"`
	Amount   decimal.Decimal `db:"amount"`
}

func NewCreditStore(db DB) *CreditStore {
	return &CreditStore{db: db}
}

func (s *CreditStore) Insert(ctx context.Context, tx Execer, entry models.CreditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_entries (id, character_id, amount, category, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.CharacterID, entry.Amount, string(entry.Category), entry.Reason, entry.Actor, entry.CreatedAt)
	return err
}

func (s *CreditStore) ListByCharacter(ctx context.Context, characterID int64, limit, offset int) ([]models.CreditEntry, error) {
	var rows []models.CreditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, character_id, amount, category, reason, actor, created_at
		FROM credit_entries
		WHERE character_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, characterID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CreditStore) MonthlyTotals(ctx context.Context, characterID int64) ([]MonthlyCreditRow, error) {
	var rows []MonthlyCreditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		       category,
		       SUM(amount) AS amount
		FROM credit_entries
		WHERE character_id = $1
		GROUP BY 1, 2
		ORDER BY 1, 2
	`, characterID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
