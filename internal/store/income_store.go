package store

import (
	"context"
	"time"

	"pvetax/internal/db"
	"pvetax/internal/models"

	"github.com/shopspring/decimal"
)

type IncomeStore struct {
	db DB
}

type MonthlyIncomeRow struct {
	Month    string          `db:"month"`
	Activity string          `db:"activity"`
	Amount   decimal.Decimal `db:"amount"`
	Tax      decimal.Decimal `db:"tax"`
}

type ActivityTotalRow struct {
	Activity string          `db:"activity"`
	Amount   decimal.Decimal `db:"amount"`
	Tax      decimal.Decimal `db:"tax"`
}

type AccountDailyRow struct {
	AccountID string          `db:"account_id"`
	Day       string          `db:"day"`
	Amount    decimal.Decimal `db:"amount"`
	Tax       decimal.Decimal `db:"tax"`
}

func NewIncomeStore(db DB) *IncomeStore {
	return &IncomeStore{db: db}
}

const incomeColumns = `id, character_id, journal_id, date, amount, ref_type, activity, location_id, description, tax_rate, tax_amount, created_at`

func (s *IncomeStore) GetByJournalID(ctx context.Context, characterID, journalID int64) (models.IncomeEntry, error) {
	var row models.IncomeEntry
	err := s.db.GetContext(ctx, &row, `
		SELECT `+incomeColumns+`
		FROM income_entries
		WHERE character_id = $1 AND journal_id = $2
	`, characterID, journalID)
	if err != nil {
		return models.IncomeEntry{}, err
	}
	return row, nil
}

// Insert stores a fully computed entry. A concurrent insert of the same
// (character, journal) pair surfaces as ErrDuplicate.
func (s *IncomeStore) Insert(ctx context.Context, entry models.IncomeEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO income_entries (id, character_id, journal_id, date, amount, ref_type, activity, location_id, description, tax_rate, tax_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.CharacterID, entry.JournalID, entry.Date, entry.Amount, entry.RefType, entry.Activity, entry.LocationID, entry.Description, entry.TaxRate, entry.TaxAmount)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// SumTax totals tax_amount for a character, optionally only for entries
// dated at or after since.
func (s *IncomeStore) SumTax(ctx context.Context, characterID int64, since *time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(tax_amount), 0)
		FROM income_entries
		WHERE character_id = $1 AND ($2::timestamptz IS NULL OR date >= $2)
	`, characterID, since)
	return sum, err
}

func (s *IncomeStore) ListByCharacter(ctx context.Context, characterID int64, limit, offset int) ([]models.IncomeEntry, error) {
	var rows []models.IncomeEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+incomeColumns+`
		FROM income_entries
		WHERE character_id = $1
		ORDER BY date DESC, journal_id DESC
		LIMIT $2 OFFSET $3
	`, characterID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *IncomeStore) MonthlyTotals(ctx context.Context, characterID int64) ([]MonthlyIncomeRow, error) {
	var rows []MonthlyIncomeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT to_char(date_trunc('month', date AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		       activity,
		       SUM(amount) AS amount,
		       SUM(tax_amount) AS tax
		FROM income_entries
		WHERE character_id = $1
		GROUP BY 1, 2
		ORDER BY 1, 2
	`, characterID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ActivityTotals sums every character's income per activity, optionally only
// from since onwards.
func (s *IncomeStore) ActivityTotals(ctx context.Context, since *time.Time) ([]ActivityTotalRow, error) {
	var rows []ActivityTotalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT activity, SUM(amount) AS amount, SUM(tax_amount) AS tax
		FROM income_entries
		WHERE $1::timestamptz IS NULL OR date >= $1
		GROUP BY activity
		ORDER BY activity
	`, since)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Leaderboard ranks characters by summed income for one activity. Ties keep
// the order in which characters were first tracked.
func (s *IncomeStore) Leaderboard(ctx context.Context, activity string, since time.Time, taxableOnly bool, limit int) ([]models.LeaderboardRow, error) {
	var rows []models.LeaderboardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.name AS character_name, SUM(i.amount) AS amount
		FROM income_entries i
		JOIN characters c ON c.id = i.character_id
		WHERE i.activity = $1 AND i.date >= $2 AND (NOT $3 OR i.tax_rate > 0)
		GROUP BY c.id, c.name
		ORDER BY amount DESC, c.id ASC
		LIMIT $4
	`, activity, since, taxableOnly, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DailyTotalsByAccount groups income per owning account and UTC day.
// Orphaned characters are left out.
func (s *IncomeStore) DailyTotalsByAccount(ctx context.Context, since time.Time) ([]AccountDailyRow, error) {
	var rows []AccountDailyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT o.account_id,
		       to_char(date_trunc('day', i.date AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day,
		       SUM(i.amount) AS amount,
		       SUM(i.tax_amount) AS tax
		FROM income_entries i
		JOIN characters c ON c.id = i.character_id
		JOIN character_ownerships o ON o.eve_character_id = c.eve_character_id
		WHERE i.date >= $1
		GROUP BY 1, 2
		ORDER BY 1, 2
	`, since)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *IncomeStore) ListAllByCharacter(ctx context.Context, characterID int64) ([]models.IncomeEntry, error) {
	var rows []models.IncomeEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+incomeColumns+`
		FROM income_entries
		WHERE character_id = $1
		ORDER BY date, journal_id
	`, characterID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateTax rewrites the frozen tax fields of one entry. Only the explicit
// re-tax operation calls it.
func (s *IncomeStore) UpdateTax(ctx context.Context, tx Execer, id string, rate, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE income_entries
		SET tax_rate = $1, tax_amount = $2
		WHERE id = $3
	`, rate, amount, id)
	return err
}
