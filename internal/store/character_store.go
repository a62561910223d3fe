package store

import (
	"context"
	"time"

	"pvetax/internal/db"
	"pvetax/internal/models"

	"github.com/shopspring/decimal"
)

type CharacterStore struct {
	db DB
}

// CharacterBalance is one character's ledger position, computed in SQL from
// the income entries and the cached credit total.
type CharacterBalance struct {
	CharacterID    int64           `db:"character_id"`
	EveCharacterID int64           `db:"eve_character_id"`
	Name           string          `db:"name"`
	OwnerAccountID *string         `db:"owner_account_id"`
	LifeCredits    decimal.Decimal `db:"life_credits"`
	TaxTotal       decimal.Decimal `db:"tax_total"`
	MonthTax       decimal.Decimal `db:"month_tax"`
}

func (b CharacterBalance) Lifetime() decimal.Decimal {
	return b.TaxTotal.Sub(b.LifeCredits)
}

// CreditDrift compares the cached credit total against the credit entries.
type CreditDrift struct {
	CharacterID int64           `db:"character_id"`
	Name        string          `db:"name"`
	Cached      decimal.Decimal `db:"cached"`
	Calculated  decimal.Decimal `db:"calculated"`
	Difference  decimal.Decimal `db:"difference"`
}

const characterColumns = `
	c.id, c.eve_character_id, c.name, c.created_at, c.life_credits, c.life_taxes,
	c.monthly_activity, c.monthly_taxes, c.monthly_credits, c.last_wallet_update,
	o.account_id AS owner_account_id`

const characterFrom = `
	FROM characters c
	LEFT JOIN character_ownerships o ON o.eve_character_id = c.eve_character_id`

func NewCharacterStore(db DB) *CharacterStore {
	return &CharacterStore{db: db}
}

func (s *CharacterStore) Create(ctx context.Context, eveCharacterID int64, name string) (models.Character, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO characters (eve_character_id, name)
		VALUES ($1, $2)
		RETURNING id
	`, eveCharacterID, name)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.Character{}, ErrDuplicate
		}
		return models.Character{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *CharacterStore) GetByID(ctx context.Context, id int64) (models.Character, error) {
	var row models.Character
	err := s.db.GetContext(ctx, &row, `SELECT `+characterColumns+characterFrom+`
		WHERE c.id = $1
	`, id)
	if err != nil {
		return models.Character{}, err
	}
	return row, nil
}

func (s *CharacterStore) GetByEveID(ctx context.Context, eveCharacterID int64) (models.Character, error) {
	var row models.Character
	err := s.db.GetContext(ctx, &row, `SELECT `+characterColumns+characterFrom+`
		WHERE c.eve_character_id = $1
	`, eveCharacterID)
	if err != nil {
		return models.Character{}, err
	}
	return row, nil
}

func (s *CharacterStore) ListAll(ctx context.Context) ([]models.Character, error) {
	var rows []models.Character
	err := s.db.SelectContext(ctx, &rows, `SELECT `+characterColumns+characterFrom+`
		ORDER BY c.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CharacterStore) ListByAccount(ctx context.Context, accountID string) ([]models.Character, error) {
	var rows []models.Character
	err := s.db.SelectContext(ctx, &rows, `SELECT `+characterColumns+characterFrom+`
		WHERE o.account_id = $1
		ORDER BY c.id
	`, accountID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AdjustLifeCredits adds delta to the cached credit total. It must run in the
// same transaction as the credit entry insert.
func (s *CharacterStore) AdjustLifeCredits(ctx context.Context, tx Execer, id int64, delta decimal.Decimal) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE characters
		SET life_credits = life_credits + $1
		WHERE id = $2
	`, delta, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *CharacterStore) TouchWalletUpdate(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE characters
		SET last_wallet_update = $1
		WHERE id = $2
	`, at, id)
	return err
}

func (s *CharacterStore) UpdateBreakdowns(ctx context.Context, id int64, activity, taxes, credits models.Breakdown, lifeTaxes decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE characters
		SET monthly_activity = $1, monthly_taxes = $2, monthly_credits = $3, life_taxes = $4
		WHERE id = $5
	`, activity, taxes, credits, lifeTaxes, id)
	return err
}

// ListBalances returns every character's balance inputs. MonthTax covers
// income dated on or after monthStart.
func (s *CharacterStore) ListBalances(ctx context.Context, monthStart time.Time) ([]CharacterBalance, error) {
	var rows []CharacterBalance
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id AS character_id,
		       c.eve_character_id,
		       c.name,
		       o.account_id AS owner_account_id,
		       c.life_credits,
		       COALESCE(SUM(i.tax_amount), 0) AS tax_total,
		       COALESCE(SUM(i.tax_amount) FILTER (WHERE i.date >= $1), 0) AS month_tax
		FROM characters c
		LEFT JOIN character_ownerships o ON o.eve_character_id = c.eve_character_id
		LEFT JOIN income_entries i ON i.character_id = c.id
		GROUP BY c.id, c.eve_character_id, c.name, o.account_id, c.life_credits
		ORDER BY c.id
	`, monthStart)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CharacterStore) ListCreditDrift(ctx context.Context) ([]CreditDrift, error) {
	var rows []CreditDrift
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id AS character_id,
		       c.name,
		       c.life_credits AS cached,
		       COALESCE(SUM(e.amount), 0) AS calculated,
		       (c.life_credits - COALESCE(SUM(e.amount), 0)) AS difference
		FROM characters c
		LEFT JOIN credit_entries e ON e.character_id = c.id
		GROUP BY c.id, c.name, c.life_credits
		HAVING c.life_credits <> COALESCE(SUM(e.amount), 0)
		ORDER BY c.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
