package store

import (
	"context"

	"pvetax/internal/models"
)

type PaymentStore struct {
	db DB
}

func NewPaymentStore(db DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// Insert appends a payment to the log. A payment already seen for the same
// corporation and journal id is skipped and reported as not inserted.
func (s *PaymentStore) Insert(ctx context.Context, payment models.Payment) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO corp_payments (id, corporation_id, journal_id, date, amount, payer_eve_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (corporation_id, journal_id) DO NOTHING
	`, payment.ID, payment.CorporationID, payment.JournalID, payment.Date, payment.Amount, payment.PayerEveID, payment.Description)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ListUnmatched returns payments with a payer that have no credit yet,
// oldest first.
func (s *PaymentStore) ListUnmatched(ctx context.Context) ([]models.Payment, error) {
	var rows []models.Payment
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, corporation_id, journal_id, date, amount, payer_eve_id, description, matched_credit_id, created_at
		FROM corp_payments
		WHERE matched_credit_id IS NULL AND payer_eve_id IS NOT NULL
		ORDER BY date, journal_id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PaymentStore) MarkMatched(ctx context.Context, tx Execer, paymentID, creditID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE corp_payments
		SET matched_credit_id = $1
		WHERE id = $2 AND matched_credit_id IS NULL
	`, creditID, paymentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
