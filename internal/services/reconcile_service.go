package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pvetax/internal/db"
	"pvetax/internal/jobs"
	"pvetax/internal/metrics"
	"pvetax/internal/models"
	"pvetax/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const paymentReasonPrefix = "Payment received: "

var (
	errPayerUnknown   = errors.New("payer is not a tracked character")
	errAlreadyMatched = errors.New("payment already matched")
)

type IngestSummary struct {
	Seen      int `json:"seen"`
	Stored    int `json:"stored"`
	Duplicate int `json:"duplicate"`
	Filtered  int `json:"filtered"`
	Failed    int `json:"failed"`
}

// CreditPoster is the part of the ledger the matcher needs.
type CreditPoster interface {
	PostCreditTx(ctx context.Context, tx store.Execer, req CreditRequest) (models.CreditEntry, error)
	Announce(ctx context.Context, characterID int64)
}

type ReconcileService struct {
	txRunner   db.TxRunner
	payments   PaymentStore
	characters CharacterStore
	settings   SettingsStore
	ledger     CreditPoster
	pool       Runner
	logger     *slog.Logger
}

func NewReconcileService(txRunner db.TxRunner, payments PaymentStore, characters CharacterStore, settings SettingsStore, ledger CreditPoster, pool Runner, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		txRunner:   txRunner,
		payments:   payments,
		characters: characters,
		settings:   settings,
		ledger:     ledger,
		pool:       pool,
		logger:     logger,
	}
}

// MatchesPhrase is a case-insensitive substring test. An empty phrase
// matches every narration.
func MatchesPhrase(phrase, narration string) bool {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return true
	}
	return strings.Contains(strings.ToLower(narration), strings.ToLower(phrase))
}

// IngestPayments appends the records that carry the configured phrase to the
// payment log. Records already logged for the corporation are skipped.
func (s *ReconcileService) IngestPayments(ctx context.Context, corporationID int64, records []models.PaymentRecord) (IngestSummary, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return IngestSummary{}, err
	}
	summary := IngestSummary{Seen: len(records)}
	for _, record := range records {
		if !MatchesPhrase(settings.Phrase, record.Description) {
			summary.Filtered++
			metrics.PaymentsIngested.WithLabelValues("filtered").Inc()
			continue
		}
		inserted, err := s.payments.Insert(ctx, models.Payment{
			ID:            uuid.NewString(),
			CorporationID: corporationID,
			JournalID:     record.JournalID,
			Date:          record.Date.UTC(),
			Amount:        record.Amount,
			PayerEveID:    record.PayerEveID,
			Description:   record.Description,
		})
		switch {
		case err != nil:
			summary.Failed++
			metrics.PaymentsIngested.WithLabelValues("failed").Inc()
			s.logger.Error("payment insert failed", "corporation_id", corporationID, "journal_id", record.JournalID, "error", err)
		case inserted:
			summary.Stored++
			metrics.PaymentsIngested.WithLabelValues("stored").Inc()
		default:
			summary.Duplicate++
			metrics.PaymentsIngested.WithLabelValues("duplicate").Inc()
		}
	}
	s.logger.Info("payments ingested", "corporation_id", corporationID, "seen", summary.Seen,
		"stored", summary.Stored, "duplicate", summary.Duplicate, "filtered", summary.Filtered, "failed", summary.Failed)
	return summary, nil
}

// MatchPayments turns unmatched payments into payment credits. The credit and
// the match marker commit together, so a payment is credited at most once.
func (s *ReconcileService) MatchPayments(ctx context.Context) (jobs.Summary, error) {
	unmatched, err := s.payments.ListUnmatched(ctx)
	if err != nil {
		return jobs.Summary{}, err
	}
	summary := s.pool.Run(ctx, "match_payments", len(unmatched), func(ctx context.Context, i int) error {
		return s.matchOne(ctx, unmatched[i])
	})
	return summary, nil
}

func (s *ReconcileService) matchOne(ctx context.Context, payment models.Payment) error {
	if payment.PayerEveID == nil {
		return jobs.Skip(errPayerUnknown)
	}
	if !payment.Amount.IsPositive() {
		return jobs.Skip(fmt.Errorf("%w: payment %s amount %s", ErrInvalidAmount, payment.ID, payment.Amount))
	}
	character, err := s.characters.GetByEveID(ctx, *payment.PayerEveID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.PaymentsMatched.WithLabelValues("unmatched").Inc()
			s.logger.Warn("payment from untracked payer left unmatched", "payment_id", payment.ID,
				"journal_id", payment.JournalID, "payer_eve_id", *payment.PayerEveID)
			return jobs.Skip(errPayerUnknown)
		}
		return err
	}

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		entry, err := s.ledger.PostCreditTx(ctx, tx, CreditRequest{
			CharacterID: character.ID,
			Amount:      payment.Amount,
			Category:    models.CreditCategoryPayment,
			Reason:      paymentReasonPrefix + payment.Description,
		})
		if err != nil {
			return err
		}
		rows, err := s.payments.MarkMatched(ctx, tx, payment.ID, entry.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errAlreadyMatched
		}
		return nil
	})
	if errors.Is(err, errAlreadyMatched) {
		return jobs.Skip(err)
	}
	if err != nil {
		return fmt.Errorf("payment %s: %w", payment.ID, err)
	}
	metrics.PaymentsMatched.WithLabelValues("matched").Inc()
	s.logger.Info("payment matched", "payment_id", payment.ID, "character_id", character.ID, "amount", payment.Amount.String())
	s.ledger.Announce(ctx, character.ID)
	return nil
}
