package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"pvetax/internal/db"
	"pvetax/internal/jobs"
	"pvetax/internal/metrics"
	"pvetax/internal/models"
	"pvetax/internal/store"
	"pvetax/internal/tax"
	"pvetax/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const zeroBalanceReason = "Balance zeroed by admin"

type RecordOutcome string

const (
	OutcomeCreated   RecordOutcome = "created"
	OutcomeDuplicate RecordOutcome = "duplicate"
	OutcomeIgnored   RecordOutcome = "ignored"
)

type RecordResult struct {
	Outcome RecordOutcome
	Entry   models.IncomeEntry
}

type CreditRequest struct {
	CharacterID int64
	Amount      decimal.Decimal
	Category    models.CreditCategory
	Reason      string
	Actor       *string
}

type Balance struct {
	CharacterID  int64           `json:"character_id"`
	Lifetime     decimal.Decimal `json:"lifetime"`
	CurrentMonth decimal.Decimal `json:"current_month"`
}

type LedgerPage struct {
	Income  []models.IncomeEntry `json:"income"`
	Credits []models.CreditEntry `json:"credits"`
}

type LedgerService struct {
	txRunner   db.TxRunner
	characters CharacterStore
	income     IncomeStore
	credits    CreditStore
	identity   IdentityStore
	audit      AuditStore
	resolver   RateResolver
	hub        BalanceHub
	pool       Runner
	logger     *slog.Logger
	now        func() time.Time
}

func NewLedgerService(txRunner db.TxRunner, characters CharacterStore, income IncomeStore, credits CreditStore, identity IdentityStore, audit AuditStore, resolver RateResolver, hub BalanceHub, pool Runner, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		txRunner:   txRunner,
		characters: characters,
		income:     income,
		credits:    credits,
		identity:   identity,
		audit:      audit,
		resolver:   resolver,
		hub:        hub,
		pool:       pool,
		logger:     logger,
		now:        time.Now,
	}
}

// RecordIncome stores one journal row for a character. Rows already stored
// come back as duplicates and untaxed ref types are dropped without a write.
func (s *LedgerService) RecordIncome(ctx context.Context, characterID int64, event models.IncomeEvent) (RecordResult, error) {
	existing, err := s.income.GetByJournalID(ctx, characterID, event.JournalID)
	if err == nil {
		metrics.IncomeEntries.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return RecordResult{Outcome: OutcomeDuplicate, Entry: existing}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return RecordResult{}, err
	}

	activity, taxed := tax.Classify(event.RefType)
	if !taxed {
		metrics.IncomeEntries.WithLabelValues(string(OutcomeIgnored)).Inc()
		return RecordResult{Outcome: OutcomeIgnored}, nil
	}

	rate := s.resolver.Resolve(ctx, event.LocationID, activity)
	entry := models.IncomeEntry{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		JournalID:   event.JournalID,
		Date:        event.Date.UTC(),
		Amount:      event.Amount,
		RefType:     event.RefType,
		Activity:    string(activity),
		LocationID:  event.LocationID,
		Description: event.Description,
		TaxRate:     rate,
		TaxAmount:   event.Amount.Mul(rate),
	}
	if err := s.income.Insert(ctx, entry); err != nil {
		if !errors.Is(err, ErrDuplicateEntry) {
			return RecordResult{}, err
		}
		s.logger.Info("income entry raced with another writer", "character_id", characterID, "journal_id", event.JournalID)
		metrics.IncomeEntries.WithLabelValues(string(OutcomeDuplicate)).Inc()
		stored, err := s.income.GetByJournalID(ctx, characterID, event.JournalID)
		if err != nil {
			return RecordResult{Outcome: OutcomeDuplicate}, nil
		}
		return RecordResult{Outcome: OutcomeDuplicate, Entry: stored}, nil
	}
	metrics.IncomeEntries.WithLabelValues(string(OutcomeCreated)).Inc()
	return RecordResult{Outcome: OutcomeCreated, Entry: entry}, nil
}

func validateCredit(req CreditRequest) error {
	if req.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if !req.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// PostCredit appends a credit entry and moves the cached credit total in the
// same transaction, then pushes the new balance to the owner's sockets.
func (s *LedgerService) PostCredit(ctx context.Context, req CreditRequest) (models.CreditEntry, error) {
	if err := validateCredit(req); err != nil {
		return models.CreditEntry{}, err
	}
	var entry models.CreditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		entry, err = s.PostCreditTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return models.CreditEntry{}, err
	}
	s.Announce(ctx, req.CharacterID)
	return entry, nil
}

// PostCreditTx is PostCredit for callers that need more writes in the same
// transaction. The caller announces the balance after commit.
func (s *LedgerService) PostCreditTx(ctx context.Context, tx store.Execer, req CreditRequest) (models.CreditEntry, error) {
	if err := validateCredit(req); err != nil {
		return models.CreditEntry{}, err
	}
	rows, err := s.characters.AdjustLifeCredits(ctx, tx, req.CharacterID, req.Amount)
	if err != nil {
		return models.CreditEntry{}, err
	}
	if rows == 0 {
		return models.CreditEntry{}, ErrCharacterNotFound
	}
	entry := models.CreditEntry{
		ID:          uuid.NewString(),
		CharacterID: req.CharacterID,
		Amount:      req.Amount,
		Category:    req.Category,
		Reason:      req.Reason,
		Actor:       req.Actor,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.credits.Insert(ctx, tx, entry); err != nil {
		return models.CreditEntry{}, err
	}
	metrics.CreditsPosted.WithLabelValues(string(req.Category)).Inc()
	return entry, nil
}

// Announce pushes a character's balance to its owner. Failures only log.
func (s *LedgerService) Announce(ctx context.Context, characterID int64) {
	if s.hub == nil {
		return
	}
	character, err := s.characters.GetByID(ctx, characterID)
	if err != nil || character.OwnerAccountID == nil {
		return
	}
	balance, err := s.balanceOf(ctx, character)
	if err != nil {
		s.logger.Warn("balance broadcast skipped", "character_id", characterID, "error", err)
		return
	}
	s.hub.BroadcastBalance(*character.OwnerAccountID, websocket.BalanceUpdate{
		CharacterID:  characterID,
		Balance:      balance.Lifetime.StringFixed(2),
		CurrentMonth: balance.CurrentMonth.StringFixed(2),
	})
}

func (s *LedgerService) Balance(ctx context.Context, characterID int64) (Balance, error) {
	character, err := s.getCharacter(ctx, characterID)
	if err != nil {
		return Balance{}, err
	}
	return s.balanceOf(ctx, character)
}

func (s *LedgerService) balanceOf(ctx context.Context, character models.Character) (Balance, error) {
	total, err := s.income.SumTax(ctx, character.ID, nil)
	if err != nil {
		return Balance{}, err
	}
	start := monthStart(s.now())
	month, err := s.income.SumTax(ctx, character.ID, &start)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		CharacterID:  character.ID,
		Lifetime:     total.Sub(character.LifeCredits),
		CurrentMonth: month,
	}, nil
}

func (s *LedgerService) getCharacter(ctx context.Context, characterID int64) (models.Character, error) {
	character, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Character{}, ErrCharacterNotFound
		}
		return models.Character{}, err
	}
	return character, nil
}

// RecomputeMonthlyBreakdowns rebuilds the cached YYYY-MM maps and the cached
// lifetime tax from the stored entries.
func (s *LedgerService) RecomputeMonthlyBreakdowns(ctx context.Context, characterID int64) error {
	if _, err := s.getCharacter(ctx, characterID); err != nil {
		return err
	}
	incomeRows, err := s.income.MonthlyTotals(ctx, characterID)
	if err != nil {
		return err
	}
	creditRows, err := s.credits.MonthlyTotals(ctx, characterID)
	if err != nil {
		return err
	}
	activity := models.Breakdown{}
	taxes := models.Breakdown{}
	credits := models.Breakdown{}
	lifeTaxes := decimal.Zero
	for _, row := range incomeRows {
		activity.Add(row.Month, row.Activity, row.Amount)
		taxes.Add(row.Month, row.Activity, row.Tax)
		lifeTaxes = lifeTaxes.Add(row.Tax)
	}
	for _, row := range creditRows {
		credits.Add(row.Month, row.Category, row.Amount)
	}
	return s.characters.UpdateBreakdowns(ctx, characterID, activity, taxes, credits, lifeTaxes)
}

// RetaxCharacter re-resolves the rate of every stored entry under the current
// policy. Entries are otherwise frozen at their first rate.
func (s *LedgerService) RetaxCharacter(ctx context.Context, characterID int64, actor string) (int, error) {
	if _, err := s.getCharacter(ctx, characterID); err != nil {
		return 0, err
	}
	entries, err := s.income.ListAllByCharacter(ctx, characterID)
	if err != nil {
		return 0, err
	}
	changed := 0
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed = 0
		for _, entry := range entries {
			rate := s.resolver.Resolve(ctx, entry.LocationID, tax.Activity(entry.Activity))
			if rate.Equal(entry.TaxRate) {
				continue
			}
			if err := s.income.UpdateTax(ctx, tx, entry.ID, rate, entry.Amount.Mul(rate)); err != nil {
				return err
			}
			changed++
		}
		data, _ := json.Marshal(map[string]int{"entries_changed": changed})
		return s.audit.Log(ctx, tx, actor, "income.retax", "character", fmt.Sprint(characterID), string(data))
	})
	if err != nil {
		return 0, err
	}
	if err := s.RecomputeMonthlyBreakdowns(ctx, characterID); err != nil {
		return changed, err
	}
	return changed, nil
}

// AccountBalances sums character balances per owning account. Orphaned
// characters belong to no account and are left out.
func (s *LedgerService) AccountBalances(ctx context.Context) ([]models.AccountBalance, error) {
	rows, err := s.characters.ListBalances(ctx, monthStart(s.now()))
	if err != nil {
		return nil, err
	}
	byAccount := make(map[string]*models.AccountBalance)
	var ids []string
	for _, row := range rows {
		if row.OwnerAccountID == nil {
			continue
		}
		id := *row.OwnerAccountID
		balance, ok := byAccount[id]
		if !ok {
			balance = &models.AccountBalance{
				Account:      models.Account{ID: id, Username: id},
				Lifetime:     decimal.Zero,
				CurrentMonth: decimal.Zero,
			}
			byAccount[id] = balance
			ids = append(ids, id)
		}
		balance.Lifetime = balance.Lifetime.Add(row.Lifetime())
		balance.CurrentMonth = balance.CurrentMonth.Add(row.MonthTax)
		balance.CharacterIDs = append(balance.CharacterIDs, row.CharacterID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	accounts, err := s.identity.GetAccounts(ctx, ids)
	if err != nil {
		s.logger.Warn("account lookup failed, using account ids as names", "error", fmt.Errorf("%w: %v", ErrSourceLookup, err))
	}
	for _, account := range accounts {
		if balance, ok := byAccount[account.ID]; ok {
			balance.Account = account
		}
	}

	sort.Strings(ids)
	out := make([]models.AccountBalance, 0, len(ids))
	for _, id := range ids {
		balance := byAccount[id]
		sort.Slice(balance.CharacterIDs, func(i, j int) bool { return balance.CharacterIDs[i] < balance.CharacterIDs[j] })
		out = append(out, *balance)
	}
	return out, nil
}

// ZeroBalances posts an offsetting adjustment for every character with a
// non-zero net balance.
func (s *LedgerService) ZeroBalances(ctx context.Context, actor string) (jobs.Summary, error) {
	rows, err := s.characters.ListBalances(ctx, monthStart(s.now()))
	if err != nil {
		return jobs.Summary{}, err
	}
	var targets []store.CharacterBalance
	for _, row := range rows {
		if !row.Lifetime().IsZero() {
			targets = append(targets, row)
		}
	}
	summary := s.pool.Run(ctx, "zero_balances", len(targets), func(ctx context.Context, i int) error {
		row := targets[i]
		err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			entry, err := s.PostCreditTx(ctx, tx, CreditRequest{
				CharacterID: row.CharacterID,
				Amount:      row.Lifetime(),
				Category:    models.CreditCategoryAdjustment,
				Reason:      zeroBalanceReason,
				Actor:       &actor,
			})
			if err != nil {
				return err
			}
			data, _ := json.Marshal(map[string]string{
				"credit_id": entry.ID,
				"amount":    entry.Amount.String(),
			})
			return s.audit.Log(ctx, tx, actor, "balance.zero", "character", fmt.Sprint(row.CharacterID), string(data))
		})
		if err != nil {
			return fmt.Errorf("character %d: %w", row.CharacterID, err)
		}
		s.Announce(ctx, row.CharacterID)
		return nil
	})
	return summary, nil
}

// AdminCredit posts a manual credit and records who did it.
func (s *LedgerService) AdminCredit(ctx context.Context, actor string, req CreditRequest) (models.CreditEntry, error) {
	if err := validateCredit(req); err != nil {
		return models.CreditEntry{}, err
	}
	req.Actor = &actor
	var entry models.CreditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		entry, err = s.PostCreditTx(ctx, tx, req)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"credit_id": entry.ID,
			"amount":    entry.Amount.String(),
			"category":  string(entry.Category),
		})
		return s.audit.Log(ctx, tx, actor, "credit.post", "character", fmt.Sprint(req.CharacterID), string(data))
	})
	if err != nil {
		return models.CreditEntry{}, err
	}
	s.Announce(ctx, req.CharacterID)
	return entry, nil
}

// RegisterCharacter starts tracking a character the account owns. Registering
// a tracked character again returns the existing record.
func (s *LedgerService) RegisterCharacter(ctx context.Context, accountID string, eveCharacterID int64) (models.Character, error) {
	name, owned, err := s.identity.OwnedName(ctx, accountID, eveCharacterID)
	if err != nil {
		return models.Character{}, err
	}
	if !owned {
		return models.Character{}, ErrNotOwner
	}
	character, err := s.characters.Create(ctx, eveCharacterID, name)
	if errors.Is(err, store.ErrDuplicate) {
		return s.characters.GetByEveID(ctx, eveCharacterID)
	}
	return character, err
}

func (s *LedgerService) CharactersForAccount(ctx context.Context, accountID string) ([]models.Character, error) {
	return s.characters.ListByAccount(ctx, accountID)
}

// Ledger pages a character's income and credit entries, newest first. Only
// the owning account may read it.
func (s *LedgerService) Ledger(ctx context.Context, accountID string, characterID int64, limit, offset int) (LedgerPage, error) {
	character, err := s.getCharacter(ctx, characterID)
	if err != nil {
		return LedgerPage{}, err
	}
	if character.OwnerAccountID == nil || *character.OwnerAccountID != accountID {
		return LedgerPage{}, ErrNotOwner
	}
	income, err := s.income.ListByCharacter(ctx, characterID, limit, offset)
	if err != nil {
		return LedgerPage{}, err
	}
	credits, err := s.credits.ListByCharacter(ctx, characterID, limit, offset)
	if err != nil {
		return LedgerPage{}, err
	}
	return LedgerPage{Income: income, Credits: credits}, nil
}

// AccountBalance returns the balance of every character the account owns.
func (s *LedgerService) AccountBalance(ctx context.Context, accountID string) ([]Balance, error) {
	characters, err := s.characters.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(characters))
	for _, character := range characters {
		balance, err := s.balanceOf(ctx, character)
		if err != nil {
			return nil, err
		}
		out = append(out, balance)
	}
	return out, nil
}

func (s *LedgerService) CreditDrift(ctx context.Context) ([]store.CreditDrift, error) {
	return s.characters.ListCreditDrift(ctx)
}
