package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pvetax/internal/config"
	"pvetax/internal/esi"
	"pvetax/internal/jobs"
	"pvetax/internal/models"
	"pvetax/internal/notify"
)

const (
	tokenMissingTitle   = "PVE Tax Token Missing"
	tokenNoticeThrottle = 24 * time.Hour
)

var errFresh = errors.New("character updated recently")

type UpdateReport struct {
	CharacterID int64 `json:"character_id"`
	Skipped     bool  `json:"skipped"`
	Fetched     int   `json:"fetched"`
	Created     int   `json:"created"`
	Duplicate   int   `json:"duplicate"`
	Ignored     int   `json:"ignored"`
	Failed      int   `json:"failed"`
}

// IncomeRecorder is the part of the ledger the updater needs.
type IncomeRecorder interface {
	RecordIncome(ctx context.Context, characterID int64, event models.IncomeEvent) (RecordResult, error)
	RecomputeMonthlyBreakdowns(ctx context.Context, characterID int64) error
}

type PaymentReconciler interface {
	IngestPayments(ctx context.Context, corporationID int64, records []models.PaymentRecord) (IngestSummary, error)
	MatchPayments(ctx context.Context) (jobs.Summary, error)
}

type UpdateService struct {
	characters    CharacterStore
	admins        AdminCharacterStore
	credentials   CredentialSource
	income        IncomeFeed
	payments      PaymentFeed
	ledger        IncomeRecorder
	reconcile     PaymentReconciler
	stats         StatsRefresher
	identity      IdentityStore
	notifications NotificationStore
	notifier      notify.Notifier
	policy        config.JobPolicy
	division      int
	pool          Runner
	logger        *slog.Logger
	now           func() time.Time
}

type UpdateDeps struct {
	Characters    CharacterStore
	Admins        AdminCharacterStore
	Credentials   CredentialSource
	Income        IncomeFeed
	Payments      PaymentFeed
	Ledger        IncomeRecorder
	Reconcile     PaymentReconciler
	Stats         StatsRefresher
	Identity      IdentityStore
	Notifications NotificationStore
	Notifier      notify.Notifier
	Pool          Runner
	Logger        *slog.Logger
}

func NewUpdateService(deps UpdateDeps, policy config.JobPolicy, division int) *UpdateService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateService{
		characters:    deps.Characters,
		admins:        deps.Admins,
		credentials:   deps.Credentials,
		income:        deps.Income,
		payments:      deps.Payments,
		ledger:        deps.Ledger,
		reconcile:     deps.Reconcile,
		stats:         deps.Stats,
		identity:      deps.Identity,
		notifications: deps.Notifications,
		notifier:      deps.Notifier,
		policy:        policy,
		division:      division,
		pool:          deps.Pool,
		logger:        logger,
		now:           time.Now,
	}
}

// UpdateCharacter pulls the character's wallet journal and records every row.
// Characters updated inside the stale window are skipped unless forced.
func (s *UpdateService) UpdateCharacter(ctx context.Context, characterID int64, force bool) (UpdateReport, error) {
	report := UpdateReport{CharacterID: characterID}
	character, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report, ErrCharacterNotFound
		}
		return report, err
	}
	now := s.now().UTC()
	if !force && character.LastWalletUpdate != nil && now.Sub(*character.LastWalletUpdate) < s.policy.StaleAfter() {
		report.Skipped = true
		return report, nil
	}

	credential, err := s.credentials.Acquire(ctx, character.EveCharacterID, esi.ScopeCharacterWallet)
	if err != nil {
		if errors.Is(err, ErrAuthenticationUnavailable) {
			s.noticeMissingToken(ctx, character)
		}
		return report, err
	}

	events, err := s.income.CharacterJournal(ctx, character.EveCharacterID, credential.AccessToken)
	if err != nil {
		return report, fmt.Errorf("%w: wallet journal for character %d: %v", ErrSourceLookup, character.EveCharacterID, err)
	}
	report.Fetched = len(events)

	for _, event := range events {
		result, err := s.ledger.RecordIncome(ctx, character.ID, event)
		if err != nil {
			report.Failed++
			s.logger.Error("income entry not recorded", "character_id", character.ID, "journal_id", event.JournalID, "error", err)
			continue
		}
		switch result.Outcome {
		case OutcomeCreated:
			report.Created++
		case OutcomeDuplicate:
			report.Duplicate++
		case OutcomeIgnored:
			report.Ignored++
		}
	}

	if report.Created > 0 {
		if err := s.ledger.RecomputeMonthlyBreakdowns(ctx, character.ID); err != nil {
			s.logger.Warn("breakdown recompute failed", "character_id", character.ID, "error", err)
		}
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("character %d: %d journal rows failed", character.ID, report.Failed)
	}
	if err := s.characters.TouchWalletUpdate(ctx, character.ID, now); err != nil {
		return report, err
	}
	s.logger.Info("character updated", "character_id", character.ID, "fetched", report.Fetched,
		"created", report.Created, "duplicate", report.Duplicate, "ignored", report.Ignored)
	return report, nil
}

// UpdateAll runs UpdateCharacter for every tracked character, then refreshes
// the stats snapshot. Characters without a credential are skipped.
func (s *UpdateService) UpdateAll(ctx context.Context, force bool) (jobs.Summary, error) {
	characters, err := s.characters.ListAll(ctx)
	if err != nil {
		return jobs.Summary{}, err
	}
	summary := s.pool.Run(ctx, "update_character", len(characters), func(ctx context.Context, i int) error {
		report, err := s.UpdateCharacter(ctx, characters[i].ID, force)
		if err != nil {
			if errors.Is(err, ErrAuthenticationUnavailable) {
				return jobs.Skip(err)
			}
			return err
		}
		if report.Skipped {
			return jobs.Skip(errFresh)
		}
		return nil
	})
	if _, err := s.stats.Refresh(ctx); err != nil {
		return summary, fmt.Errorf("stats refresh: %w", err)
	}
	return summary, nil
}

// UpdateAdmin pulls the corporation donations visible to one accountant
// character into the payment log.
func (s *UpdateService) UpdateAdmin(ctx context.Context, adminID int64) (IngestSummary, error) {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IngestSummary{}, ErrAdminCharacterNotFound
		}
		return IngestSummary{}, err
	}
	credential, err := s.credentials.Acquire(ctx, admin.EveCharacterID, esi.ScopeCorporationWallet)
	if err != nil {
		return IngestSummary{}, err
	}
	records, err := s.payments.CorporationDonations(ctx, admin.CorporationID, s.division, credential.AccessToken)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("%w: corporation %d wallet: %v", ErrSourceLookup, admin.CorporationID, err)
	}
	summary, err := s.reconcile.IngestPayments(ctx, admin.CorporationID, records)
	if err != nil {
		return summary, err
	}
	if err := s.admins.TouchUpdate(ctx, admin.ID, s.now().UTC()); err != nil {
		return summary, err
	}
	return summary, nil
}

// UpdateAllAdmins ingests every accountant's corporation wallet, then runs
// one matching pass over the whole payment log.
func (s *UpdateService) UpdateAllAdmins(ctx context.Context) (jobs.Summary, jobs.Summary, error) {
	admins, err := s.admins.ListAll(ctx)
	if err != nil {
		return jobs.Summary{}, jobs.Summary{}, err
	}
	ingest := s.pool.Run(ctx, "update_admin", len(admins), func(ctx context.Context, i int) error {
		_, err := s.UpdateAdmin(ctx, admins[i].ID)
		if errors.Is(err, ErrAuthenticationUnavailable) {
			return jobs.Skip(err)
		}
		return err
	})
	matched, err := s.reconcile.MatchPayments(ctx)
	return ingest, matched, err
}

// noticeMissingToken tells the owner that the character cannot be read. At
// most one notice per account per day.
func (s *UpdateService) noticeMissingToken(ctx context.Context, character models.Character) {
	if s.notifier == nil {
		return
	}
	accountID, found, err := s.identity.OwnerOf(ctx, character.EveCharacterID)
	if err != nil || !found {
		s.logger.Warn("no owner to notify about missing token", "character_id", character.ID, "error", err)
		return
	}
	since := s.now().UTC().Add(-tokenNoticeThrottle)
	if s.notifications != nil {
		sent, err := s.notifications.ExistsSince(ctx, accountID, tokenMissingTitle, since)
		if err == nil && sent {
			return
		}
	}
	account, err := s.identity.GetAccount(ctx, accountID)
	if err != nil {
		s.logger.Warn("owner account lookup failed", "account_id", accountID, "error", fmt.Errorf("%w: %v", ErrSourceLookup, err))
		account = models.Account{ID: accountID, Username: accountID}
	}
	message := fmt.Sprintf("No valid wallet token for %s. PvE income cannot be tracked until the character is re-authorised.", character.Name)
	if err := s.notifier.Notify(ctx, account, tokenMissingTitle, message); err != nil {
		s.logger.Warn("missing token notice not delivered", "account_id", accountID, "error", err)
	}
}
