package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pvetax/internal/config"
	"pvetax/internal/models"
	"pvetax/internal/money"
	"pvetax/internal/notify"

	"github.com/shopspring/decimal"
)

const (
	interestTitle = "PVE Tax Interest Applied"
	dueTitle      = "PVE Taxes Due"
	currentTitle  = "PVE Taxes This Month"
)

type Tier string

const (
	TierFirst   Tier = "first"
	TierSecond  Tier = "second"
	TierCurrent Tier = "current"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFirst, TierSecond, TierCurrent:
		return Tier(s), nil
	}
	return "", fmt.Errorf("unknown notice tier %q", s)
}

type InterestReport struct {
	Skipped   bool            `json:"skipped"`
	Reason    string          `json:"reason,omitempty"`
	Rate      decimal.Decimal `json:"rate"`
	Accounts  int             `json:"accounts"`
	Posted    int             `json:"posted"`
	Failed    int             `json:"failed"`
	Total     decimal.Decimal `json:"total"`
	AppliedAt time.Time       `json:"applied_at"`
}

type NotifyReport struct {
	Tier          Tier `json:"tier"`
	Due           int  `json:"due"`
	Current       int  `json:"current"`
	Notified      int  `json:"notified"`
	Failed        int  `json:"failed"`
	SummarySent   bool `json:"summary_sent"`
	SummaryFailed bool `json:"summary_failed"`
}

type MonthlyReport struct {
	Interest InterestReport `json:"interest"`
	Notices  NotifyReport   `json:"notices"`
}

// BalanceLedger is the part of the ledger the monthly batch needs.
type BalanceLedger interface {
	AccountBalances(ctx context.Context) ([]models.AccountBalance, error)
	PostCredit(ctx context.Context, req CreditRequest) (models.CreditEntry, error)
}

type MonthlyService struct {
	settings SettingsStore
	ledger   BalanceLedger
	notifier notify.Notifier
	stats    StatsRefresher
	policy   config.NotificationPolicy
	pool     Runner
	logger   *slog.Logger
	now      func() time.Time
}

func NewMonthlyService(settings SettingsStore, ledger BalanceLedger, notifier notify.Notifier, stats StatsRefresher, policy config.NotificationPolicy, pool Runner, logger *slog.Logger) *MonthlyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonthlyService{
		settings: settings,
		ledger:   ledger,
		notifier: notifier,
		stats:    stats,
		policy:   policy,
		pool:     pool,
		logger:   logger,
		now:      time.Now,
	}
}

// InterestReason is the credit reason for a monthly interest charge.
func InterestReason(rate decimal.Decimal) string {
	return fmt.Sprintf("Monthly interest (%s%%) applied to outstanding balance", rate.Mul(decimal.NewFromInt(100)).StringFixed(2))
}

// ApplyInterest charges interest once per calendar month. The month marker is
// claimed before any posting, so a second run in the same month is a no-op
// even when the first one found no accounts.
func (s *MonthlyService) ApplyInterest(ctx context.Context) (InterestReport, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return InterestReport{}, err
	}
	report := InterestReport{Rate: settings.InterestRate, Total: decimal.Zero}
	if !settings.InterestRate.IsPositive() {
		report.Skipped, report.Reason = true, "interest rate is not positive"
		return report, nil
	}
	if settings.InterestRate.GreaterThan(decimal.NewFromInt(1)) {
		return report, fmt.Errorf("%w: interest rate %s", ErrSettingsInvalid, settings.InterestRate)
	}

	now := s.now().UTC()
	start := monthStart(now)
	if settings.LastInterestApplied != nil && !settings.LastInterestApplied.Before(start) {
		report.Skipped, report.Reason = true, "already applied this month"
		return report, nil
	}
	claimed, err := s.settings.ClaimInterestRun(ctx, now, start)
	if err != nil {
		return report, err
	}
	if !claimed {
		report.Skipped, report.Reason = true, "already applied this month"
		return report, nil
	}
	report.AppliedAt = now

	balances, err := s.ledger.AccountBalances(ctx)
	if err != nil {
		if releaseErr := s.settings.ReleaseInterestRun(ctx, now, settings.LastInterestApplied); releaseErr != nil {
			s.logger.Error("interest marker release failed", "error", releaseErr)
		}
		return report, err
	}
	var owing []models.AccountBalance
	for _, balance := range balances {
		if balance.Lifetime.IsPositive() && len(balance.CharacterIDs) > 0 {
			owing = append(owing, balance)
		}
	}
	report.Accounts = len(owing)

	reason := InterestReason(settings.InterestRate)
	var mu sync.Mutex
	summary := s.pool.Run(ctx, "apply_interest", len(owing), func(ctx context.Context, i int) error {
		balance := owing[i]
		interest := balance.Lifetime.Mul(settings.InterestRate).Round(2)
		if !interest.IsPositive() {
			return nil
		}
		if _, err := s.ledger.PostCredit(ctx, CreditRequest{
			CharacterID: balance.CharacterIDs[0],
			Amount:      interest.Neg(),
			Category:    models.CreditCategoryInterest,
			Reason:      reason,
		}); err != nil {
			return fmt.Errorf("account %s: %w", balance.Account.ID, err)
		}
		mu.Lock()
		report.Total = report.Total.Add(interest)
		mu.Unlock()

		message := fmt.Sprintf(s.policy.InterestMessage, money.Millions(interest))
		if err := s.notifier.Notify(ctx, balance.Account, interestTitle, message); err != nil {
			s.logger.Warn("interest notice not delivered", "account_id", balance.Account.ID, "error", err)
		}
		return nil
	})
	report.Posted = summary.Succeeded
	report.Failed = summary.Failed
	s.logger.Info("interest applied", "rate", settings.InterestRate.String(), "accounts", report.Accounts,
		"posted", report.Posted, "failed", report.Failed, "total", report.Total.StringFixed(2))
	return report, nil
}

func (s *MonthlyService) template(tier Tier) string {
	switch tier {
	case TierSecond:
		return s.policy.SecondMessage
	case TierCurrent:
		return s.policy.CurrentMessage
	default:
		return s.policy.FirstMessage
	}
}

// NotifyDue sends a notice to every account over the due threshold, using the
// tier's template, and a current-month notice to every account whose tax this
// month crossed the current-month threshold. An account can get both. Due
// accounts also go into one summary report.
func (s *MonthlyService) NotifyDue(ctx context.Context, tier Tier) (NotifyReport, error) {
	balances, err := s.ledger.AccountBalances(ctx)
	if err != nil {
		return NotifyReport{}, err
	}
	dueThreshold := decimal.NewFromFloat(s.policy.DueThreshold)
	currentThreshold := decimal.NewFromFloat(s.policy.CurrentThreshold)

	type notice struct {
		account models.Account
		title   string
		message string
	}
	var notices []notice
	var rows []models.SummaryRow
	report := NotifyReport{Tier: tier}
	for _, balance := range balances {
		if balance.Lifetime.GreaterThan(dueThreshold) {
			report.Due++
			notices = append(notices, notice{
				account: balance.Account,
				title:   dueTitle,
				message: fmt.Sprintf(s.template(tier), money.Millions(balance.Lifetime)),
			})
			rows = append(rows, models.SummaryRow{
				DisplayName:  balance.Account.DisplayName(),
				AccountLabel: balance.Account.Username,
				Balance:      balance.Lifetime,
			})
		}
		if balance.CurrentMonth.GreaterThan(currentThreshold) {
			report.Current++
			notices = append(notices, notice{
				account: balance.Account,
				title:   currentTitle,
				message: fmt.Sprintf(s.policy.CurrentMessage, money.Millions(balance.CurrentMonth)),
			})
		}
	}

	summary := s.pool.Run(ctx, "notify_due", len(notices), func(ctx context.Context, i int) error {
		n := notices[i]
		return s.notifier.Notify(ctx, n.account, n.title, n.message)
	})
	report.Notified = summary.Succeeded
	report.Failed = summary.Failed

	if len(rows) > 0 {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Balance.GreaterThan(rows[j].Balance) })
		if err := s.notifier.Summary(ctx, rows); err != nil {
			report.SummaryFailed = true
			s.logger.Warn("summary report not delivered", "rows", len(rows), "error", err)
		} else {
			report.SummarySent = true
		}
	}
	s.logger.Info("due notices sent", "tier", string(tier), "due", report.Due, "current", report.Current,
		"notified", report.Notified, "failed", report.Failed)
	return report, nil
}

// RunMonthly applies interest, sends first-tier notices and rebuilds stats.
// A failing step is reported and does not stop the next.
func (s *MonthlyService) RunMonthly(ctx context.Context) (MonthlyReport, error) {
	var report MonthlyReport
	var errs []error

	interest, err := s.ApplyInterest(ctx)
	report.Interest = interest
	if err != nil {
		s.logger.Error("monthly interest failed", "error", err)
		errs = append(errs, fmt.Errorf("interest: %w", err))
	}

	notices, err := s.NotifyDue(ctx, TierFirst)
	report.Notices = notices
	if err != nil {
		s.logger.Error("monthly notices failed", "error", err)
		errs = append(errs, fmt.Errorf("notices: %w", err))
	}

	if _, err := s.stats.Refresh(ctx); err != nil {
		s.logger.Error("monthly stats refresh failed", "error", err)
		errs = append(errs, fmt.Errorf("stats: %w", err))
	}
	return report, errors.Join(errs...)
}
