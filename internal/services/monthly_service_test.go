package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pvetax/internal/config"
	"pvetax/internal/models"
)

type monthlyFixture struct {
	*ledgerFixture
	settings *memSettings
	notifier *recordingNotifier
	stats    *stubRefresher
	service  *MonthlyService
}

func newMonthlyFixture(rate string) *monthlyFixture {
	identity := stubIdentity{accounts: map[string]models.Account{
		"account-1": {ID: "account-1", Username: "alice"},
		"account-2": {ID: "account-2", Username: "bob"},
	}}
	lf := newLedgerFixture(fixedRate{rate: d("0.1")}, identity, ledgerNow)
	f := &monthlyFixture{
		ledgerFixture: lf,
		settings:      &memSettings{settings: models.Settings{InterestRate: d(rate)}},
		notifier:      &recordingNotifier{},
		stats:         &stubRefresher{},
	}
	f.service = NewMonthlyService(f.settings, lf.service, f.notifier, f.stats, config.DefaultPolicy().Notifications, testPool(), nil)
	f.service.now = func() time.Time { return ledgerNow }
	return f
}

func (f *monthlyFixture) earn(characterID, journalID int64, amount string, at time.Time) {
	if _, err := f.ledgerFixture.service.RecordIncome(context.Background(), characterID, bountyEvent(journalID, amount, nil, at)); err != nil {
		panic(err)
	}
}

func TestApplyInterestOncePerMonth(t *testing.T) {
	f := newMonthlyFixture("0.05")
	char := f.characters.add(9001, "Pilot", "account-1")
	f.earn(char.ID, 1, "20000000", ledgerNow)
	ctx := context.Background()

	report, err := f.service.ApplyInterest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped || report.Posted != 1 || !report.Total.Equal(d("100000")) {
		t.Fatalf("unexpected report: %+v", report)
	}
	if f.credits.count() != 1 {
		t.Fatalf("expected one interest entry, got %d", f.credits.count())
	}
	entry := f.credits.entries[0]
	if entry.Category != models.CreditCategoryInterest || !entry.Amount.Equal(d("-100000")) {
		t.Fatalf("unexpected interest entry: %+v", entry)
	}
	if entry.Reason != "Monthly interest (5.00%) applied to outstanding balance" {
		t.Fatalf("unexpected reason %q", entry.Reason)
	}
	if len(f.notifier.notices) != 1 || f.notifier.notices[0].title != "PVE Tax Interest Applied" {
		t.Fatalf("expected interest notice, got %+v", f.notifier.notices)
	}

	again, err := f.service.ApplyInterest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !again.Skipped || f.credits.count() != 1 {
		t.Fatalf("expected second run to post nothing, got %+v", again)
	}
	balance, _ := f.ledgerFixture.service.Balance(ctx, char.ID)
	if !balance.Lifetime.Equal(d("2100000")) {
		t.Fatalf("expected balance 2100000, got %s", balance.Lifetime)
	}
}

func TestApplyInterestRunsAgainNextMonth(t *testing.T) {
	f := newMonthlyFixture("0.05")
	char := f.characters.add(9001, "Pilot", "account-1")
	f.earn(char.ID, 1, "20000000", ledgerNow)
	last := ledgerNow.AddDate(0, -1, 0)
	f.settings.settings.LastInterestApplied = &last

	report, err := f.service.ApplyInterest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped || report.Posted != 1 {
		t.Fatalf("expected interest after a month boundary, got %+v", report)
	}
}

func TestApplyInterestSkipsZeroRateAndCreditBalances(t *testing.T) {
	f := newMonthlyFixture("0")
	report, err := f.service.ApplyInterest(context.Background())
	if err != nil || !report.Skipped {
		t.Fatalf("expected skip for zero rate, got %+v %v", report, err)
	}
	if f.settings.settings.LastInterestApplied != nil {
		t.Fatalf("zero rate must not claim the month")
	}

	f = newMonthlyFixture("0.05")
	char := f.characters.add(9001, "Pilot", "account-1")
	_, _ = f.ledgerFixture.service.PostCredit(context.Background(), CreditRequest{
		CharacterID: char.ID, Amount: d("500"), Category: models.CreditCategoryPayment,
	})
	report, err = f.service.ApplyInterest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Accounts != 0 || f.credits.count() != 1 {
		t.Fatalf("expected no interest on a credit balance, got %+v", report)
	}
}

func TestApplyInterestSkipsNegativeRate(t *testing.T) {
	f := newMonthlyFixture("-0.05")
	char := f.characters.add(9001, "Pilot", "account-1")
	f.earn(char.ID, 1, "1000", ledgerNow.AddDate(0, -1, 0))
	report, err := f.service.ApplyInterest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Skipped || report.Reason != "interest rate is not positive" {
		t.Fatalf("expected skip for negative rate, got %+v", report)
	}
	if f.credits.count() != 0 || f.settings.settings.LastInterestApplied != nil {
		t.Fatalf("negative rate must not post or claim the month")
	}
}

func TestApplyInterestRejectsInvalidRate(t *testing.T) {
	f := newMonthlyFixture("1.5")
	if _, err := f.service.ApplyInterest(context.Background()); !errors.Is(err, ErrSettingsInvalid) {
		t.Fatalf("expected ErrSettingsInvalid, got %v", err)
	}
}

func TestNotifyDueSendsTierAndCurrentNotices(t *testing.T) {
	f := newMonthlyFixture("0")
	due := f.characters.add(1, "Debtor", "account-1")
	current := f.characters.add(2, "Earner", "account-2")
	f.characters.add(3, "Orphan", "")
	f.earn(due.ID, 1, "150000000", ledgerNow.AddDate(0, -2, 0))
	f.earn(current.ID, 2, "20000000", ledgerNow)

	report, err := f.service.NotifyDue(context.Background(), TierSecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Due != 1 || report.Current != 1 || report.Notified != 2 || !report.SummarySent {
		t.Fatalf("unexpected report: %+v", report)
	}
	var dueNotice, currentNotice sentNotice
	for _, n := range f.notifier.notices {
		switch n.accountID {
		case "account-1":
			dueNotice = n
		case "account-2":
			currentNotice = n
		}
	}
	if dueNotice.title != "PVE Taxes Due" || !strings.HasPrefix(dueNotice.message, "Reminder: You still owe 15.00 million") {
		t.Fatalf("unexpected due notice: %+v", dueNotice)
	}
	if currentNotice.title != "PVE Taxes This Month" || !strings.Contains(currentNotice.message, "2.00 million") {
		t.Fatalf("unexpected current notice: %+v", currentNotice)
	}
	if len(f.notifier.summaries) != 1 || len(f.notifier.summaries[0]) != 1 || f.notifier.summaries[0][0].DisplayName != "alice" {
		t.Fatalf("unexpected summary rows: %+v", f.notifier.summaries)
	}
}

func TestNotifyDueSurfacesDueAccountEarningThisMonth(t *testing.T) {
	f := newMonthlyFixture("0")
	char := f.characters.add(1, "Debtor", "account-1")
	f.earn(char.ID, 1, "150000000", ledgerNow.AddDate(0, -2, 0))
	f.earn(char.ID, 2, "20000000", ledgerNow)

	report, err := f.service.NotifyDue(context.Background(), TierFirst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Due != 1 || report.Current != 1 || report.Notified != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	titles := map[string]string{}
	for _, n := range f.notifier.notices {
		if n.accountID != "account-1" {
			t.Fatalf("unexpected notice recipient: %+v", n)
		}
		titles[n.title] = n.message
	}
	if !strings.Contains(titles["PVE Taxes Due"], "17.00 million") {
		t.Fatalf("expected due notice for the lifetime balance, got %+v", titles)
	}
	if !strings.Contains(titles["PVE Taxes This Month"], "2.00 million") {
		t.Fatalf("expected current-month notice, got %+v", titles)
	}
	if len(f.notifier.summaries) != 1 || len(f.notifier.summaries[0]) != 1 {
		t.Fatalf("due account should be summarised once: %+v", f.notifier.summaries)
	}
}

func TestNotifyDueToleratesSummaryFailure(t *testing.T) {
	f := newMonthlyFixture("0")
	char := f.characters.add(1, "Debtor", "account-1")
	f.earn(char.ID, 1, "150000000", ledgerNow)
	f.notifier.summaryErr = ErrTransport

	report, err := f.service.NotifyDue(context.Background(), TierFirst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.SummaryFailed || report.Notified != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunMonthlyContinuesPastFailures(t *testing.T) {
	f := newMonthlyFixture("0.05")
	f.settings.getErr = errors.New("settings unavailable")

	_, err := f.service.RunMonthly(context.Background())
	if err == nil || !strings.Contains(err.Error(), "interest") {
		t.Fatalf("expected interest failure, got %v", err)
	}
	if f.stats.calls != 1 {
		t.Fatalf("expected stats refresh to still run, got %d calls", f.stats.calls)
	}
}

func TestParseTier(t *testing.T) {
	if tier, err := ParseTier("second"); err != nil || tier != TierSecond {
		t.Fatalf("unexpected result %q %v", tier, err)
	}
	if _, err := ParseTier("third"); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}
