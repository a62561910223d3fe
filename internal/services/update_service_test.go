package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"pvetax/internal/config"
	"pvetax/internal/models"
)

type stubCredentials struct {
	tokens map[int64]string
}

func (s stubCredentials) Acquire(ctx context.Context, eveCharacterID int64, scope string) (models.Credential, error) {
	token, ok := s.tokens[eveCharacterID]
	if !ok {
		return models.Credential{}, fmt.Errorf("%w: character %d", ErrAuthenticationUnavailable, eveCharacterID)
	}
	return models.Credential{EveCharacterID: eveCharacterID, Scope: scope, AccessToken: token}, nil
}

type stubFeeds struct {
	journals  map[int64][]models.IncomeEvent
	donations map[int64][]models.PaymentRecord
	err       error
	calls     int
}

func (s *stubFeeds) CharacterJournal(ctx context.Context, eveCharacterID int64, accessToken string) ([]models.IncomeEvent, error) {
	s.calls++
	return s.journals[eveCharacterID], s.err
}

func (s *stubFeeds) CorporationDonations(ctx context.Context, corporationID int64, division int, accessToken string) ([]models.PaymentRecord, error) {
	s.calls++
	if division != 1 {
		return nil, fmt.Errorf("unexpected division %d", division)
	}
	return s.donations[corporationID], s.err
}

type memAdmins struct {
	admins  []models.AdminCharacter
	touched map[int64]time.Time
}

func (m *memAdmins) GetByID(ctx context.Context, id int64) (models.AdminCharacter, error) {
	for _, a := range m.admins {
		if a.ID == id {
			return a, nil
		}
	}
	return models.AdminCharacter{}, sql.ErrNoRows
}

func (m *memAdmins) ListAll(ctx context.Context) ([]models.AdminCharacter, error) {
	return m.admins, nil
}

func (m *memAdmins) TouchUpdate(ctx context.Context, id int64, at time.Time) error {
	if m.touched == nil {
		m.touched = map[int64]time.Time{}
	}
	m.touched[id] = at
	return nil
}

type stubNotifications struct {
	sent bool
}

func (s stubNotifications) ExistsSince(ctx context.Context, accountID, title string, since time.Time) (bool, error) {
	return s.sent, nil
}

type updateFixture struct {
	*reconcileFixture
	feeds    *stubFeeds
	admins   *memAdmins
	notifier *recordingNotifier
	stats    *stubRefresher
	service  *UpdateService
}

func newUpdateFixture(tokens map[int64]string, notices stubNotifications) *updateFixture {
	rf := newReconcileFixture("")
	f := &updateFixture{
		reconcileFixture: rf,
		feeds:            &stubFeeds{journals: map[int64][]models.IncomeEvent{}, donations: map[int64][]models.PaymentRecord{}},
		admins:           &memAdmins{},
		notifier:         &recordingNotifier{},
		stats:            &stubRefresher{},
	}
	identity := stubIdentity{
		owners:   map[int64]string{9001: "account-1", 9002: "account-2"},
		accounts: map[string]models.Account{"account-1": {ID: "account-1", Username: "alice"}},
	}
	f.service = NewUpdateService(UpdateDeps{
		Characters:    rf.characters,
		Admins:        f.admins,
		Credentials:   stubCredentials{tokens: tokens},
		Income:        f.feeds,
		Payments:      f.feeds,
		Ledger:        rf.ledgerFixture.service,
		Reconcile:     rf.service,
		Stats:         f.stats,
		Identity:      identity,
		Notifications: notices,
		Notifier:      f.notifier,
		Pool:          testPool(),
	}, config.DefaultPolicy().Jobs, 1)
	f.service.now = func() time.Time { return ledgerNow }
	return f
}

func TestUpdateCharacterRecordsJournal(t *testing.T) {
	f := newUpdateFixture(map[int64]string{9001: "token"}, stubNotifications{})
	char := f.characters.add(9001, "Pilot", "account-1")
	market := bountyEvent(3, "1000", nil, ledgerNow)
	market.RefType = "market_transaction"
	f.feeds.journals[9001] = []models.IncomeEvent{
		bountyEvent(1, "1000", nil, ledgerNow),
		bountyEvent(2, "2000", nil, ledgerNow),
		market,
	}

	report, err := f.service.UpdateCharacter(context.Background(), char.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Fetched != 3 || report.Created != 2 || report.Ignored != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	stored, _ := f.characters.GetByID(context.Background(), char.ID)
	if stored.LastWalletUpdate == nil || !stored.LastWalletUpdate.Equal(ledgerNow) {
		t.Fatalf("expected last update stamped")
	}
	if !stored.LifeTaxes.Equal(d("300")) {
		t.Fatalf("expected breakdowns recomputed, got life taxes %s", stored.LifeTaxes)
	}

	again, err := f.service.UpdateCharacter(context.Background(), char.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Created != 0 || again.Duplicate != 2 {
		t.Fatalf("expected duplicates on re-read, got %+v", again)
	}
}

func TestUpdateCharacterSkipsFreshCharacters(t *testing.T) {
	f := newUpdateFixture(map[int64]string{9001: "token"}, stubNotifications{})
	char := f.characters.add(9001, "Pilot", "account-1")
	_ = f.characters.TouchWalletUpdate(context.Background(), char.ID, ledgerNow.Add(-time.Hour))

	report, err := f.service.UpdateCharacter(context.Background(), char.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Skipped || f.feeds.calls != 0 {
		t.Fatalf("expected skip without a fetch, got %+v", report)
	}
}

func TestUpdateCharacterWithoutTokenNotifiesOwner(t *testing.T) {
	f := newUpdateFixture(map[int64]string{}, stubNotifications{})
	char := f.characters.add(9001, "Pilot", "account-1")

	_, err := f.service.UpdateCharacter(context.Background(), char.ID, false)
	if !errors.Is(err, ErrAuthenticationUnavailable) {
		t.Fatalf("expected ErrAuthenticationUnavailable, got %v", err)
	}
	if f.feeds.calls != 0 {
		t.Fatalf("expected no upstream call without a credential")
	}
	if len(f.notifier.notices) != 1 || f.notifier.notices[0].title != "PVE Tax Token Missing" {
		t.Fatalf("expected missing token notice, got %+v", f.notifier.notices)
	}
}

func TestUpdateCharacterThrottlesTokenNotice(t *testing.T) {
	f := newUpdateFixture(map[int64]string{}, stubNotifications{sent: true})
	char := f.characters.add(9001, "Pilot", "account-1")

	_, _ = f.service.UpdateCharacter(context.Background(), char.ID, false)
	if len(f.notifier.notices) != 0 {
		t.Fatalf("expected throttled notice, got %+v", f.notifier.notices)
	}
}

func TestUpdateCharacterUpstreamFailure(t *testing.T) {
	f := newUpdateFixture(map[int64]string{9001: "token"}, stubNotifications{})
	char := f.characters.add(9001, "Pilot", "account-1")
	f.feeds.err = errors.New("502")

	if _, err := f.service.UpdateCharacter(context.Background(), char.ID, false); !errors.Is(err, ErrSourceLookup) {
		t.Fatalf("expected ErrSourceLookup, got %v", err)
	}
	stored, _ := f.characters.GetByID(context.Background(), char.ID)
	if stored.LastWalletUpdate != nil {
		t.Fatalf("expected last update untouched")
	}
}

func TestUpdateAllSkipsMissingTokens(t *testing.T) {
	f := newUpdateFixture(map[int64]string{9001: "token"}, stubNotifications{sent: true})
	f.characters.add(9001, "Pilot", "account-1")
	f.characters.add(9002, "Alt", "account-2")
	f.feeds.journals[9001] = []models.IncomeEvent{bountyEvent(1, "1000", nil, ledgerNow)}

	summary, err := f.service.UpdateAll(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Total != 2 || summary.Succeeded != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %s", summary)
	}
	if f.stats.calls != 1 {
		t.Fatalf("expected stats refresh after update")
	}
}

func TestUpdateAllAdminsIngestsAndMatches(t *testing.T) {
	f := newUpdateFixture(map[int64]string{7001: "corp-token"}, stubNotifications{})
	f.characters.add(9001, "Pilot", "account-1")
	f.admins.admins = []models.AdminCharacter{
		{ID: 1, EveCharacterID: 7001, CorporationID: 98000001, Name: "Accountant"},
		{ID: 2, EveCharacterID: 7002, CorporationID: 98000002, Name: "No Token"},
	}
	f.feeds.donations[98000001] = []models.PaymentRecord{donation(50, 9001, "1000", "tax")}

	ingest, matched, err := f.service.UpdateAllAdmins(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ingest.Succeeded != 1 || ingest.Skipped != 1 {
		t.Fatalf("unexpected ingest summary: %s", ingest)
	}
	if matched.Succeeded != 1 || f.credits.count() != 1 {
		t.Fatalf("expected one matched payment, got %s", matched)
	}
	if _, ok := f.admins.touched[1]; !ok {
		t.Fatalf("expected admin character stamped")
	}
}
