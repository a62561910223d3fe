package services

import (
	"context"
	"time"

	"pvetax/internal/jobs"
	"pvetax/internal/models"
	"pvetax/internal/store"
	"pvetax/internal/tax"
	"pvetax/internal/websocket"

	"github.com/shopspring/decimal"
)

type CharacterStore interface {
	Create(ctx context.Context, eveCharacterID int64, name string) (models.Character, error)
	GetByID(ctx context.Context, id int64) (models.Character, error)
	GetByEveID(ctx context.Context, eveCharacterID int64) (models.Character, error)
	ListAll(ctx context.Context) ([]models.Character, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Character, error)
	AdjustLifeCredits(ctx context.Context, tx store.Execer, id int64, delta decimal.Decimal) (int64, error)
	TouchWalletUpdate(ctx context.Context, id int64, at time.Time) error
	UpdateBreakdowns(ctx context.Context, id int64, activity, taxes, credits models.Breakdown, lifeTaxes decimal.Decimal) error
	ListBalances(ctx context.Context, monthStart time.Time) ([]store.CharacterBalance, error)
	ListCreditDrift(ctx context.Context) ([]store.CreditDrift, error)
}

type IncomeStore interface {
	GetByJournalID(ctx context.Context, characterID, journalID int64) (models.IncomeEntry, error)
	Insert(ctx context.Context, entry models.IncomeEntry) error
	SumTax(ctx context.Context, characterID int64, since *time.Time) (decimal.Decimal, error)
	ListByCharacter(ctx context.Context, characterID int64, limit, offset int) ([]models.IncomeEntry, error)
	ListAllByCharacter(ctx context.Context, characterID int64) ([]models.IncomeEntry, error)
	MonthlyTotals(ctx context.Context, characterID int64) ([]store.MonthlyIncomeRow, error)
	UpdateTax(ctx context.Context, tx store.Execer, id string, rate, amount decimal.Decimal) error
}

type StatsSource interface {
	ActivityTotals(ctx context.Context, since *time.Time) ([]store.ActivityTotalRow, error)
	Leaderboard(ctx context.Context, activity string, since time.Time, taxableOnly bool, limit int) ([]models.LeaderboardRow, error)
	DailyTotalsByAccount(ctx context.Context, since time.Time) ([]store.AccountDailyRow, error)
}

type CreditStore interface {
	Insert(ctx context.Context, tx store.Execer, entry models.CreditEntry) error
	ListByCharacter(ctx context.Context, characterID int64, limit, offset int) ([]models.CreditEntry, error)
	MonthlyTotals(ctx context.Context, characterID int64) ([]store.MonthlyCreditRow, error)
}

type PaymentStore interface {
	Insert(ctx context.Context, payment models.Payment) (bool, error)
	ListUnmatched(ctx context.Context) ([]models.Payment, error)
	MarkMatched(ctx context.Context, tx store.Execer, paymentID, creditID string) (int64, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (models.Settings, error)
	Update(ctx context.Context, tx store.Execer, settings models.Settings) error
	ClaimInterestRun(ctx context.Context, now, monthStart time.Time) (bool, error)
	ReleaseInterestRun(ctx context.Context, claimedAt time.Time, previous *time.Time) error
}

type StatsStore interface {
	Save(ctx context.Context, snapshot models.StatsSnapshot) error
	Load(ctx context.Context) (models.StatsSnapshot, error)
}

type SystemStore interface {
	Get(ctx context.Context, id int64) (models.SolarSystem, error)
	Upsert(ctx context.Context, system models.SolarSystem) error
}

type IdentityStore interface {
	OwnerOf(ctx context.Context, eveCharacterID int64) (string, bool, error)
	OwnedName(ctx context.Context, accountID string, eveCharacterID int64) (string, bool, error)
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetAccounts(ctx context.Context, ids []string) ([]models.Account, error)
}

type TokenStore interface {
	GetValid(ctx context.Context, eveCharacterID int64, scope string, now time.Time) (models.Token, bool, error)
}

type AdminCharacterStore interface {
	GetByID(ctx context.Context, id int64) (models.AdminCharacter, error)
	ListAll(ctx context.Context) ([]models.AdminCharacter, error)
	TouchUpdate(ctx context.Context, id int64, at time.Time) error
}

type NotificationStore interface {
	ExistsSince(ctx context.Context, accountID, title string, since time.Time) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type RateResolver interface {
	Resolve(ctx context.Context, locationID *int64, activity tax.Activity) decimal.Decimal
}

type BalanceHub interface {
	BroadcastBalance(accountID string, update websocket.BalanceUpdate)
}

type Runner interface {
	Run(ctx context.Context, job string, n int, fn func(ctx context.Context, i int) error) jobs.Summary
}

// IncomeFeed is the character wallet journal source.
type IncomeFeed interface {
	CharacterJournal(ctx context.Context, eveCharacterID int64, accessToken string) ([]models.IncomeEvent, error)
}

// PaymentFeed is the corporation wallet donation source.
type PaymentFeed interface {
	CorporationDonations(ctx context.Context, corporationID int64, division int, accessToken string) ([]models.PaymentRecord, error)
}

type SystemSource interface {
	System(ctx context.Context, systemID int64) (models.SolarSystem, error)
}

type CredentialSource interface {
	Acquire(ctx context.Context, eveCharacterID int64, scope string) (models.Credential, error)
}

type StatsRefresher interface {
	Refresh(ctx context.Context) (models.StatsSnapshot, error)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
