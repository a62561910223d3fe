package handlers

import (
	"context"

	"pvetax/internal/jobs"
	"pvetax/internal/models"
	"pvetax/internal/services"
	"pvetax/internal/store"
)

type LedgerService interface {
	CharactersForAccount(ctx context.Context, accountID string) ([]models.Character, error)
	RegisterCharacter(ctx context.Context, accountID string, eveCharacterID int64) (models.Character, error)
	Ledger(ctx context.Context, accountID string, characterID int64, limit, offset int) (services.LedgerPage, error)
	AccountBalance(ctx context.Context, accountID string) ([]services.Balance, error)
	AccountBalances(ctx context.Context) ([]models.AccountBalance, error)
	AdminCredit(ctx context.Context, actor string, req services.CreditRequest) (models.CreditEntry, error)
	ZeroBalances(ctx context.Context, actor string) (jobs.Summary, error)
	CreditDrift(ctx context.Context) ([]store.CreditDrift, error)
}

type StatsService interface {
	Snapshot(ctx context.Context) (models.StatsSnapshot, error)
	Refresh(ctx context.Context) (models.StatsSnapshot, error)
}

type SettingsService interface {
	Get(ctx context.Context) (services.SettingsView, error)
	Update(ctx context.Context, actor string, req services.SettingsUpdate) (services.SettingsView, error)
}

type PaymentStore interface {
	ListUnmatched(ctx context.Context) ([]models.Payment, error)
}

type IdentityStore interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, accountID string) (bool, bool, error)
	HasRole(ctx context.Context, accountID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, accountID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminAccountID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actor, action, entityType, entityID, data string) error
	List(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error)
}
