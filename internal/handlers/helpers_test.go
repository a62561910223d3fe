package handlers

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"pvetax/internal/auth"
	"pvetax/internal/config"
	"pvetax/internal/jobs"
	"pvetax/internal/models"
	"pvetax/internal/services"
	"pvetax/internal/store"
	"pvetax/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubLedger struct {
	charactersFn      func(ctx context.Context, accountID string) ([]models.Character, error)
	registerFn        func(ctx context.Context, accountID string, eveCharacterID int64) (models.Character, error)
	ledgerFn          func(ctx context.Context, accountID string, characterID int64, limit, offset int) (services.LedgerPage, error)
	accountBalanceFn  func(ctx context.Context, accountID string) ([]services.Balance, error)
	accountBalancesFn func(ctx context.Context) ([]models.AccountBalance, error)
	adminCreditFn     func(ctx context.Context, actor string, req services.CreditRequest) (models.CreditEntry, error)
	zeroFn            func(ctx context.Context, actor string) (jobs.Summary, error)
	driftFn           func(ctx context.Context) ([]store.CreditDrift, error)
}

func (s stubLedger) CharactersForAccount(ctx context.Context, accountID string) ([]models.Character, error) {
	if s.charactersFn == nil {
		return nil, nil
	}
	return s.charactersFn(ctx, accountID)
}

func (s stubLedger) RegisterCharacter(ctx context.Context, accountID string, eveCharacterID int64) (models.Character, error) {
	if s.registerFn == nil {
		return models.Character{}, nil
	}
	return s.registerFn(ctx, accountID, eveCharacterID)
}

func (s stubLedger) Ledger(ctx context.Context, accountID string, characterID int64, limit, offset int) (services.LedgerPage, error) {
	if s.ledgerFn == nil {
		return services.LedgerPage{}, nil
	}
	return s.ledgerFn(ctx, accountID, characterID, limit, offset)
}

func (s stubLedger) AccountBalance(ctx context.Context, accountID string) ([]services.Balance, error) {
	if s.accountBalanceFn == nil {
		return nil, nil
	}
	return s.accountBalanceFn(ctx, accountID)
}

func (s stubLedger) AccountBalances(ctx context.Context) ([]models.AccountBalance, error) {
	if s.accountBalancesFn == nil {
		return nil, nil
	}
	return s.accountBalancesFn(ctx)
}

func (s stubLedger) AdminCredit(ctx context.Context, actor string, req services.CreditRequest) (models.CreditEntry, error) {
	if s.adminCreditFn == nil {
		return models.CreditEntry{}, nil
	}
	return s.adminCreditFn(ctx, actor, req)
}

func (s stubLedger) ZeroBalances(ctx context.Context, actor string) (jobs.Summary, error) {
	if s.zeroFn == nil {
		return jobs.Summary{}, nil
	}
	return s.zeroFn(ctx, actor)
}

func (s stubLedger) CreditDrift(ctx context.Context) ([]store.CreditDrift, error) {
	if s.driftFn == nil {
		return nil, nil
	}
	return s.driftFn(ctx)
}

type stubStats struct {
	snapshotFn func(ctx context.Context) (models.StatsSnapshot, error)
	refreshFn  func(ctx context.Context) (models.StatsSnapshot, error)
}

func (s stubStats) Snapshot(ctx context.Context) (models.StatsSnapshot, error) {
	if s.snapshotFn == nil {
		return models.StatsSnapshot{}, nil
	}
	return s.snapshotFn(ctx)
}

func (s stubStats) Refresh(ctx context.Context) (models.StatsSnapshot, error) {
	if s.refreshFn == nil {
		return models.StatsSnapshot{}, nil
	}
	return s.refreshFn(ctx)
}

type stubSettings struct {
	getFn    func(ctx context.Context) (services.SettingsView, error)
	updateFn func(ctx context.Context, actor string, req services.SettingsUpdate) (services.SettingsView, error)
}

func (s stubSettings) Get(ctx context.Context) (services.SettingsView, error) {
	if s.getFn == nil {
		return services.SettingsView{}, nil
	}
	return s.getFn(ctx)
}

func (s stubSettings) Update(ctx context.Context, actor string, req services.SettingsUpdate) (services.SettingsView, error) {
	if s.updateFn == nil {
		return services.SettingsView{}, nil
	}
	return s.updateFn(ctx, actor, req)
}

type stubPayments struct {
	listFn func(ctx context.Context) ([]models.Payment, error)
}

func (s stubPayments) ListUnmatched(ctx context.Context) ([]models.Payment, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

type stubIdentity struct {
	getAccountFn func(ctx context.Context, id string) (models.Account, error)
}

func (s stubIdentity) GetAccount(ctx context.Context, id string) (models.Account, error) {
	if s.getAccountFn == nil {
		return models.Account{ID: id, Username: id}, nil
	}
	return s.getAccountFn(ctx, id)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, accountID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, accountID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, accountID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminAccountID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, accountID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, accountID)
}

func (s stubAdminStore) HasRole(ctx context.Context, accountID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, accountID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, accountID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, accountID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminAccountID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminAccountID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return false, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actor, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actor, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actor, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error) {
	if s.listFn == nil {
		return []models.AuditEntry{}, nil
	}
	return s.listFn(ctx, filter)
}

// newTestHandler fills every dependency left zero in deps with an empty stub.
func newTestHandler(deps Deps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	if deps.TxRunner == nil {
		deps.TxRunner = fakeTxRunner{}
	}
	if deps.Ledger == nil {
		deps.Ledger = stubLedger{}
	}
	if deps.Stats == nil {
		deps.Stats = stubStats{}
	}
	if deps.Settings == nil {
		deps.Settings = stubSettings{}
	}
	if deps.Payments == nil {
		deps.Payments = stubPayments{}
	}
	if deps.Identity == nil {
		deps.Identity = stubIdentity{}
	}
	if deps.Admin == nil {
		deps.Admin = stubAdminStore{}
	}
	if deps.Audit == nil {
		deps.Audit = stubAuditStore{}
	}
	if deps.Hub == nil {
		deps.Hub = websocket.NewHub()
	}
	return New(cfg, deps)
}

// doRequest sends a request through the full router as accountID.
func doRequest(t *testing.T, h *Handler, method, path, body, accountID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if accountID != "" {
		token, err := auth.GenerateToken("secret", accountID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func superAdmin() stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, bool, error) { return true, true, nil },
	}
}

func stringPtr(value string) *string {
	return &value
}
