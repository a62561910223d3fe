package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"pvetax/internal/jobs"
	"pvetax/internal/models"
	"pvetax/internal/store"
	"pvetax/internal/tax"
	"pvetax/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

func testPool() *jobs.Pool {
	return jobs.NewPool(1, 0, nil)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

type memIncome struct {
	mu      sync.Mutex
	entries []models.IncomeEntry
}

func (m *memIncome) GetByJournalID(ctx context.Context, characterID, journalID int64) (models.IncomeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.CharacterID == characterID && e.JournalID == journalID {
			return e, nil
		}
	}
	return models.IncomeEntry{}, sql.ErrNoRows
}

func (m *memIncome) Insert(ctx context.Context, entry models.IncomeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.CharacterID == entry.CharacterID && e.JournalID == entry.JournalID {
			return store.ErrDuplicate
		}
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memIncome) SumTax(ctx context.Context, characterID int64, since *time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sum(characterID, since), nil
}

func (m *memIncome) sum(characterID int64, since *time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range m.entries {
		if e.CharacterID != characterID {
			continue
		}
		if since != nil && e.Date.Before(*since) {
			continue
		}
		total = total.Add(e.TaxAmount)
	}
	return total
}

func (m *memIncome) ListByCharacter(ctx context.Context, characterID int64, limit, offset int) ([]models.IncomeEntry, error) {
	all, _ := m.ListAllByCharacter(ctx, characterID)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *memIncome) ListAllByCharacter(ctx context.Context, characterID int64) ([]models.IncomeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.IncomeEntry
	for _, e := range m.entries {
		if e.CharacterID == characterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memIncome) MonthlyTotals(ctx context.Context, characterID int64) ([]store.MonthlyIncomeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := map[[2]string]int{}
	var rows []store.MonthlyIncomeRow
	for _, e := range m.entries {
		if e.CharacterID != characterID {
			continue
		}
		key := [2]string{e.Date.UTC().Format("2006-01"), e.Activity}
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, store.MonthlyIncomeRow{Month: key[0], Activity: key[1], Amount: decimal.Zero, Tax: decimal.Zero})
		}
		rows[i].Amount = rows[i].Amount.Add(e.Amount)
		rows[i].Tax = rows[i].Tax.Add(e.TaxAmount)
	}
	return rows, nil
}

func (m *memIncome) UpdateTax(ctx context.Context, tx store.Execer, id string, rate, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries[i].TaxRate = rate
			m.entries[i].TaxAmount = amount
			return nil
		}
	}
	return sql.ErrNoRows
}

type memCharacters struct {
	mu        sync.Mutex
	byID      map[int64]*models.Character
	nextID    int64
	income    *memIncome
	lifeTaxes map[int64]decimal.Decimal
}

func newMemCharacters(income *memIncome) *memCharacters {
	return &memCharacters{byID: map[int64]*models.Character{}, income: income, lifeTaxes: map[int64]decimal.Decimal{}}
}

// add inserts a tracked character owned by owner, or an orphan when owner is empty.
func (m *memCharacters) add(eveID int64, name, owner string) models.Character {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &models.Character{ID: m.nextID, EveCharacterID: eveID, Name: name, LifeCredits: decimal.Zero}
	if owner != "" {
		c.OwnerAccountID = strPtr(owner)
	}
	m.byID[c.ID] = c
	return *c
}

func (m *memCharacters) Create(ctx context.Context, eveCharacterID int64, name string) (models.Character, error) {
	m.mu.Lock()
	for _, c := range m.byID {
		if c.EveCharacterID == eveCharacterID {
			m.mu.Unlock()
			return models.Character{}, store.ErrDuplicate
		}
	}
	m.mu.Unlock()
	return m.add(eveCharacterID, name, ""), nil
}

func (m *memCharacters) GetByID(ctx context.Context, id int64) (models.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return models.Character{}, sql.ErrNoRows
	}
	return *c, nil
}

func (m *memCharacters) GetByEveID(ctx context.Context, eveCharacterID int64) (models.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.EveCharacterID == eveCharacterID {
			return *c, nil
		}
	}
	return models.Character{}, sql.ErrNoRows
}

func (m *memCharacters) ListAll(ctx context.Context) ([]models.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Character, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCharacters) ListByAccount(ctx context.Context, accountID string) ([]models.Character, error) {
	all, _ := m.ListAll(ctx)
	var out []models.Character
	for _, c := range all {
		if c.OwnerAccountID != nil && *c.OwnerAccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCharacters) AdjustLifeCredits(ctx context.Context, tx store.Execer, id int64, delta decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return 0, nil
	}
	c.LifeCredits = c.LifeCredits.Add(delta)
	return 1, nil
}

func (m *memCharacters) TouchWalletUpdate(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		c.LastWalletUpdate = &at
	}
	return nil
}

func (m *memCharacters) UpdateBreakdowns(ctx context.Context, id int64, activity, taxes, credits models.Breakdown, lifeTaxes decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		c.MonthlyActivity, c.MonthlyTaxes, c.MonthlyCredits = activity, taxes, credits
		c.LifeTaxes = lifeTaxes
	}
	m.lifeTaxes[id] = lifeTaxes
	return nil
}

func (m *memCharacters) ListBalances(ctx context.Context, monthStart time.Time) ([]store.CharacterBalance, error) {
	all, _ := m.ListAll(ctx)
	out := make([]store.CharacterBalance, 0, len(all))
	for _, c := range all {
		m.income.mu.Lock()
		total := m.income.sum(c.ID, nil)
		month := m.income.sum(c.ID, &monthStart)
		m.income.mu.Unlock()
		out = append(out, store.CharacterBalance{
			CharacterID:    c.ID,
			EveCharacterID: c.EveCharacterID,
			Name:           c.Name,
			OwnerAccountID: c.OwnerAccountID,
			LifeCredits:    c.LifeCredits,
			TaxTotal:       total,
			MonthTax:       month,
		})
	}
	return out, nil
}

func (m *memCharacters) ListCreditDrift(ctx context.Context) ([]store.CreditDrift, error) {
	return nil, nil
}

type memCredits struct {
	mu      sync.Mutex
	entries []models.CreditEntry
}

func (m *memCredits) Insert(ctx context.Context, tx store.Execer, entry models.CreditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memCredits) ListByCharacter(ctx context.Context, characterID int64, limit, offset int) ([]models.CreditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CreditEntry
	for _, e := range m.entries {
		if e.CharacterID == characterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memCredits) MonthlyTotals(ctx context.Context, characterID int64) ([]store.MonthlyCreditRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := map[[2]string]int{}
	var rows []store.MonthlyCreditRow
	for _, e := range m.entries {
		if e.CharacterID != characterID {
			continue
		}
		key := [2]string{e.CreatedAt.UTC().Format("2006-01"), string(e.Category)}
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, store.MonthlyCreditRow{Month: key[0], Category: key[1], Amount: decimal.Zero})
		}
		rows[i].Amount = rows[i].Amount.Add(e.Amount)
	}
	return rows, nil
}

func (m *memCredits) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type memPayments struct {
	mu       sync.Mutex
	payments []models.Payment
}

func (m *memPayments) Insert(ctx context.Context, payment models.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.CorporationID == payment.CorporationID && p.JournalID == payment.JournalID {
			return false, nil
		}
	}
	m.payments = append(m.payments, payment)
	return true, nil
}

func (m *memPayments) ListUnmatched(ctx context.Context) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.MatchedCreditID == nil && p.PayerEveID != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPayments) MarkMatched(ctx context.Context, tx store.Execer, paymentID, creditID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.payments {
		if m.payments[i].ID == paymentID && m.payments[i].MatchedCreditID == nil {
			m.payments[i].MatchedCreditID = strPtr(creditID)
			return 1, nil
		}
	}
	return 0, nil
}

type memSettings struct {
	mu       sync.Mutex
	settings models.Settings
	updates  int
	getErr   error
}

func (m *memSettings) Get(ctx context.Context) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return models.Settings{}, m.getErr
	}
	return m.settings, nil
}

func (m *memSettings) Update(ctx context.Context, tx store.Execer, settings models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := m.settings.LastInterestApplied
	m.settings = settings
	m.settings.LastInterestApplied = last
	m.updates++
	return nil
}

func (m *memSettings) ClaimInterestRun(ctx context.Context, now, monthStart time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.LastInterestApplied != nil && !m.settings.LastInterestApplied.Before(monthStart) {
		return false, nil
	}
	m.settings.LastInterestApplied = &now
	return true, nil
}

func (m *memSettings) ReleaseInterestRun(ctx context.Context, claimedAt time.Time, previous *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.LastInterestApplied != nil && m.settings.LastInterestApplied.Equal(claimedAt) {
		m.settings.LastInterestApplied = previous
	}
	return nil
}

type stubIdentity struct {
	owners   map[int64]string
	names    map[int64]string
	accounts map[string]models.Account
	err      error
}

func (s stubIdentity) OwnerOf(ctx context.Context, eveCharacterID int64) (string, bool, error) {
	id, ok := s.owners[eveCharacterID]
	return id, ok, s.err
}

func (s stubIdentity) OwnedName(ctx context.Context, accountID string, eveCharacterID int64) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	if s.owners[eveCharacterID] != accountID {
		return "", false, nil
	}
	return s.names[eveCharacterID], true, nil
}

func (s stubIdentity) GetAccount(ctx context.Context, id string) (models.Account, error) {
	if s.err != nil {
		return models.Account{}, s.err
	}
	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (s stubIdentity) GetAccounts(ctx context.Context, ids []string) ([]models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Account
	for _, id := range ids {
		if account, ok := s.accounts[id]; ok {
			out = append(out, account)
		}
	}
	return out, nil
}

type auditCall struct {
	actor, action, entityType, entityID, data string
}

type recordingAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (r *recordingAudit) Log(ctx context.Context, tx store.Execer, actor, action, entityType, entityID, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, auditCall{actor, action, entityType, entityID, data})
	return nil
}

type fixedRate struct {
	rate decimal.Decimal
}

func (f fixedRate) Resolve(ctx context.Context, locationID *int64, activity tax.Activity) decimal.Decimal {
	return f.rate
}

type recordingHub struct {
	mu      sync.Mutex
	updates map[string][]websocket.BalanceUpdate
}

func (h *recordingHub) BroadcastBalance(accountID string, update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.updates == nil {
		h.updates = map[string][]websocket.BalanceUpdate{}
	}
	h.updates[accountID] = append(h.updates[accountID], update)
}

type sentNotice struct {
	accountID, title, message string
}

type recordingNotifier struct {
	mu         sync.Mutex
	notices    []sentNotice
	summaries  [][]models.SummaryRow
	notifyErr  error
	summaryErr error
}

func (r *recordingNotifier) Notify(ctx context.Context, account models.Account, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, sentNotice{account.ID, title, message})
	return r.notifyErr
}

func (r *recordingNotifier) Summary(ctx context.Context, rows []models.SummaryRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, rows)
	return r.summaryErr
}

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) Refresh(ctx context.Context) (models.StatsSnapshot, error) {
	s.calls++
	return models.StatsSnapshot{}, s.err
}

// ledgerFixture wires a LedgerService over the in-memory stores.
type ledgerFixture struct {
	income     *memIncome
	characters *memCharacters
	credits    *memCredits
	audit      *recordingAudit
	hub        *recordingHub
	service    *LedgerService
}

func newLedgerFixture(resolver RateResolver, identity IdentityStore, now time.Time) *ledgerFixture {
	income := &memIncome{}
	f := &ledgerFixture{
		income:     income,
		characters: newMemCharacters(income),
		credits:    &memCredits{},
		audit:      &recordingAudit{},
		hub:        &recordingHub{},
	}
	f.service = NewLedgerService(fakeTxRunner{}, f.characters, f.income, f.credits, identity, f.audit, resolver, f.hub, testPool(), nil)
	f.service.now = func() time.Time { return now }
	return f
}
