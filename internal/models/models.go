package models

import (
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CreditCategory string

const (
	CreditCategoryCredit     CreditCategory = "credit"
	CreditCategoryDebit      CreditCategory = "debit"
	CreditCategoryPayment    CreditCategory = "payment"
	CreditCategoryInterest   CreditCategory = "interest"
	CreditCategoryAdjustment CreditCategory = "adjustment"
)

func (c CreditCategory) Valid() bool {
	switch c {
	case CreditCategoryCredit, CreditCategoryDebit, CreditCategoryPayment, CreditCategoryInterest, CreditCategoryAdjustment:
		return true
	}
	return false
}

// Character is a tracked in-game persona. OwnerAccountID is nil for orphaned
// characters whose ownership record is gone.
type Character struct {
	ID               int64           `db:"id" json:"id"`
	EveCharacterID   int64           `db:"eve_character_id" json:"eve_character_id"`
	Name             string          `db:"name" json:"name"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	LifeCredits      decimal.Decimal `db:"life_credits" json:"life_credits"`
	LifeTaxes        decimal.Decimal `db:"life_taxes" json:"life_taxes"`
	MonthlyActivity  Breakdown       `db:"monthly_activity" json:"monthly_activity"`
	MonthlyTaxes     Breakdown       `db:"monthly_taxes" json:"monthly_taxes"`
	MonthlyCredits   Breakdown       `db:"monthly_credits" json:"monthly_credits"`
	LastWalletUpdate *time.Time      `db:"last_wallet_update" json:"last_wallet_update,omitempty"`
	OwnerAccountID   *string         `db:"owner_account_id" json:"owner_account_id,omitempty"`
}

type IncomeEntry struct {
	ID          string          `db:"id" json:"id"`
	CharacterID int64           `db:"character_id" json:"character_id"`
	JournalID   int64           `db:"journal_id" json:"journal_id"`
	Date        time.Time       `db:"date" json:"date"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	RefType     string          `db:"ref_type" json:"ref_type"`
	Activity    string          `db:"activity" json:"activity"`
	LocationID  *int64          `db:"location_id" json:"location_id,omitempty"`
	Description string          `db:"description" json:"description"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	TaxAmount   decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

type CreditEntry struct {
	ID          string          `db:"id" json:"id"`
	CharacterID int64           `db:"character_id" json:"character_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Category    CreditCategory  `db:"category" json:"category"`
	Reason      string          `db:"reason" json:"reason"`
	Actor       *string         `db:"actor" json:"actor,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Settings is the single tax_settings row.
type Settings struct {
	InterestRate        decimal.Decimal `db:"interest_rate" json:"interest_rate"`
	Phrase              string          `db:"phrase" json:"phrase"`
	DiscordWebhookURL   string          `db:"discord_webhook_url" json:"discord_webhook_url"`
	DiscordBotToken     string          `db:"discord_bot_token" json:"-"`
	SendIndividualDMs   bool            `db:"send_individual_dms" json:"send_individual_dms"`
	SendCorpSummary     bool            `db:"send_corp_summary" json:"send_corp_summary"`
	LastInterestApplied *time.Time      `db:"last_interest_applied" json:"last_interest_applied,omitempty"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

type AdminCharacter struct {
	ID             int64      `db:"id" json:"id"`
	EveCharacterID int64      `db:"eve_character_id" json:"eve_character_id"`
	CorporationID  int64      `db:"corporation_id" json:"corporation_id"`
	Name           string     `db:"name" json:"name"`
	LastUpdate     *time.Time `db:"last_update" json:"last_update,omitempty"`
}

type Payment struct {
	ID              string          `db:"id" json:"id"`
	CorporationID   int64           `db:"corporation_id" json:"corporation_id"`
	JournalID       int64           `db:"journal_id" json:"journal_id"`
	Date            time.Time       `db:"date" json:"date"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	PayerEveID      *int64          `db:"payer_eve_id" json:"payer_eve_id,omitempty"`
	Description     string          `db:"description" json:"description"`
	MatchedCreditID *string         `db:"matched_credit_id" json:"matched_credit_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type SolarSystem struct {
	ID             int64   `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	SecurityStatus float64 `db:"security_status" json:"security_status"`
	RegionID       int64   `db:"region_id" json:"region_id"`
}

// Account is an identity-layer user as seen by the tax engine.
type Account struct {
	ID                string  `db:"id" json:"id"`
	Username          string  `db:"username" json:"username"`
	MainCharacterName *string `db:"main_character_name" json:"main_character_name,omitempty"`
	DiscordID         *string `db:"discord_id" json:"-"`
}

// DisplayName is the main character name, or the username for accounts
// without a main.
func (a Account) DisplayName() string {
	if a.MainCharacterName != nil && *a.MainCharacterName != "" {
		return *a.MainCharacterName
	}
	return a.Username
}

// Token is an identity-layer ESI access token row.
type Token struct {
	EveCharacterID int64          `db:"eve_character_id"`
	AccessToken    string         `db:"access_token"`
	Scopes         pq.StringArray `db:"scopes"`
	ExpiresAt      time.Time      `db:"expires_at"`
}

func (t Token) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

type Notification struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"account_id"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Level     string    `db:"level" json:"level"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AccountBalance aggregates the balances of every character an account owns.
// CharacterIDs is sorted ascending.
type AccountBalance struct {
	Account      Account         `json:"account"`
	Lifetime     decimal.Decimal `json:"lifetime"`
	CurrentMonth decimal.Decimal `json:"current_month"`
	CharacterIDs []int64         `json:"character_ids"`
}

// SummaryRow is one line of the corporation summary report.
type SummaryRow struct {
	DisplayName  string          `json:"display_name"`
	AccountLabel string          `json:"account_label"`
	Balance      decimal.Decimal `json:"balance"`
}

// AuditEntry is one operator action. Data is the JSON payload as written.
type AuditEntry struct {
	ID         string    `db:"id" json:"id"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Data       string    `db:"data" json:"data"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
