package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IncomeEvent is one raw character wallet journal row.
type IncomeEvent struct {
	JournalID   int64
	Date        time.Time
	Amount      decimal.Decimal
	RefType     string
	LocationID  *int64
	Description string
}

// PaymentRecord is one raw corporation wallet donation.
type PaymentRecord struct {
	JournalID   int64
	Date        time.Time
	Amount      decimal.Decimal
	PayerEveID  *int64
	Description string
}

// Credential is a scoped capability to call the game API on behalf of one
// character. It is only ever handed out for an unexpired token.
type Credential struct {
	EveCharacterID int64
	Scope          string
	AccessToken    string
	ExpiresAt      time.Time
}
