package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ActivityTotals struct {
	Amount decimal.Decimal `json:"amount"`
	Tax    decimal.Decimal `json:"tax"`
}

type LeaderboardRow struct {
	CharacterName string          `db:"character_name" json:"character_name"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
}

type DailyTotal struct {
	Day    string          `json:"day"`
	Amount decimal.Decimal `json:"amount"`
	Tax    decimal.Decimal `json:"tax"`
}

// StatsSnapshot is a derived rollup of every ledger. It is rebuilt from
// scratch and never edited in place.
type StatsSnapshot struct {
	GeneratedAt    time.Time                   `json:"generated_at"`
	CurrentMonth   map[string]ActivityTotals   `json:"current_month"`
	Lifetime       map[string]ActivityTotals   `json:"lifetime"`
	Leaderboards   map[string][]LeaderboardRow `json:"leaderboards"`
	AccountHistory map[string][]DailyTotal     `json:"account_history"`
}

func (s StatsSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StatsSnapshot) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("stats snapshot: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, s)
}
