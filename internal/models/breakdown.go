package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Breakdown maps "YYYY-MM" to a per-key amount, where the key is an activity
// or a credit category. It is stored as jsonb.
type Breakdown map[string]map[string]decimal.Decimal

func (b Breakdown) Add(month, key string, amount decimal.Decimal) {
	inner, ok := b[month]
	if !ok {
		inner = make(map[string]decimal.Decimal)
		b[month] = inner
	}
	inner[key] = inner[key].Add(amount)
}

func (b Breakdown) Get(month, key string) decimal.Decimal {
	return b[month][key]
}

func (b Breakdown) Value() (driver.Value, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(b)
}

func (b *Breakdown) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*b = Breakdown{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("breakdown: unsupported scan type %T", src)
	}
	decoded := Breakdown{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("breakdown: %w", err)
	}
	*b = decoded
	return nil
}
