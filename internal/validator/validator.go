package validator

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"pvetax/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInterestRate = errors.New("interest rate must be between 0 and 1")
	ErrInvalidPhrase       = errors.New("invalid payment phrase")
	ErrInvalidWebhookURL   = errors.New("invalid discord webhook url")
	ErrInvalidCategory     = errors.New("invalid credit category")
	ErrInvalidReason       = errors.New("invalid credit reason")
)

var phraseRegex = regexp.MustCompile(`^[\p{L}\p{N} _\-.:#]{0,64}$`)

func ValidateInterestRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidInterestRate
	}
	return nil
}

// ValidatePhrase accepts an empty phrase, which matches every payment.
func ValidatePhrase(phrase string) error {
	if !phraseRegex.MatchString(phrase) {
		return ErrInvalidPhrase
	}
	return nil
}

// ValidateWebhookURL accepts an empty value, which disables the summary.
func ValidateWebhookURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ErrInvalidWebhookURL
	}
	return nil
}

func ValidateCreditCategory(category string) error {
	if !models.CreditCategory(category).Valid() {
		return ErrInvalidCategory
	}
	return nil
}

func ValidateReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" || len(reason) > 500 {
		return ErrInvalidReason
	}
	return nil
}
