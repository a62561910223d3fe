package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pvetax/internal/db"
	"pvetax/internal/models"
	"pvetax/internal/validator"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// SettingsUpdate carries the fields an operator wants to change. Nil fields
// keep their stored value.
type SettingsUpdate struct {
	InterestRate      *decimal.Decimal `json:"interest_rate"`
	Phrase            *string          `json:"phrase"`
	DiscordWebhookURL *string          `json:"discord_webhook_url"`
	DiscordBotToken   *string          `json:"discord_bot_token"`
	SendIndividualDMs *bool            `json:"send_individual_dms"`
	SendCorpSummary   *bool            `json:"send_corp_summary"`
}

// SettingsView is what operators see. The bot token is never echoed back.
type SettingsView struct {
	models.Settings
	BotTokenSet bool `json:"bot_token_set"`
}

type SettingsService struct {
	txRunner db.TxRunner
	settings SettingsStore
	audit    AuditStore
}

func NewSettingsService(txRunner db.TxRunner, settings SettingsStore, audit AuditStore) *SettingsService {
	return &SettingsService{txRunner: txRunner, settings: settings, audit: audit}
}

func (s *SettingsService) Get(ctx context.Context) (SettingsView, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{Settings: settings, BotTokenSet: settings.DiscordBotToken != ""}, nil
}

func (s *SettingsService) Update(ctx context.Context, actor string, req SettingsUpdate) (SettingsView, error) {
	current, err := s.settings.Get(ctx)
	if err != nil {
		return SettingsView{}, err
	}
	next := current
	if req.InterestRate != nil {
		if err := validator.ValidateInterestRate(*req.InterestRate); err != nil {
			return SettingsView{}, fmt.Errorf("%w: %v", ErrSettingsInvalid, err)
		}
		next.InterestRate = *req.InterestRate
	}
	if req.Phrase != nil {
		phrase := strings.TrimSpace(*req.Phrase)
		if err := validator.ValidatePhrase(phrase); err != nil {
			return SettingsView{}, fmt.Errorf("%w: %v", ErrSettingsInvalid, err)
		}
		next.Phrase = phrase
	}
	if req.DiscordWebhookURL != nil {
		if err := validator.ValidateWebhookURL(*req.DiscordWebhookURL); err != nil {
			return SettingsView{}, fmt.Errorf("%w: %v", ErrSettingsInvalid, err)
		}
		next.DiscordWebhookURL = *req.DiscordWebhookURL
	}
	if req.DiscordBotToken != nil {
		next.DiscordBotToken = strings.TrimSpace(*req.DiscordBotToken)
	}
	if req.SendIndividualDMs != nil {
		next.SendIndividualDMs = *req.SendIndividualDMs
	}
	if req.SendCorpSummary != nil {
		next.SendCorpSummary = *req.SendCorpSummary
	}

	data, _ := json.Marshal(map[string]any{
		"interest_rate":       next.InterestRate.String(),
		"phrase":              next.Phrase,
		"webhook_set":         next.DiscordWebhookURL != "",
		"bot_token_changed":   req.DiscordBotToken != nil,
		"send_individual_dms": next.SendIndividualDMs,
		"send_corp_summary":   next.SendCorpSummary,
	})
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.settings.Update(ctx, tx, next); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actor, "settings.update", "tax_settings", "1", string(data))
	})
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{Settings: next, BotTokenSet: next.DiscordBotToken != ""}, nil
}
