package store

import (
	"context"
	"time"

	"pvetax/internal/models"
)

// Sealer protects the bot token while it is stored.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type SettingsStore struct {
	db     DB
	sealer Sealer
}

func NewSettingsStore(db DB, sealer Sealer) *SettingsStore {
	return &SettingsStore{db: db, sealer: sealer}
}

// Get loads the settings row, creating it with defaults on first use.
func (s *SettingsStore) Get(ctx context.Context) (models.Settings, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_settings (id) VALUES (1)
		ON CONFLICT (id) DO NOTHING
	`); err != nil {
		return models.Settings{}, err
	}
	var row models.Settings
	err := s.db.GetContext(ctx, &row, `
		SELECT interest_rate, phrase, discord_webhook_url, discord_bot_token,
		       send_individual_dms, send_corp_summary, last_interest_applied, updated_at
		FROM tax_settings
		WHERE id = 1
	`)
	if err != nil {
		return models.Settings{}, err
	}
	if s.sealer != nil && row.DiscordBotToken != "" {
		token, err := s.sealer.Open(row.DiscordBotToken)
		if err != nil {
			return models.Settings{}, err
		}
		row.DiscordBotToken = token
	}
	return row, nil
}

// Update writes the operator-editable fields. last_interest_applied is only
// changed through ClaimInterestRun.
func (s *SettingsStore) Update(ctx context.Context, tx Execer, settings models.Settings) error {
	token := settings.DiscordBotToken
	if s.sealer != nil && token != "" {
		sealed, err := s.sealer.Seal(token)
		if err != nil {
			return err
		}
		token = sealed
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE tax_settings
		SET interest_rate = $1, phrase = $2, discord_webhook_url = $3, discord_bot_token = $4,
		    send_individual_dms = $5, send_corp_summary = $6, updated_at = now()
		WHERE id = 1
	`, settings.InterestRate, settings.Phrase, settings.DiscordWebhookURL, token,
		settings.SendIndividualDMs, settings.SendCorpSummary)
	return err
}

// ClaimInterestRun sets last_interest_applied to now unless it already falls
// inside the month starting at monthStart. Only one caller per month gets true.
func (s *SettingsStore) ClaimInterestRun(ctx context.Context, now, monthStart time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tax_settings
		SET last_interest_applied = $1
		WHERE id = 1 AND (last_interest_applied IS NULL OR last_interest_applied < $2)
	`, now, monthStart)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ReleaseInterestRun restores the previous marker after a claimed run could
// not start.
func (s *SettingsStore) ReleaseInterestRun(ctx context.Context, claimedAt time.Time, previous *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tax_settings
		SET last_interest_applied = $1
		WHERE id = 1 AND last_interest_applied = $2
	`, previous, claimedAt)
	return err
}
