package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"pvetax/internal/models"
	"pvetax/internal/money"

	"github.com/shopspring/decimal"
)

const (
	summaryTitle = "PVE Taxes Summary"
	embedColour  = 3447003
)

// SettingsSource supplies the Discord settings at send time, so edits made
// through the admin API apply without a restart.
type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

type Discord struct {
	apiBase  string
	settings SettingsSource
	http     *http.Client
}

func NewDiscord(apiBase string, settings SettingsSource, httpClient *http.Client) *Discord {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Discord{
		apiBase:  strings.TrimRight(apiBase, "/"),
		settings: settings,
		http:     httpClient,
	}
}

// Notify sends a bot DM. Accounts without a linked Discord user, or a
// disabled DM setting, are a no-op.
func (d *Discord) Notify(ctx context.Context, account models.Account, title, message string) error {
	settings, err := d.settings.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.SendIndividualDMs || settings.DiscordBotToken == "" || account.DiscordID == nil || *account.DiscordID == "" {
		return nil
	}
	auth := "Bot " + settings.DiscordBotToken

	var channel struct {
		ID string `json:"id"`
	}
	if err := d.post(ctx, d.apiBase+"/users/@me/channels", auth, map[string]string{"recipient_id": *account.DiscordID}, &channel); err != nil {
		return err
	}
	content := message
	if title != "" {
		content = "**" + title + "**\n" + message
	}
	return d.post(ctx, d.apiBase+"/channels/"+channel.ID+"/messages", auth, map[string]string{"content": content}, nil)
}

// Summary posts the outstanding balance table to the corporation webhook,
// largest balance first.
func (d *Discord) Summary(ctx context.Context, rows []models.SummaryRow) error {
	settings, err := d.settings.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.SendCorpSummary || settings.DiscordWebhookURL == "" || len(rows) == 0 {
		return nil
	}
	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       summaryTitle,
			"description": SummaryTable(rows),
			"color":       embedColour,
		}},
	}
	return d.post(ctx, settings.DiscordWebhookURL, "", payload, nil)
}

// SummaryTable renders rows as a fixed-width code block with a TOTAL line.
func SummaryTable(rows []models.SummaryRow) string {
	sorted := make([]models.SummaryRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Balance.GreaterThan(sorted[j].Balance)
	})

	var b strings.Builder
	rule := strings.Repeat("-", 65)
	b.WriteString("**Outstanding PVE Taxes Summary**\n```\n")
	fmt.Fprintf(&b, "%-20s %-30s %15s\n", "User", "Main Character", "Balance (M ISK)")
	b.WriteString(rule + "\n")
	total := decimal.Zero
	for _, row := range sorted {
		total = total.Add(row.Balance)
		fmt.Fprintf(&b, "%-20s %-30s %15s\n", truncate(row.AccountLabel, 19), truncate(row.DisplayName, 29), money.Millions(row.Balance))
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-51s %15s\n", "TOTAL", money.Millions(total))
	b.WriteString("```")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (d *Discord) post(ctx context.Context, endpoint, auth string, body any, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: discord returned %s: %s", ErrTransport, resp.Status, strings.TrimSpace(string(msg)))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}
