// Package esi reads wallet journals and universe data from the EVE Swagger
// Interface.
package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pvetax/internal/models"

	"github.com/shopspring/decimal"
)

const (
	ScopeCharacterWallet   = "esi-wallet.read_character_wallet.v1"
	ScopeCorporationWallet = "esi-wallet.read_corporation_wallets.v1"
)

var (
	ErrUnauthorized = errors.New("esi rejected the access token")
	ErrNotFound     = errors.New("esi resource not found")
	ErrUpstream     = errors.New("esi request failed")
)

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func NewClient(baseURL, userAgent string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      httpClient,
	}
}

type journalRow struct {
	ID            int64           `json:"id"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	RefType       string          `json:"ref_type"`
	Description   string          `json:"description"`
	ContextID     *int64          `json:"context_id"`
	ContextIDType string          `json:"context_id_type"`
	FirstPartyID  *int64          `json:"first_party_id"`
	SecondPartyID *int64          `json:"second_party_id"`
}

// location is the solar system the entry happened in, when the journal row
// carries one.
func (r journalRow) location() *int64 {
	if r.ContextIDType == "system_id" && r.ContextID != nil {
		id := *r.ContextID
		return &id
	}
	return nil
}

// CharacterJournal pulls every page of a character's wallet journal.
func (c *Client) CharacterJournal(ctx context.Context, eveCharacterID int64, accessToken string) ([]models.IncomeEvent, error) {
	path := fmt.Sprintf("/characters/%d/wallet/journal/", eveCharacterID)
	rows, err := c.journal(ctx, path, accessToken)
	if err != nil {
		return nil, err
	}
	events := make([]models.IncomeEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.IncomeEvent{
			JournalID:   row.ID,
			Date:        row.Date.UTC(),
			Amount:      row.Amount,
			RefType:     row.RefType,
			LocationID:  row.location(),
			Description: row.Description,
		})
	}
	return events, nil
}

// CorporationDonations pulls one corporation wallet division journal and
// keeps the player donations only. The payer is the first party.
func (c *Client) CorporationDonations(ctx context.Context, corporationID int64, division int, accessToken string) ([]models.PaymentRecord, error) {
	path := fmt.Sprintf("/corporations/%d/wallets/%d/journal/", corporationID, division)
	rows, err := c.journal(ctx, path, accessToken)
	if err != nil {
		return nil, err
	}
	records := make([]models.PaymentRecord, 0, len(rows))
	for _, row := range rows {
		if row.RefType != "player_donation" {
			continue
		}
		records = append(records, models.PaymentRecord{
			JournalID:   row.ID,
			Date:        row.Date.UTC(),
			Amount:      row.Amount,
			PayerEveID:  row.FirstPartyID,
			Description: row.Description,
		})
	}
	return records, nil
}

func (c *Client) journal(ctx context.Context, path, accessToken string) ([]journalRow, error) {
	var all []journalRow
	pages := 1
	for page := 1; page <= pages; page++ {
		var rows []journalRow
		header, err := c.get(ctx, path, url.Values{"page": {strconv.Itoa(page)}}, accessToken, &rows)
		if err != nil {
			return nil, err
		}
		if n, err := strconv.Atoi(header.Get("X-Pages")); err == nil && n > pages {
			pages = n
		}
		all = append(all, rows...)
	}
	return all, nil
}

type systemResponse struct {
	SystemID        int64   `json:"system_id"`
	Name            string  `json:"name"`
	SecurityStatus  float64 `json:"security_status"`
	ConstellationID int64   `json:"constellation_id"`
}

type constellationResponse struct {
	RegionID int64 `json:"region_id"`
}

// System resolves a solar system together with the region it belongs to.
func (c *Client) System(ctx context.Context, systemID int64) (models.SolarSystem, error) {
	var system systemResponse
	if _, err := c.get(ctx, fmt.Sprintf("/universe/systems/%d/", systemID), nil, "", &system); err != nil {
		return models.SolarSystem{}, err
	}
	var constellation constellationResponse
	if _, err := c.get(ctx, fmt.Sprintf("/universe/constellations/%d/", system.ConstellationID), nil, "", &constellation); err != nil {
		return models.SolarSystem{}, err
	}
	return models.SolarSystem{
		ID:             systemID,
		Name:           system.Name,
		SecurityStatus: system.SecurityStatus,
		RegionID:       constellation.RegionID,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, accessToken string, dest any) (http.Header, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s %s: %s", ErrUpstream, path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return resp.Header, nil
}
