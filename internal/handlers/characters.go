package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pvetax/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (h *Handler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	characters, err := h.ledger.CharactersForAccount(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, err, "unable to load characters")
		return
	}
	normalized := make([]map[string]any, 0, len(characters))
	for _, c := range characters {
		normalized = append(normalized, map[string]any{
			"id":                 c.ID,
			"eve_character_id":   c.EveCharacterID,
			"name":               c.Name,
			"life_taxes":         isk(c.LifeTaxes),
			"life_credits":       isk(c.LifeCredits),
			"monthly_taxes":      c.MonthlyTaxes,
			"monthly_credits":    c.MonthlyCredits,
			"last_wallet_update": c.LastWalletUpdate,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type registerCharacterRequest struct {
	EveCharacterID int64 `json:"eve_character_id"`
}

func (h *Handler) RegisterCharacter(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req registerCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EveCharacterID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	character, err := h.ledger.RegisterCharacter(r.Context(), accountID, req.EveCharacterID)
	if err != nil {
		h.respondServiceError(w, err, "unable to register character")
		return
	}
	respondJSON(w, http.StatusCreated, character)
}

func (h *Handler) CharacterLedger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	characterID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid character id")
		return
	}
	limit, offset := pageParams(r, 200)
	page, err := h.ledger.Ledger(r.Context(), accountID, characterID, limit, offset)
	if err != nil {
		h.respondServiceError(w, err, "unable to load ledger")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balances, err := h.ledger.AccountBalance(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, err, "unable to load balance")
		return
	}
	total := decimal.Zero
	month := decimal.Zero
	characters := make([]map[string]any, 0, len(balances))
	for _, b := range balances {
		total = total.Add(b.Lifetime)
		month = month.Add(b.CurrentMonth)
		characters = append(characters, map[string]any{
			"character_id":  b.CharacterID,
			"balance":       isk(b.Lifetime),
			"current_month": isk(b.CurrentMonth),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id":    accountID,
		"balance":       isk(total),
		"current_month": isk(month),
		"characters":    characters,
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.Snapshot(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "unable to load stats")
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}
