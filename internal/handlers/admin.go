package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"pvetax/internal/auth"
	"pvetax/internal/middleware"
	"pvetax/internal/models"
	"pvetax/internal/money"
	"pvetax/internal/services"
	"pvetax/internal/store"
	"pvetax/internal/validator"
	"pvetax/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

type promoteRequest struct {
	AccountID string `json:"account_id"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.AccountID) == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if _, err := h.identity.GetAccount(r.Context(), req.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve account")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, req.AccountID, false, &accountID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"target_account_id": req.AccountID,
		})
		return h.audit.Log(r.Context(), tx, accountID, "promote_admin", "admin", req.AccountID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminAccountID string `json:"admin_account_id"`
	Role           string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req grantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdminAccountID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !store.ValidRole(req.Role) {
		respondError(w, http.StatusBadRequest, "unknown role")
		return
	}
	isAdmin, targetSuper, err := h.admin.IsAdmin(r.Context(), req.AdminAccountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if targetSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminAccountID, req.Role); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"admin_account_id": req.AdminAccountID,
			"role":             req.Role,
		})
		return h.audit.Log(r.Context(), tx, accountID, "grant_role", "admin_role", req.AdminAccountID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) AdminBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.AccountBalances(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "unable to load balances")
		return
	}
	normalized := make([]map[string]any, 0, len(balances))
	for _, b := range balances {
		normalized = append(normalized, map[string]any{
			"account_id":    b.Account.ID,
			"display_name":  b.Account.DisplayName(),
			"username":      b.Account.Username,
			"balance":       isk(b.Lifetime),
			"current_month": isk(b.CurrentMonth),
			"character_ids": b.CharacterIDs,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type creditRequest struct {
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

func (h *Handler) AdminCredit(w http.ResponseWriter, r *http.Request) {
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
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := money.ParseISK(req.Amount)
	if err != nil || amount.IsZero() {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := validator.ValidateCreditCategory(req.Category); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateReason(req.Reason); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.ledger.AdminCredit(r.Context(), accountID, services.CreditRequest{
		CharacterID: characterID,
		Amount:      amount,
		Category:    models.CreditCategory(req.Category),
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.respondServiceError(w, err, "unable to post credit")
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

type zeroRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) ZeroBalances(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req zeroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Confirm {
		respondError(w, http.StatusBadRequest, "confirmation required")
		return
	}
	summary, err := h.ledger.ZeroBalances(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, err, "unable to zero balances")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) UnmatchedPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListUnmatched(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load payments")
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	respondJSON(w, http.StatusOK, payments)
}

func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.CreditDrift(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to check credit totals")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"character_id": row.CharacterID,
			"name":         row.Name,
			"cached":       isk(row.Cached),
			"calculated":   isk(row.Calculated),
			"difference":   isk(row.Difference),
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	settings, err := h.settings.Update(r.Context(), accountID, req)
	if err != nil {
		h.respondServiceError(w, err, "unable to update settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *Handler) RefreshStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.Refresh(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "unable to refresh stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"generated_at": snapshot.GeneratedAt})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 200)
	filter := store.AuditFilter{
		EntityType: strings.TrimSpace(r.URL.Query().Get("entity_type")),
		EntityID:   strings.TrimSpace(r.URL.Query().Get("entity_id")),
		Limit:      limit,
		Offset:     offset,
	}
	if filter.EntityID != "" && filter.EntityType == "" {
		respondError(w, http.StatusBadRequest, "entity_id requires entity_type")
		return
	}
	rows, err := h.audit.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerToken(r, true)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.AccountID, h.cfg.AllowedOrigins)
}
