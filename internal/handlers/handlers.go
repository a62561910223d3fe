package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pvetax/internal/money"
	"pvetax/internal/services"

	"github.com/shopspring/decimal"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps a service sentinel to a status. Anything
// unrecognised is logged and reported as fallback.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrCharacterNotFound), errors.Is(err, services.ErrAdminCharacterNotFound):
		respondError(w, http.StatusNotFound, "character not found")
	case errors.Is(err, services.ErrNotOwner):
		respondError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid amount")
	case errors.Is(err, services.ErrInvalidCategory):
		respondError(w, http.StatusBadRequest, "invalid category")
	case errors.Is(err, services.ErrSettingsInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// pageParams reads limit and page, capping limit at max.
func pageParams(r *http.Request, max int) (int, int) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	if limit > max {
		limit = max
	}
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}

func isk(value decimal.Decimal) string {
	return money.FormatISK(value)
}
