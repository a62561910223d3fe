// Package middleware authenticates API callers against identity-layer tokens
// and gates the operator routes by admin role.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"pvetax/internal/auth"
	"pvetax/internal/metrics"
)

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrMalformedHeader = errors.New("invalid authorization header")
)

type contextKey string

const accountIDKey contextKey = "account_id"

func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

func AccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountIDKey).(string)
	return accountID, ok && accountID != ""
}

// BearerToken reads the Authorization header. With allowQuery set, a token
// query parameter is accepted instead; browsers cannot set headers on a
// websocket handshake.
func BearerToken(r *http.Request, allowQuery bool) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); allowQuery && token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMalformedHeader
	}
	return strings.TrimSpace(token), nil
}

func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r, false)
			if err != nil {
				Reject(w, http.StatusUnauthorized, "missing_token", err.Error())
				return
			}
			claims, err := auth.ParseToken(secret, raw)
			if err != nil {
				Reject(w, http.StatusUnauthorized, "invalid_token", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), claims.AccountID)))
		})
	}
}

// Reject writes the JSON error body the handlers use and counts the denial.
func Reject(w http.ResponseWriter, status int, reason, message string) {
	metrics.AccessDenied.WithLabelValues(reason).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
