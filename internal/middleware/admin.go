package middleware

import (
	"context"
	"net/http"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, accountID string) (bool, bool, error)
	HasRole(ctx context.Context, accountID, role string) (bool, error)
}

type denial struct {
	status  int
	reason  string
	message string
}

// RequireAdmin admits super admins, and other admins holding role. An empty
// role admits any admin.
func RequireAdmin(admins AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d := checkAdmin(r.Context(), admins, role); d != nil {
				Reject(w, d.status, d.reason, d.message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkAdmin(ctx context.Context, admins AdminStore, role string) *denial {
	accountID, ok := AccountIDFromContext(ctx)
	if !ok {
		return &denial{http.StatusUnauthorized, "missing_token", "unauthorized"}
	}
	isAdmin, isSuper, err := admins.IsAdmin(ctx, accountID)
	switch {
	case err != nil:
		return &denial{http.StatusInternalServerError, "lookup_failed", "unable to verify admin"}
	case !isAdmin:
		return &denial{http.StatusForbidden, "not_admin", "admin privileges required"}
	case isSuper || role == "":
		return nil
	}
	granted, err := admins.HasRole(ctx, accountID, role)
	if err != nil {
		return &denial{http.StatusInternalServerError, "lookup_failed", "unable to verify role"}
	}
	if !granted {
		return &denial{http.StatusForbidden, "missing_role", "missing required role: " + role}
	}
	return nil
}
