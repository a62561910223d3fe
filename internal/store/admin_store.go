package store

import (
	"context"
	"database/sql"
	"errors"
	"slices"
)

// Admin roles gating the operator endpoints. Super admins hold every role.
const (
	RoleLedger   = "ledger"
	RoleSettings = "settings"
)

var roles = []string{RoleLedger, RoleSettings}

// ValidRole reports whether role can be granted.
func ValidRole(role string) bool {
	return slices.Contains(roles, role)
}

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

// IsAdmin returns (isAdmin, isSuper). An account without an admins row is
// neither.
func (s *AdminStore) IsAdmin(ctx context.Context, accountID string) (bool, bool, error) {
	var isSuper bool
	err := s.db.GetContext(ctx, &isSuper, `SELECT is_super FROM admins WHERE account_id = $1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, isSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, accountID, role string) (bool, error) {
	var granted bool
	err := s.db.GetContext(ctx, &granted, `
		SELECT EXISTS (
			SELECT 1 FROM admin_roles
			WHERE admin_account_id = $1 AND role = $2
		)
	`, accountID, role)
	return granted, err
}

// CreateAdmin is a no-op for an account that is already an admin; an
// existing admin is never upgraded to super here.
func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, accountID string, isSuper bool, createdBy *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (account_id, is_super, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, isSuper, createdBy)
	return err
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminAccountID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_account_id, role)
		VALUES ($1, $2)
		ON CONFLICT (admin_account_id, role) DO NOTHING
	`, adminAccountID, role)
	return err
}

// HasAnyAdmin decides whether the CLI's promote makes the first admin super.
func (s *AdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM admins)`)
	return exists, err
}
