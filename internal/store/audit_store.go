package store

import (
	"context"
	"fmt"
	"strings"

	"pvetax/internal/models"

	"github.com/google/uuid"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// AuditFilter narrows List to one entity type and, optionally, one entity.
type AuditFilter struct {
	EntityType string
	EntityID   string
	Limit      int
	Offset     int
}

// Log records an operator action. actor is an account id, or a label such as
// "cli" for scheduled commands.
func (s *AuditStore) Log(ctx context.Context, tx Execer, actor, action, entityType, entityID, data string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), actor, action, entityType, entityID, data)
	return err
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, filter AuditFilter) ([]models.AuditEntry, error) {
	var where []string
	var args []any
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
		if filter.EntityID != "" {
			args = append(args, filter.EntityID)
			where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
		}
	}
	query := `SELECT id, COALESCE(actor, '') AS actor, action, entity_type, entity_id, data, created_at FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	entries := []models.AuditEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}
