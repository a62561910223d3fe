package store

import (
	"context"
	"time"

	"pvetax/internal/models"
)

type NotificationStore struct {
	db DB
}

func NewNotificationStore(db DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, account_id, title, message, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.AccountID, n.Title, n.Message, n.Level, n.CreatedAt)
	return err
}

func (s *NotificationStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.Notification, error) {
	var rows []models.Notification
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, title, message, level, created_at
		FROM notifications
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExistsSince reports whether the account already got a notice with title
// at or after since.
func (s *NotificationStore) ExistsSince(ctx context.Context, accountID, title string, since time.Time) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM notifications
		WHERE account_id = $1 AND title = $2 AND created_at >= $3
	`, accountID, title, since)
	return count > 0, err
}
