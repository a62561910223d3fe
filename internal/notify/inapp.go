package notify

import (
	"context"
	"time"

	"pvetax/internal/models"

	"github.com/google/uuid"
)

type NotificationWriter interface {
	Create(ctx context.Context, n models.Notification) error
}

// InApp stores notices in the notifications table. Summaries are not
// addressed to an account and are dropped.
type InApp struct {
	store NotificationWriter
	now   func() time.Time
}

func NewInApp(store NotificationWriter) *InApp {
	return &InApp{store: store, now: time.Now}
}

func (n *InApp) Notify(ctx context.Context, account models.Account, title, message string) error {
	return n.store.Create(ctx, models.Notification{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Title:     title,
		Message:   message,
		Level:     "warning",
		CreatedAt: n.now().UTC(),
	})
}

func (n *InApp) Summary(context.Context, []models.SummaryRow) error {
	return nil
}
