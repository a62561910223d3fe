// Package notify delivers direct notices and the corporation summary.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"pvetax/internal/metrics"
	"pvetax/internal/models"
)

// ErrTransport wraps every delivery failure of an outbound channel.
var ErrTransport = errors.New("notification transport failed")

type Notifier interface {
	Notify(ctx context.Context, account models.Account, title, message string) error
	Summary(ctx context.Context, rows []models.SummaryRow) error
}

// Fanout sends to every channel. A failing channel is logged and does not
// stop the others; the first error is returned.
type Fanout struct {
	channels []namedNotifier
	logger   *slog.Logger
}

type namedNotifier struct {
	name string
	Notifier
}

func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{logger: logger}
}

func (f *Fanout) Add(name string, n Notifier) *Fanout {
	f.channels = append(f.channels, namedNotifier{name: name, Notifier: n})
	return f
}

func (f *Fanout) Notify(ctx context.Context, account models.Account, title, message string) error {
	var first error
	for _, ch := range f.channels {
		err := ch.Notify(ctx, account, title, message)
		f.record(ch.name, err)
		if err != nil {
			f.logger.Warn("notice delivery failed", "channel", ch.name, "account_id", account.ID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (f *Fanout) Summary(ctx context.Context, rows []models.SummaryRow) error {
	var first error
	for _, ch := range f.channels {
		err := ch.Summary(ctx, rows)
		f.record(ch.name, err)
		if err != nil {
			f.logger.Warn("summary delivery failed", "channel", ch.name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (f *Fanout) record(channel string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	metrics.Notifications.WithLabelValues(channel, outcome).Inc()
}
