// Package worker reacts to ledger change events delivered over AMQP.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"insights/internal/amqp"
	"insights/internal/log"
)

// ReportInvalidator drops cached reports of one user and returns how many
// entries went away.
type ReportInvalidator interface {
	Invalidate(userID string) int
}

// Refresher is implemented by ledger sources that keep their own snapshot.
type Refresher interface {
	Refresh()
}

// InvalidationWorker turns ledger.changed events into cache invalidation.
type InvalidationWorker struct {
	reports ReportInvalidator
	sources []Refresher
}

func NewInvalidationWorker(reports ReportInvalidator, sources ...Refresher) *InvalidationWorker {
	return &InvalidationWorker{reports: reports, sources: sources}
}

// HandleLedgerChanged is the AMQP handler. Source snapshots are refreshed
// before reports are dropped so the next report reads fresh rows.
func (w *InvalidationWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if msg == nil || msg.UserID == "" {
		return amqp.ErrMissingUserID
	}
	if w.reports == nil {
		return errors.New("no report cache configured")
	}

	for _, s := range w.sources {
		s.Refresh()
	}
	removed := w.reports.Invalidate(msg.UserID)

	slog.InfoContext(ctx, "Invalidated cached reports",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpInvalidate,
		log.FieldUserID, msg.UserID,
		"kind", msg.Kind,
		"removed", removed,
		"event_time", msg.Timestamp)
	return nil
}
