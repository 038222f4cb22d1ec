// Package notify fans out collection results to connected clients.
package notify

import (
	"context"

	"fleetwatch/internal/model"
)

// Notifier receives the outcomes of metric collection. Implementations must
// not block the collection pipeline; failures are the notifier's problem,
// never the caller's.
type Notifier interface {
	PublishMetricUpdate(ctx context.Context, serverID int64, snap model.MetricSnapshot) error
	PublishAlertTriggered(ctx context.Context, alert model.Alert) error
	PublishAlertResolved(ctx context.Context, alert model.Alert) error
}

// Discard is a Notifier that drops everything. Used in tests and when no
// client-facing surface is wanted.
type Discard struct{}

func (Discard) PublishMetricUpdate(context.Context, int64, model.MetricSnapshot) error {
	return nil
}

func (Discard) PublishAlertTriggered(context.Context, model.Alert) error {
	return nil
}

func (Discard) PublishAlertResolved(context.Context, model.Alert) error {
	return nil
}
