package analytics

import (
	"context"

	"github.com/google/uuid"

	"github.com/aiox-platform/mailgate/internal/metrics"
	inats "github.com/aiox-platform/mailgate/internal/nats"
)

type eventPublisher interface {
	PublishSendEvent(ctx context.Context, event inats.SendEvent) error
}

// BusRecorder forwards events to the event bus instead of writing the store.
type BusRecorder struct {
	pub eventPublisher
}

func NewBusRecorder(pub eventPublisher) *BusRecorder {
	return &BusRecorder{pub: pub}
}

func (r *BusRecorder) Record(ctx context.Context, ev Event) error {
	err := r.pub.PublishSendEvent(ctx, inats.SendEvent{
		ID:         uuid.NewString(),
		Identity:   ev.Identity,
		Kind:       ev.Kind,
		Success:    ev.Success,
		Transport:  ev.Transport,
		TemplateID: ev.TemplateID,
		MessageID:  ev.MessageID,
		Error:      ev.Error,
		Timestamp:  ev.Timestamp,
	})
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.EventsPublishedTotal.WithLabelValues(status).Inc()
	return err
}
