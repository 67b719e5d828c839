package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/aiox-platform/mailgate/internal/nats"
)

const consumerName = "analytics-recorder"

// Consumer listens on the send event subject and records each event.
type Consumer struct {
	recorder    Recorder
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(recorder Recorder, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		recorder:    recorder,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectSendEvent)
	if err != nil {
		return err
	}

	slog.Info("analytics consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("analytics consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			if err := c.handle(ctx, msg.Data()); err != nil {
				slog.Error("analytics consumer: recording event", "error", err)
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, data []byte) error {
	var event inats.SendEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("unmarshaling send event: %w", err)
	}
	if err := c.recorder.Record(ctx, eventFromMessage(event)); err != nil {
		return err
	}
	slog.Debug("analytics consumer: recorded event", "id", event.ID, "success", event.Success)
	return nil
}

func eventFromMessage(e inats.SendEvent) Event {
	return Event{
		Identity:   e.Identity,
		Kind:       e.Kind,
		Success:    e.Success,
		Transport:  e.Transport,
		TemplateID: e.TemplateID,
		MessageID:  e.MessageID,
		Error:      e.Error,
		Timestamp:  e.Timestamp,
	}
}
