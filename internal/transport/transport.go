// Package transport delivers resolved messages through SMTP, Gmail or AWS SES.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aiox-platform/mailgate/internal/config"
	"github.com/aiox-platform/mailgate/internal/mail"
	"github.com/aiox-platform/mailgate/internal/metrics"
)

type Transport interface {
	Send(ctx context.Context, msg *mail.Message) (*Result, error)
	Verify(ctx context.Context) error
	// Info is a short human-readable description, e.g. "SMTP (host:587)".
	Info() string
	Name() string
	Close() error
}

// Result is what the transport reports back for an accepted message.
type Result struct {
	MessageID string `json:"message_id"`
	Response  string `json:"response,omitempty"`
}

// New builds the transport selected by cfg.Service.
func New(ctx context.Context, cfg config.MailConfig) (Transport, error) {
	var (
		t   Transport
		err error
	)
	switch cfg.Service {
	case config.ServiceSMTP:
		t, err = NewSMTP(cfg.SMTP, cfg.Pool)
	case config.ServiceGmail:
		t, err = NewGmail(cfg.Gmail, cfg.Pool)
	case config.ServiceSES:
		t, err = NewSES(ctx, cfg.SES)
	default:
		return nil, fmt.Errorf("unsupported email service %q", cfg.Service)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Debug {
		slog.Debug("transport configured",
			"service", t.Name(),
			"info", t.Info(),
			"pool", cfg.Pool.Enabled,
			"max_connections", cfg.Pool.MaxConnections,
			"max_messages", cfg.Pool.MaxMessages,
		)
	}
	return &instrumented{Transport: t}, nil
}

// NewMessageID returns an RFC 5322 Message-ID for the given domain.
func NewMessageID(domain string) string {
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// instrumented records send metrics for the wrapped transport.
type instrumented struct {
	Transport
}

func (t *instrumented) Send(ctx context.Context, msg *mail.Message) (*Result, error) {
	start := time.Now()
	res, err := t.Transport.Send(ctx, msg)
	metrics.SendDuration.WithLabelValues(t.Name()).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.EmailsSentTotal.WithLabelValues(t.Name(), status).Inc()
	return res, err
}

// runWithContext runs fn in its own goroutine and returns when either fn
// finishes or ctx is done. fn keeps running after cancellation.
func runWithContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
