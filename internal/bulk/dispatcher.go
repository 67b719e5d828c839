// Package bulk sends one message per recipient in fixed-size chunks.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aiox-platform/mailgate/internal/mail"
	"github.com/aiox-platform/mailgate/internal/metrics"
	"github.com/aiox-platform/mailgate/internal/templates"
)

const (
	DefaultBatchSize = 10
	MaxBatchSize     = 100
	DefaultPause     = time.Second
)

var (
	ErrBatchSize       = fmt.Errorf("batch size must be between 1 and %d", MaxBatchSize)
	ErrMissingSubject  = errors.New("subject is required when no template is used")
	ErrMissingBody     = errors.New("either text or html content must be provided")
	ErrMissingTemplate = errors.New("template id must not be empty")
	ErrNoTemplates     = errors.New("no template source configured")
)

type Recipient struct {
	Email string         `json:"email" validate:"required,email"`
	Name  string         `json:"name,omitempty" validate:"max=256"`
	Data  map[string]any `json:"data,omitempty"`
}

// Content is either static (Subject plus HTML or Text) or a template reference.
// A non-empty TemplateID wins. Base carries the envelope fields shared by every
// message; its To, Subject and bodies are overwritten per recipient.
type Content struct {
	Subject     string
	HTML        string
	Text        string
	TemplateID  string
	UseTemplate bool
	Base        mail.Message
}

// Outcome is the result for the recipient at the same index.
type Outcome struct {
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendFunc delivers one message and returns its message ID.
type SendFunc func(ctx context.Context, msg *mail.Message) (string, error)

// TemplateSource resolves template references.
type TemplateSource interface {
	Get(ctx context.Context, id string) (*templates.Template, error)
}

type Dispatcher struct {
	templates TemplateSource
	pause     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Dispatcher)

// WithPause sets the delay between chunks.
func WithPause(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.pause = d }
}

// WithSleeper replaces the pause implementation.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(disp *Dispatcher) { disp.sleep = fn }
}

func NewDispatcher(src TemplateSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		templates: src,
		pause:     DefaultPause,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends content to every recipient, batchSize at a time. Sends within
// a chunk run concurrently, chunks run one after another with a pause between
// them. The returned slice always has one outcome per recipient, in input order.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []Recipient, content Content, batchSize int, send SendFunc) ([]Outcome, error) {
	if batchSize < 1 || batchSize > MaxBatchSize {
		return nil, ErrBatchSize
	}
	if err := content.validate(); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(recipients))
	for i, r := range recipients {
		outcomes[i].Recipient = r.Email
	}

	for start := 0; start < len(recipients); start += batchSize {
		end := min(start+batchSize, len(recipients))

		if start > 0 {
			if err := d.sleep(ctx, d.pause); err != nil {
				failRemaining(outcomes[start:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			failRemaining(outcomes[start:], err)
			break
		}

		d.dispatchChunk(ctx, recipients[start:end], outcomes[start:end], content, send)
		metrics.BulkChunksTotal.Inc()
	}

	return outcomes, nil
}

func (d *Dispatcher) dispatchChunk(ctx context.Context, chunk []Recipient, out []Outcome, content Content, send SendFunc) {
	var tpl *templates.Template
	if content.usesTemplate() {
		if d.templates == nil {
			failRemaining(out, fmt.Errorf("template %q: %w", content.TemplateID, ErrNoTemplates))
			return
		}
		var err error
		tpl, err = d.templates.Get(ctx, content.TemplateID)
		if err != nil {
			if !errors.Is(err, templates.ErrNotFound) {
				slog.Error("bulk template lookup", "template_id", content.TemplateID, "error", err)
			}
			failRemaining(out, fmt.Errorf("template %q: %w", content.TemplateID, err))
			return
		}
	}

	var wg sync.WaitGroup
	for i := range chunk {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := buildMessage(chunk[i], content, tpl)
			if err != nil {
				out[i].Error = err.Error()
				return
			}
			id, err := send(ctx, msg)
			if err != nil {
				out[i].Error = err.Error()
				return
			}
			out[i].Success = true
			out[i].MessageID = id
		}(i)
	}
	wg.Wait()
}

// buildMessage renders tpl with the recipient's data. Static content is
// copied verbatim.
func buildMessage(r Recipient, content Content, tpl *templates.Template) (*mail.Message, error) {
	msg := content.Base
	msg.To = []string{r.Email}
	msg.CC, msg.BCC = nil, nil

	if tpl != nil {
		data := make(map[string]any, len(r.Data)+2)
		for k, v := range r.Data {
			data[k] = v
		}
		data["recipientName"] = r.Name
		data["recipientEmail"] = r.Email

		rendered, err := templates.Render(tpl.Content, data)
		if err != nil {
			return nil, fmt.Errorf("rendering template %q: %w", tpl.ID, err)
		}
		msg.Subject, msg.HTML, msg.Text = rendered.Subject, rendered.HTML, rendered.Text
	} else {
		msg.Subject, msg.HTML, msg.Text = content.Subject, content.HTML, content.Text
	}
	msg.HTML = mail.SanitizeHTML(msg.HTML)
	return &msg, nil
}

func (c Content) usesTemplate() bool {
	return c.UseTemplate || c.TemplateID != ""
}

func (c Content) validate() error {
	if c.usesTemplate() {
		if strings.TrimSpace(c.TemplateID) == "" {
			return ErrMissingTemplate
		}
		return nil
	}
	if strings.TrimSpace(c.Subject) == "" {
		return ErrMissingSubject
	}
	if c.HTML == "" && c.Text == "" {
		return ErrMissingBody
	}
	return nil
}

func failRemaining(out []Outcome, err error) {
	for i := range out {
		out[i].Success = false
		out[i].Error = err.Error()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
