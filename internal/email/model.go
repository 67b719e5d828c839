package email

import (
	"errors"
	"fmt"
	"time"

	"github.com/aiox-platform/mailgate/internal/bulk"
	"github.com/aiox-platform/mailgate/internal/mail"
	"github.com/aiox-platform/mailgate/internal/quota"
)

// Kinds reported to analytics.
const (
	KindSingle   = "single"
	KindTemplate = "template"
	KindPremium  = "premium"
	KindBulk     = "bulk"
)

const PremiumTier = "premium"

var ErrPremiumRequired = errors.New("operation requires the premium tier")

// QuotaExceededError is returned when the caller's quota denies the send.
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return e.Decision.Reason
}

// SendError wraps a transport failure.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("email failed to send: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

type SendRequest struct {
	To          mail.AddressList      `json:"to" validate:"required,min=1,max=50,dive,email"`
	CC          mail.AddressList      `json:"cc,omitempty" validate:"omitempty,max=50,dive,email"`
	BCC         mail.AddressList      `json:"bcc,omitempty" validate:"omitempty,max=50,dive,email"`
	From        string                `json:"from,omitempty" validate:"omitempty,email"`
	ReplyTo     mail.AddressList      `json:"reply_to,omitempty" validate:"omitempty,dive,email"`
	Subject     string                `json:"subject" validate:"required,max=998"`
	Text        string                `json:"text,omitempty"`
	HTML        string                `json:"html,omitempty"`
	Priority    mail.Priority         `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
	Attachments []mail.AttachmentSpec `json:"attachments,omitempty" validate:"omitempty,max=20,dive"`
	ScheduledAt string                `json:"scheduled_at,omitempty" validate:"max=256"`
}

// TemplateSendRequest sends either a stored template or static content.
type TemplateSendRequest struct {
	To           mail.AddressList `json:"to" validate:"required,min=1,max=50,dive,email"`
	CC           mail.AddressList `json:"cc,omitempty" validate:"omitempty,max=50,dive,email"`
	BCC          mail.AddressList `json:"bcc,omitempty" validate:"omitempty,max=50,dive,email"`
	From         string           `json:"from,omitempty" validate:"omitempty,email"`
	ReplyTo      mail.AddressList `json:"reply_to,omitempty" validate:"omitempty,dive,email"`
	Subject      string           `json:"subject,omitempty" validate:"max=998"`
	Text         string           `json:"text,omitempty"`
	HTML         string           `json:"html,omitempty"`
	TemplateID   string           `json:"template_id,omitempty" validate:"max=128"`
	TemplateData map[string]any   `json:"template_data,omitempty"`
}

type PremiumRequest struct {
	To          mail.AddressList      `json:"to" validate:"required,min=1,max=50,dive,email"`
	CC          mail.AddressList      `json:"cc,omitempty" validate:"omitempty,max=50,dive,email"`
	BCC         mail.AddressList      `json:"bcc,omitempty" validate:"omitempty,max=50,dive,email"`
	From        string                `json:"from,omitempty" validate:"omitempty,email"`
	ReplyTo     mail.AddressList      `json:"reply_to,omitempty" validate:"omitempty,dive,email"`
	Subject     string                `json:"subject" validate:"required,max=998"`
	Text        string                `json:"text,omitempty"`
	HTML        string                `json:"html,omitempty"`
	Priority    mail.Priority         `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
	Attachments []mail.AttachmentSpec `json:"attachments,omitempty" validate:"omitempty,max=20,dive"`
	Headers     map[string]string     `json:"headers,omitempty" validate:"omitempty,max=50"`
	TrackOpens  bool                  `json:"track_opens,omitempty"`
	TrackClicks bool                  `json:"track_clicks,omitempty"`
	ScheduledAt string                `json:"scheduled_at,omitempty" validate:"max=256"`
}

type BulkRequest struct {
	Recipients []bulk.Recipient `json:"recipients" validate:"required,min=1,max=1000,dive"`
	From       string           `json:"from,omitempty" validate:"omitempty,email"`
	ReplyTo    mail.AddressList `json:"reply_to,omitempty" validate:"omitempty,dive,email"`
	Subject    string           `json:"subject,omitempty" validate:"max=998"`
	Text       string           `json:"text,omitempty"`
	HTML       string           `json:"html,omitempty"`
	TemplateID string           `json:"template_id,omitempty" validate:"max=128"`
	BatchSize  int              `json:"batch_size,omitempty" validate:"omitempty,min=1,max=100"`
}

type SendResult struct {
	MessageID   string        `json:"message_id"`
	Response    string        `json:"response,omitempty"`
	Transport   string        `json:"transport"`
	TemplateID  string        `json:"template_id,omitempty"`
	Priority    mail.Priority `json:"priority,omitempty"`
	Attachments int           `json:"attachments,omitempty"`
	Tracking    []string      `json:"tracking,omitempty"`
	ScheduledAt string        `json:"scheduled_at,omitempty"`
	SentAt      time.Time     `json:"sent_at"`
}

type BulkResult struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Outcomes   []bulk.Outcome `json:"outcomes"`
	Transport  string         `json:"transport"`
	TemplateID string         `json:"template_id,omitempty"`
}
