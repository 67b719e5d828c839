package nats

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

const StreamEvents = "MAILGATE_EVENTS"

// Subject constants.
const (
	SubjectEventsAll = "mailgate.events.>"
	SubjectSendEvent = "mailgate.events.send"
)

// SendEvent is published once per attempted message, successful or not.
type SendEvent struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Kind       string    `json:"kind"` // single, template, premium, bulk
	Success    bool      `json:"success"`
	Transport  string    `json:"transport"`
	TemplateID string    `json:"template_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
