// Package mail holds the transport-neutral message model and the helpers
// every send path shares: address parsing, validation, HTML sanitizing and
// plain-text derivation.
package mail

import (
	"net/textproto"
	"strings"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Message is a fully resolved email ready for a transport.
type Message struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	ReplyTo     []string
	Subject     string
	HTML        string
	Text        string
	Headers     map[string]string
	Priority    Priority
	Attachments []Attachment
	MessageID   string
}

// Attachment is attachment content after loading.
type Attachment struct {
	Filename    string
	ContentType string
	Disposition string // "attachment" or "inline"
	CID         string
	Headers     map[string]string
	Data        []byte
}

// Recipients returns every envelope recipient: to, cc and bcc.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	out = append(out, m.To...)
	out = append(out, m.CC...)
	return append(out, m.BCC...)
}

// SenderDomain is the domain part of From, or "localhost".
func (m *Message) SenderDomain() string {
	if i := strings.LastIndex(m.From, "@"); i >= 0 && i < len(m.From)-1 {
		return strings.TrimSuffix(m.From[i+1:], ">")
	}
	return "localhost"
}

// reservedHeaders are written from Message fields and cannot be overridden
// through Headers.
var reservedHeaders = map[string]bool{
	"From":                      true,
	"Sender":                    true,
	"To":                        true,
	"Cc":                        true,
	"Bcc":                       true,
	"Reply-To":                  true,
	"Subject":                   true,
	"Message-Id":                true,
	"Date":                      true,
	"Return-Path":               true,
	"Mime-Version":              true,
	"Content-Type":              true,
	"Content-Transfer-Encoding": true,
}

// IsReservedHeader reports whether name is an envelope or MIME structure
// header. The comparison is case-insensitive.
func IsReservedHeader(name string) bool {
	return reservedHeaders[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))]
}

// Defaults are applied to requests that omit the sender or reply-to.
type Defaults struct {
	Sender  string
	ReplyTo []string
}

// Apply fills From and ReplyTo from d when m leaves them empty.
func (d Defaults) Apply(m *Message) {
	if m.From == "" {
		m.From = d.Sender
	}
	if len(m.ReplyTo) == 0 && len(d.ReplyTo) > 0 {
		m.ReplyTo = append([]string(nil), d.ReplyTo...)
	}
}
