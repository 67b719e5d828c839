package templates

import "time"

// Template is a stored email template. Content is the raw two-part document:
// the first line is the subject, everything after it is the HTML body.
type Template struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Metadata is persisted next to the content under its own key.
type Metadata struct {
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Rendered is a template with placeholders substituted.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type CreateTemplateRequest struct {
	ID          string `json:"id" validate:"required,max=128,printascii,excludesall=/*?"`
	Content     string `json:"content" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

type UpdateTemplateRequest struct {
	Content     string `json:"content" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}
