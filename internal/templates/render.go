package templates

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aiox-platform/mailgate/internal/mail"
)

var ErrInvalidContent = errors.New("template content must have a subject on the first line and a body after it")

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// ParseContent splits template content into subject and body.
func ParseContent(content string) (subject, body string, err error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	first, rest, ok := strings.Cut(content, "\n")
	subject = strings.TrimSpace(first)
	if !ok || subject == "" || strings.TrimSpace(rest) == "" {
		return "", "", ErrInvalidContent
	}
	return subject, rest, nil
}

// Render substitutes {{key}} placeholders in subject and body. Keys may walk
// nested maps with dots ({{user.name}}). Placeholders without a value are
// left as they are.
func Render(content string, data map[string]any) (*Rendered, error) {
	subject, body, err := ParseContent(content)
	if err != nil {
		return nil, err
	}
	html := Substitute(body, data)
	return &Rendered{
		Subject: Substitute(subject, data),
		HTML:    html,
		Text:    mail.PlainText(html),
	}, nil
}

// Substitute replaces every resolvable placeholder in s.
func Substitute(s string, data map[string]any) string {
	if len(data) == 0 {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(token string) string {
		key := placeholderRe.FindStringSubmatch(token)[1]
		val, ok := lookup(data, key)
		if !ok {
			return token
		}
		if val == nil {
			return ""
		}
		return fmt.Sprint(val)
	})
}

func lookup(data map[string]any, key string) (any, bool) {
	if v, ok := data[key]; ok {
		return v, true
	}
	head, rest, ok := strings.Cut(key, ".")
	if !ok {
		return nil, false
	}
	nested, ok := data[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(nested, rest)
}
