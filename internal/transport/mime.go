package transport

import (
	"io"
	"sort"

	"gopkg.in/gomail.v2"

	"github.com/aiox-platform/mailgate/internal/mail"
)

var priorityHeaders = map[mail.Priority][3]string{
	mail.PriorityHigh: {"1 (Highest)", "High", "High"},
	mail.PriorityLow:  {"5 (Lowest)", "Low", "Low"},
}

// buildMIME converts msg into a gomail message carrying messageID. Bcc is kept
// for the envelope but gomail never writes it into the headers.
func buildMIME(msg *mail.Message, messageID string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To...)
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	if len(msg.BCC) > 0 {
		m.SetHeader("Bcc", msg.BCC...)
	}
	if len(msg.ReplyTo) > 0 {
		m.SetHeader("Reply-To", msg.ReplyTo...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)

	if h, ok := priorityHeaders[msg.Priority]; ok {
		m.SetHeader("X-Priority", h[0])
		m.SetHeader("X-MSMail-Priority", h[1])
		m.SetHeader("Importance", h[2])
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		if mail.IsReservedHeader(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetHeader(k, msg.Headers[k])
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	for _, a := range msg.Attachments {
		addAttachment(m, a)
	}
	return m
}

func addAttachment(m *gomail.Message, a mail.Attachment) {
	data := a.Data
	header := map[string][]string{}
	if a.ContentType != "" {
		header["Content-Type"] = []string{a.ContentType + `; name="` + a.Filename + `"`}
	}
	if a.CID != "" {
		header["Content-ID"] = []string{"<" + a.CID + ">"}
	}
	for k, v := range a.Headers {
		header[k] = []string{v}
	}

	settings := []gomail.FileSetting{
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}),
	}
	if len(header) > 0 {
		settings = append(settings, gomail.SetHeader(header))
	}

	if a.Disposition == "inline" || a.CID != "" {
		m.Embed(a.Filename, settings...)
		return
	}
	m.Attach(a.Filename, settings...)
}
