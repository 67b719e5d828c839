package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/aiox-platform/mailgate/internal/config"
	"github.com/aiox-platform/mailgate/internal/mail"
)

type sentMessage struct {
	from string
	to   []string
	raw  string
}

type fakeConn struct {
	d      *fakeDialer
	closed bool
}

func (c *fakeConn) Send(from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.sendErr != nil {
		return c.d.sendErr
	}
	c.d.sent = append(c.d.sent, sentMessage{from: from, to: to, raw: buf.String()})
	return nil
}

func (c *fakeConn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.closed = true
	c.d.closes++
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	closes  int
	sent    []sentMessage
	dialErr error
	sendErr error
	block   chan struct{}
}

func (d *fakeDialer) Dial() (gomail.SendCloser, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.dials++
	return &fakeConn{d: d}, nil
}

func testMessage() *mail.Message {
	return &mail.Message{
		From:    "team@example.com",
		To:      []string{"to@example.com"},
		CC:      []string{"cc@example.com"},
		BCC:     []string{"hidden@example.com"},
		ReplyTo: []string{"reply@example.com"},
		Subject: "Quarterly report",
		HTML:    "<p>Attached</p>",
		Text:    "Attached",
	}
}

func TestLookupService(t *testing.T) {
	svc, ok := LookupService(" Outlook ")
	require.True(t, ok)
	assert.Equal(t, Service{Host: "smtp-mail.outlook.com", Port: 587}, svc)

	svc, ok = LookupService("gmail")
	require.True(t, ok)
	assert.True(t, svc.Secure)

	_, ok = LookupService("carrier-pigeon")
	assert.False(t, ok)
}

func TestNewSMTP_Info(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SMTPConfig
		want    string
		wantErr bool
	}{
		{"host and port", config.SMTPConfig{Host: "mail.example.com", Port: 587}, "SMTP (mail.example.com:587)", false},
		{"service", config.SMTPConfig{Service: "outlook"}, "SMTP (outlook service)", false},
		{"unknown service", config.SMTPConfig{Service: "nope"}, "", true},
		{"no host", config.SMTPConfig{Port: 25}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewSMTP(tt.cfg, config.PoolConfig{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Info())
			assert.Equal(t, config.ServiceSMTP, tr.Name())
		})
	}
}

func TestNewSMTP_AuthOnlyWithBothCredentials(t *testing.T) {
	tr, err := NewSMTP(config.SMTPConfig{Host: "h", Port: 587, User: "u"}, config.PoolConfig{})
	require.NoError(t, err)
	d := tr.dialer.(*gomail.Dialer)
	assert.Empty(t, d.Username)
	assert.False(t, d.SSL)

	tr, err = NewSMTP(config.SMTPConfig{Host: "h", Port: 587, User: "u", Pass: "p", Secure: true}, config.PoolConfig{})
	require.NoError(t, err)
	d = tr.dialer.(*gomail.Dialer)
	assert.Equal(t, "u", d.Username)
	assert.True(t, d.SSL)
}

func TestNewGmail(t *testing.T) {
	tr, err := NewGmail(config.GmailConfig{User: "me@gmail.com", Pass: "app"}, config.PoolConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Gmail (me@gmail.com)", tr.Info())
	assert.Equal(t, config.ServiceGmail, tr.Name())
	d := tr.dialer.(*gomail.Dialer)
	assert.Equal(t, "smtp.gmail.com", d.Host)
	assert.Equal(t, 465, d.Port)

	_, err = NewGmail(config.GmailConfig{User: "me@gmail.com"}, config.PoolConfig{})
	assert.Error(t, err)
}

func TestNew_UnsupportedService(t *testing.T) {
	_, err := New(context.Background(), config.MailConfig{Service: "fax"})
	assert.ErrorContains(t, err, "unsupported email service")
}

func TestSMTP_Send(t *testing.T) {
	d := &fakeDialer{}
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{})

	msg := testMessage()
	msg.Priority = mail.PriorityHigh
	msg.Headers = map[string]string{"X-Campaign": "q3"}

	res, err := tr.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "<"))
	assert.True(t, strings.HasSuffix(res.MessageID, "@example.com>"))

	require.Len(t, d.sent, 1)
	sent := d.sent[0]
	assert.Equal(t, "team@example.com", sent.from)
	assert.ElementsMatch(t, []string{"to@example.com", "cc@example.com", "hidden@example.com"}, sent.to)
	assert.Contains(t, sent.raw, "Message-ID: "+res.MessageID)
	assert.Contains(t, sent.raw, "X-Priority: 1 (Highest)")
	assert.Contains(t, sent.raw, "X-Campaign: q3")
	assert.Contains(t, sent.raw, "Reply-To: reply@example.com")
	assert.NotContains(t, sent.raw, "hidden@example.com")
	assert.Equal(t, 1, d.closes)
}

func TestSMTP_SendKeepsCallerMessageID(t *testing.T) {
	d := &fakeDialer{}
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{})
	msg := testMessage()
	msg.MessageID = "<fixed@example.com>"

	res, err := tr.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "<fixed@example.com>", res.MessageID)
}

func TestSMTP_SendErrors(t *testing.T) {
	d := &fakeDialer{dialErr: errors.New("connection refused")}
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{})
	_, err := tr.Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "connection refused")

	d = &fakeDialer{sendErr: errors.New("550 mailbox unavailable")}
	tr = newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{})
	_, err = tr.Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "550")
}

func TestSMTP_SendHonoursContext(t *testing.T) {
	d := &fakeDialer{block: make(chan struct{})}
	defer close(d.block)
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.Send(ctx, testMessage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSMTP_PoolReusesAndRecycles(t *testing.T) {
	d := &fakeDialer{}
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{Enabled: true, MaxConnections: 1, MaxMessages: 2})

	for range 5 {
		_, err := tr.Send(context.Background(), testMessage())
		require.NoError(t, err)
	}

	assert.Len(t, d.sent, 5)
	assert.Equal(t, 3, d.dials)
	assert.Equal(t, 2, d.closes)

	require.NoError(t, tr.Close())
	assert.Equal(t, 3, d.closes)
}

func TestSMTP_PoolBoundsConnections(t *testing.T) {
	d := &fakeDialer{}
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{Enabled: true, MaxConnections: 2, MaxMessages: 100})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Send(context.Background(), testMessage())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, d.sent, 10)
	assert.LessOrEqual(t, d.dials, 2)
}

func TestSMTP_PoolDropsBrokenConnection(t *testing.T) {
	d := &fakeDialer{sendErr: errors.New("broken pipe")}
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{Enabled: true, MaxConnections: 1, MaxMessages: 10})

	_, err := tr.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, 1, d.closes)

	d.mu.Lock()
	d.sendErr = nil
	d.mu.Unlock()
	_, err = tr.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, 2, d.dials)
}

func TestSMTP_Verify(t *testing.T) {
	d := &fakeDialer{}
	tr := newSMTP(config.ServiceSMTP, "test", d, config.PoolConfig{})
	require.NoError(t, tr.Verify(context.Background()))
	assert.Equal(t, 1, d.dials)
	assert.Equal(t, 1, d.closes)

	d.dialErr = errors.New("535 authentication failed")
	assert.ErrorContains(t, tr.Verify(context.Background()), "535")
}

func TestBuildMIME_Attachments(t *testing.T) {
	msg := testMessage()
	msg.Attachments = []mail.Attachment{
		{Filename: "report.csv", ContentType: "text/csv", Data: []byte("a,b\n1,2\n")},
		{Filename: "logo.png", CID: "logo", Data: []byte{0x89, 0x50}},
	}

	var buf bytes.Buffer
	_, err := buildMIME(msg, "<id@example.com>").WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, `Content-Disposition: attachment; filename="report.csv"`)
	assert.Contains(t, raw, `Content-Type: text/csv; name="report.csv"`)
	assert.Contains(t, raw, "Content-ID: <logo>")
	assert.Contains(t, raw, `Content-Disposition: inline; filename="logo.png"`)
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
}

func TestBuildMIME_SkipsReservedHeaders(t *testing.T) {
	msg := testMessage()
	msg.Headers = map[string]string{
		"subject":    "spoofed",
		"Message-ID": "<forged@example.com>",
		"BCC":        "leak@example.com",
		"X-Campaign": "q3",
	}

	var buf bytes.Buffer
	_, err := buildMIME(msg, "<id@example.com>").WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "Subject: Quarterly report")
	assert.Contains(t, raw, "Message-ID: <id@example.com>")
	assert.Contains(t, raw, "X-Campaign: q3")
	assert.NotContains(t, raw, "spoofed")
	assert.NotContains(t, raw, "forged@example.com")
	assert.NotContains(t, raw, "leak@example.com")
}

type fakeSES struct {
	input   *sesv2.SendEmailInput
	sendErr error
	account *sesv2.GetAccountOutput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func (f *fakeSES) GetAccount(context.Context, *sesv2.GetAccountInput, ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	return f.account, nil
}

func TestSES_Send(t *testing.T) {
	fake := &fakeSES{}
	tr := &SES{client: fake, region: "eu-west-1"}
	assert.Equal(t, "AWS SES (eu-west-1)", tr.Info())

	res, err := tr.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "ses-123", res.MessageID)

	require.NotNil(t, fake.input)
	assert.Equal(t, "team@example.com", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"hidden@example.com"}, fake.input.Destination.BccAddresses)
	raw := string(fake.input.Content.Raw.Data)
	assert.Contains(t, raw, "Subject: Quarterly report")
	assert.NotContains(t, raw, "hidden@example.com")
}

func TestSES_SendError(t *testing.T) {
	tr := &SES{client: &fakeSES{sendErr: errors.New("MessageRejected")}, region: "us-east-1"}
	_, err := tr.Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "MessageRejected")
}

func TestSES_Verify(t *testing.T) {
	tr := &SES{client: &fakeSES{account: &sesv2.GetAccountOutput{SendingEnabled: true, ProductionAccessEnabled: true}}}
	assert.NoError(t, tr.Verify(context.Background()))

	tr = &SES{client: &fakeSES{account: &sesv2.GetAccountOutput{SendingEnabled: false}}}
	assert.ErrorContains(t, tr.Verify(context.Background()), "sending is disabled")
}

func TestNewSES_RequiresCredentials(t *testing.T) {
	_, err := NewSES(context.Background(), config.SESConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
