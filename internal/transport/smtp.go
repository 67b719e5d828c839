package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/aiox-platform/mailgate/internal/config"
	"github.com/aiox-platform/mailgate/internal/mail"
	"github.com/aiox-platform/mailgate/internal/metrics"
)

type dialer interface {
	Dial() (gomail.SendCloser, error)
}

// SMTP sends through an SMTP relay. With pooling enabled connections are
// kept open and reused until they have carried MaxMessages messages.
type SMTP struct {
	name   string
	info   string
	dialer dialer
	pool   *pool
}

// NewSMTP builds an SMTP transport. A well-known service name replaces host,
// port and secure.
func NewSMTP(cfg config.SMTPConfig, pc config.PoolConfig) (*SMTP, error) {
	host, port, secure := cfg.Host, cfg.Port, cfg.Secure
	info := fmt.Sprintf("SMTP (%s:%d)", host, port)
	if cfg.Service != "" {
		svc, ok := LookupService(cfg.Service)
		if !ok {
			return nil, fmt.Errorf("unknown SMTP service %q", cfg.Service)
		}
		host, port, secure = svc.Host, svc.Port, svc.Secure
		info = fmt.Sprintf("SMTP (%s service)", cfg.Service)
	}
	if host == "" {
		return nil, errors.New("SMTP host is required")
	}

	user, pass := cfg.User, cfg.Pass
	if user == "" || pass == "" {
		user, pass = "", ""
	}
	d := gomail.NewDialer(host, port, user, pass)
	d.SSL = secure || port == 465

	return newSMTP(config.ServiceSMTP, info, d, pc), nil
}

// NewGmail is an SMTP transport bound to Gmail with an app password.
func NewGmail(cfg config.GmailConfig, pc config.PoolConfig) (*SMTP, error) {
	if cfg.User == "" || cfg.Pass == "" {
		return nil, errors.New("gmail user and password are required")
	}
	svc, _ := LookupService("gmail")
	d := gomail.NewDialer(svc.Host, svc.Port, cfg.User, cfg.Pass)
	d.SSL = svc.Secure
	return newSMTP(config.ServiceGmail, fmt.Sprintf("Gmail (%s)", cfg.User), d, pc), nil
}

func newSMTP(name, info string, d dialer, pc config.PoolConfig) *SMTP {
	t := &SMTP{name: name, info: info, dialer: d}
	if pc.Enabled {
		t.pool = newPool(d, pc.MaxConnections, pc.MaxMessages)
	}
	return t
}

func (t *SMTP) Name() string { return t.name }
func (t *SMTP) Info() string { return t.info }

// Send delivers msg. If ctx ends first Send returns ctx.Err() and the SMTP
// exchange finishes in the background.
func (t *SMTP) Send(ctx context.Context, msg *mail.Message) (*Result, error) {
	id := msg.MessageID
	if id == "" {
		id = NewMessageID(msg.SenderDomain())
	}
	m := buildMIME(msg, id)

	err := runWithContext(ctx, func() error {
		if t.pool != nil {
			return t.pool.send(m)
		}
		sc, err := t.dialer.Dial()
		if err != nil {
			return err
		}
		defer sc.Close()
		return gomail.Send(sc, m)
	})
	if err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	slog.Debug("smtp message accepted",
		"message_id", id,
		"to", mail.RedactAddresses(msg.To),
		"recipients", len(msg.Recipients()),
	)
	return &Result{MessageID: id}, nil
}

// Verify opens a connection, authenticates if configured and closes it.
func (t *SMTP) Verify(ctx context.Context) error {
	return runWithContext(ctx, func() error {
		sc, err := t.dialer.Dial()
		if err != nil {
			return fmt.Errorf("smtp verify: %w", err)
		}
		return sc.Close()
	})
}

func (t *SMTP) Close() error {
	if t.pool != nil {
		return t.pool.close()
	}
	return nil
}

type pooledConn struct {
	sc   gomail.SendCloser
	sent int
}

func (c *pooledConn) close() error {
	if c.sc == nil {
		return nil
	}
	err := c.sc.Close()
	c.sc = nil
	c.sent = 0
	metrics.SMTPPoolConnections.Dec()
	return err
}

// pool bounds concurrent SMTP connections. Each slot holds at most one
// open connection, dialed lazily.
type pool struct {
	dialer      dialer
	slots       chan *pooledConn
	maxMessages int
	closeOnce   sync.Once
}

func newPool(d dialer, maxConns, maxMessages int) *pool {
	if maxConns < 1 {
		maxConns = 5
	}
	if maxMessages < 1 {
		maxMessages = 100
	}
	p := &pool{
		dialer:      d,
		slots:       make(chan *pooledConn, maxConns),
		maxMessages: maxMessages,
	}
	for range maxConns {
		p.slots <- &pooledConn{}
	}
	return p
}

func (p *pool) send(m *gomail.Message) error {
	c := <-p.slots
	defer func() { p.slots <- c }()

	if c.sc == nil {
		sc, err := p.dialer.Dial()
		if err != nil {
			return err
		}
		c.sc = sc
		metrics.SMTPPoolConnections.Inc()
	}

	if err := gomail.Send(c.sc, m); err != nil {
		c.close()
		return err
	}
	c.sent++
	if c.sent >= p.maxMessages {
		if err := c.close(); err != nil {
			slog.Warn("closing recycled smtp connection", "error", err)
		}
	}
	return nil
}

// close waits for in-flight sends and closes every open connection.
func (p *pool) close() error {
	var errs []error
	p.closeOnce.Do(func() {
		held := make([]*pooledConn, 0, cap(p.slots))
		for range cap(p.slots) {
			c := <-p.slots
			if err := c.close(); err != nil {
				errs = append(errs, err)
			}
			held = append(held, c)
		}
		for _, c := range held {
			p.slots <- c
		}
	})
	return errors.Join(errs...)
}
