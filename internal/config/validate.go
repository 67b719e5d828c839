package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks Config for problems that would stop mail from going out.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.Mail.validate()...)

	switch c.Store.Backend {
	case BackendRedis:
	case BackendPostgres:
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required when STORE_BACKEND=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be redis or postgres, got %q", c.Store.Backend))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Quota tiers
	if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("QUOTA_TIMEZONE %q is not a known time zone", c.Quota.Timezone))
	}
	if _, ok := c.Quota.Tiers[c.Quota.DefaultTier]; !ok {
		errs = append(errs, fmt.Sprintf("QUOTA_DEFAULT_TIER %q is not a configured tier", c.Quota.DefaultTier))
	}
	for name, t := range c.Quota.Tiers {
		if t.Daily < 1 || t.Monthly < 1 {
			errs = append(errs, fmt.Sprintf("quota tier %s limits must be positive", name))
		}
	}

	if c.Bulk.BatchSize < 1 || c.Bulk.BatchSize > 100 {
		errs = append(errs, fmt.Sprintf("BULK_BATCH_SIZE must be 1–100, got %d", c.Bulk.BatchSize))
	}
	if c.Bulk.Pause < 0 {
		errs = append(errs, "BULK_PAUSE must not be negative")
	}
	if c.Attachments.MaxBytes < 1 {
		errs = append(errs, "ATTACHMENTS_MAX_BYTES must be positive")
	}

	for _, spec := range c.Auth.APIKeys {
		if parts := strings.Split(spec, ":"); len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			errs = append(errs, fmt.Sprintf("AUTH_API_KEYS entry %q must be id:secret[:tier]", redactKeySpec(spec)))
		}
	}

	// API keys: warn only
	if len(c.Auth.APIKeys) == 0 {
		slog.Warn("AUTH_API_KEYS is empty, HTTP API accepts anonymous requests on the default tier")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

func (m MailConfig) validate() []string {
	var errs []string

	switch m.Service {
	case ServiceSMTP:
		if m.SMTP.Host == "" && m.SMTP.Service == "" {
			errs = append(errs, "SMTP host is required. Use --host argument or SMTP_HOST environment variable.")
		}
		if m.SMTP.Port < 1 || m.SMTP.Port > 65535 {
			errs = append(errs, fmt.Sprintf("SMTP port must be 1–65535, got %d. Use --port argument or SMTP_PORT environment variable.", m.SMTP.Port))
		}
		if (m.SMTP.User == "") != (m.SMTP.Pass == "") {
			slog.Warn("SMTP_USER and SMTP_PASS must both be set for authentication, connecting without auth")
		}
	case ServiceGmail:
		if m.Gmail.User == "" {
			errs = append(errs, "Gmail user is required. Use --user argument or GMAIL_USER environment variable.")
		} else if validate.Var(m.Gmail.User, "email") != nil {
			errs = append(errs, "Gmail user must be a valid email address.")
		}
		if m.Gmail.Pass == "" {
			errs = append(errs, "Gmail password is required. Use --pass argument or GMAIL_PASS environment variable.")
		}
	case ServiceSES:
		if m.SES.Region == "" {
			errs = append(errs, "AWS region is required. Use --region argument or AWS_REGION environment variable.")
		}
		if m.SES.AccessKeyID == "" {
			errs = append(errs, "AWS access key ID is required. Use --access-key-id argument or AWS_ACCESS_KEY_ID environment variable.")
		}
		if m.SES.SecretAccessKey == "" {
			errs = append(errs, "AWS secret access key is required. Use --secret-access-key argument or AWS_SECRET_ACCESS_KEY environment variable.")
		}
	default:
		errs = append(errs, fmt.Sprintf("Unsupported email service %q. Use smtp, gmail or ses.", m.Service))
	}

	if m.DefaultSender != "" && validate.Var(m.DefaultSender, "email") != nil {
		errs = append(errs, "Sender must be a valid email address. Check --sender or SENDER_EMAIL_ADDRESS.")
	}
	for _, addr := range m.DefaultReplyTo {
		if validate.Var(addr, "email") != nil {
			errs = append(errs, fmt.Sprintf("Reply-to address %q is not a valid email address. Check --reply-to or REPLY_TO_EMAIL_ADDRESSES.", addr))
		}
	}

	if m.Pool.Enabled {
		if m.Pool.MaxConnections < 1 {
			errs = append(errs, "SMTP_MAX_CONNECTIONS must be at least 1")
		}
		if m.Pool.MaxMessages < 1 {
			errs = append(errs, "SMTP_MAX_MESSAGES must be at least 1")
		}
	}

	return errs
}

func redactKeySpec(spec string) string {
	id, _, _ := strings.Cut(spec, ":")
	return id + ":***"
}
