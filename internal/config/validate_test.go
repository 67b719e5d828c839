package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Store:  StoreConfig{Backend: BackendRedis},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "mailgate",
			Password: "secret", Name: "mailgate", SSLMode: "disable", MaxConns: 10,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Mail: MailConfig{
			Service:       ServiceSMTP,
			SMTP:          SMTPConfig{Host: "smtp.example.com", Port: 587, User: "u", Pass: "p"},
			DefaultSender: "noreply@example.com",
		},
		Attachments: AttachmentConfig{MaxBytes: 1 << 20},
		Quota: QuotaConfig{
			Enabled:     true,
			Timezone:    "UTC",
			DefaultTier: "free",
			Tiers: map[string]TierLimits{
				"free":    {Daily: 100, Monthly: 1000},
				"premium": {Daily: 1000, Monthly: 25000},
			},
		},
		Bulk: BulkConfig{BatchSize: 10, Pause: time.Second},
		Auth: AuthConfig{APIKeys: []string{"svc:secret:free"}},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_SMTPHostRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.SMTP.Host = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Use --host argument or SMTP_HOST") {
		t.Fatalf("expected SMTP host error, got: %v", err)
	}
}

func TestValidate_SMTPServiceReplacesHost(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.SMTP.Host = ""
	cfg.Mail.SMTP.Service = "outlook"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_GmailRequiresEmailUser(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.Service = ServiceGmail
	cfg.Mail.Gmail = GmailConfig{User: "not-an-email", Pass: "app-pass"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Gmail user must be a valid email") {
		t.Fatalf("expected gmail user error, got: %v", err)
	}
}

func TestValidate_GmailPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.Service = ServiceGmail
	cfg.Mail.Gmail = GmailConfig{User: "me@gmail.com"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "GMAIL_PASS") {
		t.Fatalf("expected GMAIL_PASS error, got: %v", err)
	}
}

func TestValidate_SESCredentialsRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.Service = ServiceSES
	cfg.Mail.SES = SESConfig{Region: "us-east-1"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing AWS credentials")
	}
	for _, want := range []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error, got: %v", want, err)
		}
	}
}

func TestValidate_UnsupportedService(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.Service = "pigeon"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Unsupported email service") {
		t.Fatalf("expected unsupported service error, got: %v", err)
	}
}

func TestValidate_InvalidSender(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.DefaultSender = "nope"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SENDER_EMAIL_ADDRESS") {
		t.Fatalf("expected sender error, got: %v", err)
	}
}

func TestValidate_InvalidReplyTo(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.DefaultReplyTo = []string{"ok@example.com", "broken"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `"broken"`) {
		t.Fatalf("expected reply-to error, got: %v", err)
	}
}

func TestValidate_PostgresRequiresPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = BackendPostgres
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_RedisBackendIgnoresDBPassword(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = "memcached"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "STORE_BACKEND") {
		t.Fatalf("expected STORE_BACKEND error, got: %v", err)
	}
}

func TestValidate_PortRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"server port zero", func(c *Config) { c.Server.Port = 0 }, "SERVER_PORT"},
		{"server port too high", func(c *Config) { c.Server.Port = 70000 }, "SERVER_PORT"},
		{"redis port zero", func(c *Config) { c.Redis.Port = 0 }, "REDIS_PORT"},
		{"smtp port zero", func(c *Config) { c.Mail.SMTP.Port = 0 }, "SMTP_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s error, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_QuotaSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad timezone", func(c *Config) { c.Quota.Timezone = "Mars/Olympus" }, "QUOTA_TIMEZONE"},
		{"unknown default tier", func(c *Config) { c.Quota.DefaultTier = "gold" }, "QUOTA_DEFAULT_TIER"},
		{"zero limit", func(c *Config) { c.Quota.Tiers["free"] = TierLimits{Daily: 0, Monthly: 10} }, "quota tier free"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %s error, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_BulkBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.Bulk.BatchSize = 101
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "BULK_BATCH_SIZE") {
		t.Fatalf("expected BULK_BATCH_SIZE error, got: %v", err)
	}
}

func TestValidate_MalformedAPIKeyIsRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.APIKeys = []string{"lonely"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "AUTH_API_KEYS") {
		t.Fatalf("expected AUTH_API_KEYS error, got: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.SMTP.Host = ""
	cfg.Server.Port = 0
	cfg.Bulk.BatchSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for multiple issues")
	}
	msg := err.Error()
	for _, want := range []string{"SMTP_HOST", "SERVER_PORT", "BULK_BATCH_SIZE"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %s, got: %s", want, msg)
		}
	}
}
