package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Transport types selectable through EMAIL_SERVICE or --service.
const (
	ServiceSMTP  = "smtp"
	ServiceGmail = "gmail"
	ServiceSES   = "ses"
)

// Store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	DB          DBConfig
	Redis       RedisConfig
	NATS        NATSConfig
	Mail        MailConfig
	Attachments AttachmentConfig
	Quota       QuotaConfig
	Bulk        BulkConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StoreConfig struct {
	Backend        string
	MigrationsPath string
	PurgeInterval  time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig enables the send-event pipeline when URL is set.
type NATSConfig struct {
	URL string
}

func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

// MailConfig describes the outbound transport and message defaults.
type MailConfig struct {
	Service        string
	SMTP           SMTPConfig
	Gmail          GmailConfig
	SES            SESConfig
	DefaultSender  string
	DefaultReplyTo []string
	Debug          bool
	Pool           PoolConfig
	VerifyTimeout  time.Duration
}

type SMTPConfig struct {
	Host    string
	Port    int
	Secure  bool
	User    string
	Pass    string
	Service string
}

type GmailConfig struct {
	User string
	Pass string
}

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type PoolConfig struct {
	Enabled        bool
	MaxConnections int
	MaxMessages    int
}

type AttachmentConfig struct {
	AllowLocalPaths bool
	MaxBytes        int64
	FetchTimeout    time.Duration
	S3Region        string
}

type QuotaConfig struct {
	Enabled     bool
	Timezone    string
	DefaultTier string
	Tiers       map[string]TierLimits
}

type TierLimits struct {
	Daily   int
	Monthly int
}

type BulkConfig struct {
	BatchSize int
	Pause     time.Duration
}

type AuthConfig struct {
	APIKeys []string
	Admins  []string
}

type RateLimitConfig struct {
	Requests  int
	WindowSec int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// flagKeys maps CLI flag names to koanf keys. Flags live under "cli." so
// they can be resolved against their env counterparts per transport.
var flagKeys = map[string]string{
	"service":           "cli.service",
	"host":              "cli.host",
	"port":              "cli.port",
	"secure":            "cli.secure",
	"user":              "cli.user",
	"pass":              "cli.pass",
	"region":            "cli.region",
	"access-key-id":     "cli.access.key.id",
	"secret-access-key": "cli.secret.access.key",
	"sender":            "cli.sender",
	"reply-to":          "cli.reply.to",
	"debug":             "cli.debug",
	"pool":              "cli.pool",
	"max-connections":   "cli.max.connections",
	"max-messages":      "cli.max.messages",
}

// Load reads configuration from an optional .env file, the environment and,
// when flags is non-nil, every flag the user explicitly set. Flags win.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	envFile := ".env"
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			envFile = f.Value.String()
		}
	}

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(envFile), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if flags != nil {
		if err := loadFlags(k, flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(k.String("store.backend")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Mail: loadMail(k),
		Attachments: AttachmentConfig{
			AllowLocalPaths: k.Bool("attachments.allow.local.paths"),
			MaxBytes:        k.Int64("attachments.max.bytes"),
			S3Region:        firstString(k.String("attachments.s3.region"), k.String("aws.region")),
		},
		Quota: QuotaConfig{
			Enabled:     boolOr(k, "quota.enabled", true),
			Timezone:    k.String("quota.timezone"),
			DefaultTier: k.String("quota.default.tier"),
			Tiers: map[string]TierLimits{
				"free": {
					Daily:   intOr(k, "quota.free.daily", 100),
					Monthly: intOr(k, "quota.free.monthly", 1000),
				},
				"premium": {
					Daily:   intOr(k, "quota.premium.daily", 1000),
					Monthly: intOr(k, "quota.premium.monthly", 25000),
				},
			},
		},
		Bulk: BulkConfig{
			BatchSize: k.Int("bulk.batch.size"),
		},
		Auth: AuthConfig{
			APIKeys: splitList(k.String("auth.api.keys")),
			Admins:  splitList(k.String("auth.admins")),
		},
		RateLimit: RateLimitConfig{
			Requests:  k.Int("ratelimit.requests"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendRedis
	}
	if cfg.Store.MigrationsPath == "" {
		cfg.Store.MigrationsPath = "migrations"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "mailgate"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "mailgate"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Attachments.MaxBytes == 0 {
		cfg.Attachments.MaxBytes = 10 << 20
	}
	if cfg.Quota.Timezone == "" {
		cfg.Quota.Timezone = "UTC"
	}
	if cfg.Quota.DefaultTier == "" {
		cfg.Quota.DefaultTier = "free"
	}
	if cfg.Bulk.BatchSize == 0 {
		cfg.Bulk.BatchSize = 10
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 120
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Mail.Debug {
		cfg.Log.Level = "debug"
	}

	// Parse durations
	if cfg.Server.ReadTimeout, err = durationOr(k, "server.read.timeout", 15*time.Second); err != nil {
		return nil, err
	}
	// Bulk requests hold the connection across batch pauses.
	if cfg.Server.WriteTimeout, err = durationOr(k, "server.write.timeout", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Store.PurgeInterval, err = durationOr(k, "store.purge.interval", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Mail.VerifyTimeout, err = durationOr(k, "smtp.verify.timeout", 25*time.Second); err != nil {
		return nil, err
	}
	if cfg.Attachments.FetchTimeout, err = durationOr(k, "attachments.fetch.timeout", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Bulk.Pause, err = durationOr(k, "bulk.pause", time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadMail resolves the transport the same way the CLI documents it:
// --service gmail and --service ses pick those transports, any other value
// is a well-known SMTP service name.
func loadMail(k *koanf.Koanf) MailConfig {
	service := strings.ToLower(firstString(k.String("cli.service"), k.String("email.service")))

	mc := MailConfig{
		DefaultSender: firstString(
			k.String("cli.sender"),
			k.String("sender.email.address"),
			k.String("default.sender.email"),
		),
		Debug: k.Bool("cli.debug") || k.Bool("debug"),
		Pool: PoolConfig{
			Enabled:        k.Bool("cli.pool") || k.Bool("smtp.pool"),
			MaxConnections: firstInt(k.Int("cli.max.connections"), k.Int("smtp.max.connections"), 5),
			MaxMessages:    firstInt(k.Int("cli.max.messages"), k.Int("smtp.max.messages"), 100),
		},
	}

	mc.DefaultReplyTo = k.Strings("cli.reply.to")
	if len(mc.DefaultReplyTo) == 0 {
		mc.DefaultReplyTo = splitList(firstString(
			k.String("reply.to.email.addresses"),
			k.String("default.reply.to.emails"),
		))
	}

	switch service {
	case ServiceGmail:
		mc.Service = ServiceGmail
		mc.Gmail = GmailConfig{
			User: firstString(k.String("cli.user"), k.String("gmail.user")),
			Pass: firstString(k.String("cli.pass"), k.String("gmail.pass"), k.String("gmail.app.password")),
		}
	case ServiceSES:
		mc.Service = ServiceSES
		mc.SES = SESConfig{
			Region:          firstString(k.String("cli.region"), k.String("aws.region"), "us-east-1"),
			AccessKeyID:     firstString(k.String("cli.access.key.id"), k.String("aws.access.key.id")),
			SecretAccessKey: firstString(k.String("cli.secret.access.key"), k.String("aws.secret.access.key")),
		}
	default:
		mc.Service = ServiceSMTP
		smtpService := k.String("smtp.service")
		if service != "" && service != ServiceSMTP {
			smtpService = service
		}
		mc.SMTP = SMTPConfig{
			Host:    firstString(k.String("cli.host"), k.String("smtp.host")),
			Port:    firstInt(k.Int("cli.port"), k.Int("smtp.port"), 587),
			Secure:  k.Bool("cli.secure") || k.Bool("smtp.secure"),
			User:    firstString(k.String("cli.user"), k.String("smtp.user")),
			Pass:    firstString(k.String("cli.pass"), k.String("smtp.pass"), k.String("smtp.password")),
			Service: strings.ToLower(smtpService),
		}
	}

	return mc
}

func loadFlags(k *koanf.Koanf, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		var val any
		switch f.Value.Type() {
		case "bool":
			val, err = strconv.ParseBool(f.Value.String())
		case "int":
			val, err = strconv.Atoi(f.Value.String())
		case "stringSlice", "stringArray":
			val, err = flags.GetStringSlice(f.Name)
		default:
			val = f.Value.String()
		}
		if err != nil {
			err = fmt.Errorf("parsing --%s: %w", f.Name, err)
			return
		}
		err = k.Set(key, val)
	})
	return err
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func intOr(k *koanf.Koanf, key string, def int) int {
	if k.Exists(key) {
		return k.Int(key)
	}
	return def
}

func boolOr(k *koanf.Koanf, key string, def bool) bool {
	if k.Exists(key) {
		return k.Bool(key)
	}
	return def
}

func durationOr(k *koanf.Koanf, key string, def time.Duration) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
