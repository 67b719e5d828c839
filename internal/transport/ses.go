package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/aiox-platform/mailgate/internal/config"
	"github.com/aiox-platform/mailgate/internal/mail"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SES sends raw MIME messages through the SES v2 API so cc, bcc, custom
// headers and attachments survive unchanged.
type SES struct {
	client sesAPI
	region string
}

func NewSES(ctx context.Context, cfg config.SESConfig) (*SES, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("AWS access key ID and secret access key are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SES{client: sesv2.NewFromConfig(awsCfg), region: region}, nil
}

func (t *SES) Name() string { return config.ServiceSES }

func (t *SES) Info() string { return fmt.Sprintf("AWS SES (%s)", t.region) }

func (t *SES) Send(ctx context.Context, msg *mail.Message) (*Result, error) {
	id := msg.MessageID
	if id == "" {
		id = NewMessageID(msg.SenderDomain())
	}

	var raw bytes.Buffer
	if _, err := buildMIME(msg, id).WriteTo(&raw); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.CC,
			BccAddresses: msg.BCC,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw.Bytes()},
		},
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send: %w", err)
	}

	messageID := id
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	slog.Debug("ses message accepted", "message_id", messageID, "to", mail.RedactAddresses(msg.To))
	return &Result{MessageID: messageID}, nil
}

// Verify checks that the credentials work and the account may send.
func (t *SES) Verify(ctx context.Context) error {
	out, err := t.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("ses verify: %w", err)
	}
	if !out.SendingEnabled {
		return errors.New("ses verify: sending is disabled for this account")
	}
	if !out.ProductionAccessEnabled {
		slog.Warn("SES account is in the sandbox, only verified recipients will receive mail", "region", t.region)
	}
	return nil
}

func (t *SES) Close() error { return nil }
