package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/mailgate/internal/config"
)

// Commands declare how much configuration they need through this annotation.
const (
	annotConfig = "config"
	configNone  = "none"
	configLoad  = "load"
)

type runtimeState struct {
	cfg *config.Config
}

type runtimeKey struct{}

// configError marks problems the user fixes with flags or environment
// variables; main prints usage after them.
type configError struct {
	err   error
	usage string
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func newRootCommand() *cobra.Command {
	rt := &runtimeState{}

	root := &cobra.Command{
		Use:   "mailgate",
		Short: "Email sending service with quotas, templates and analytics",
		Long: `mailgate sends email through SMTP, Gmail or AWS SES.

Transport selection:
  --service gmail   Gmail with an app password (--user, --pass)
  --service ses     AWS SES (--region, --access-key-id, --secret-access-key)
  otherwise         SMTP (--host, --port, --secure, --user, --pass); a
                    well-known service name such as "outlook" fills in
                    host, port and TLS.

Every flag has an environment variable counterpart, e.g. SMTP_HOST,
GMAIL_USER, AWS_REGION, SENDER_EMAIL_ADDRESS. A .env file is read when
present; --config points at another one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			mode := cmd.Annotations[annotConfig]
			if mode == configNone {
				return nil
			}

			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return &configError{err: err, usage: cmd.UsageString()}
			}
			setupLogger(cfg.Log)

			if mode != configLoad {
				if err := cfg.Validate(); err != nil {
					return &configError{err: err, usage: cmd.UsageString()}
				}
			}
			rt.cfg = cfg
			return nil
		},
	}

	fs := root.PersistentFlags()
	fs.String("config", "", "Path to a .env file (default .env)")
	fs.String("service", "", "Email service: smtp, gmail, ses or a well-known SMTP service name")
	fs.String("host", "", "SMTP host")
	fs.Int("port", 0, "SMTP port (default 587)")
	fs.Bool("secure", false, "Use implicit TLS for SMTP")
	fs.String("user", "", "SMTP or Gmail user")
	fs.String("pass", "", "SMTP password or Gmail app password")
	fs.String("region", "", "AWS region for SES (default us-east-1)")
	fs.String("access-key-id", "", "AWS access key ID")
	fs.String("secret-access-key", "", "AWS secret access key")
	fs.String("sender", "", "Default sender address")
	fs.StringSlice("reply-to", nil, "Default reply-to address (repeatable)")
	fs.Bool("debug", false, "Enable debug logging")
	fs.Bool("pool", false, "Reuse SMTP connections")
	fs.Int("max-connections", 0, "Pooled SMTP connections (default 5)")
	fs.Int("max-messages", 0, "Messages per pooled connection (default 100)")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		newServeCommand(),
		newVerifyCommand(),
		newSendCommand(),
		newQuotaCommand(),
		newKeysCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil || rt.cfg == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
