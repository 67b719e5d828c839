package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/mailgate/internal/attachment"
	"github.com/aiox-platform/mailgate/internal/auth"
	"github.com/aiox-platform/mailgate/internal/email"
	"github.com/aiox-platform/mailgate/internal/mail"
	"github.com/aiox-platform/mailgate/internal/quota"
	"github.com/aiox-platform/mailgate/internal/transport"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Connect to the configured transport and check the credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg := rt.cfg

			tr, err := transport.New(cmd.Context(), cfg.Mail)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Mail.VerifyTimeout)
			defer cancel()
			if err := tr.Verify(ctx); err != nil {
				return fmt.Errorf("verifying %s: %w", tr.Info(), err)
			}

			printf(cmd, "Transport: %s\n", tr.Info())
			if cfg.Mail.DefaultSender != "" {
				printf(cmd, "Default sender: %s\n", cfg.Mail.DefaultSender)
			}
			if len(cfg.Mail.DefaultReplyTo) > 0 {
				printf(cmd, "Default reply-to: %v\n", cfg.Mail.DefaultReplyTo)
			}
			printf(cmd, "OK\n")
			return nil
		},
	}
}

func newSendCommand() *cobra.Command {
	var (
		req     email.SendRequest
		to      []string
		cc      []string
		bcc     []string
		attach  []string
		noCheck bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one email with the configured transport",
		Long:  "Send one email directly through the transport. Quotas and analytics are not involved.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg := rt.cfg

			tr, err := transport.New(cmd.Context(), cfg.Mail)
			if err != nil {
				return err
			}
			defer tr.Close()

			if !noCheck {
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Mail.VerifyTimeout)
				err := tr.Verify(ctx)
				cancel()
				if err != nil {
					return fmt.Errorf("verifying %s: %w", tr.Info(), err)
				}
			}

			// Local files are always allowed from the command line.
			attCfg := cfg.Attachments
			attCfg.AllowLocalPaths = true

			svc := email.NewService(email.Deps{
				Transport:   tr,
				Attachments: attachment.NewLoader(attCfg),
				Defaults:    mail.Defaults{Sender: cfg.Mail.DefaultSender, ReplyTo: cfg.Mail.DefaultReplyTo},
			})

			req.To, req.CC, req.BCC = to, cc, bcc
			for _, p := range attach {
				req.Attachments = append(req.Attachments, mail.AttachmentSpec{Path: p})
			}

			res, err := svc.Send(cmd.Context(), quota.Identity{ID: "cli"}, req)
			if err != nil {
				return err
			}
			printf(cmd, "Sent %s via %s\n", res.MessageID, res.Transport)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&to, "to", nil, "Recipient (repeatable or comma separated)")
	f.StringSliceVar(&cc, "cc", nil, "CC recipient")
	f.StringSliceVar(&bcc, "bcc", nil, "BCC recipient")
	f.StringVar(&req.From, "from", "", "Sender, defaults to --sender")
	f.StringVar(&req.Subject, "subject", "", "Subject")
	f.StringVar(&req.Text, "text", "", "Plain text body")
	f.StringVar(&req.HTML, "html", "", "HTML body")
	f.StringVar((*string)(&req.Priority), "priority", "", "high, normal or low")
	f.StringSliceVar(&attach, "attach", nil, "File to attach (repeatable)")
	f.BoolVar(&noCheck, "no-verify", false, "Skip the transport check before sending")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func newQuotaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or reset per-identity send quotas",
	}

	var tier string
	show := &cobra.Command{
		Use:         "show <identity>",
		Short:       "Print remaining quota for an identity",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotConfig: configLoad},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd, func(tr *quota.Tracker) error {
				rem, err := tr.Remaining(cmd.Context(), quota.Identity{ID: args[0], Tier: tier})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rem)
			})
		},
	}
	show.Flags().StringVar(&tier, "tier", "", "Tier to evaluate against (default tier when empty)")

	reset := &cobra.Command{
		Use:         "reset <identity>",
		Short:       "Zero the daily and monthly counters for an identity",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotConfig: configLoad},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd, func(tr *quota.Tracker) error {
				if err := tr.ResetUsage(cmd.Context(), args[0]); err != nil {
					return err
				}
				printf(cmd, "Usage reset for %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}

func withTracker(cmd *cobra.Command, fn func(*quota.Tracker) error) error {
	rt, err := getRuntime(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cmd.Context(), rt.cfg)
	if err != nil {
		return err
	}
	defer st.close()

	tr, err := newTracker(st.kv, rt.cfg.Quota)
	if err != nil {
		return err
	}
	return fn(tr)
}

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "API key helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "hash <secret>",
		Short:       "Print a bcrypt hash usable as the secret part of AUTH_API_KEYS",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotConfig: configNone},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) < 16 {
				return errors.New("secret must be at least 16 characters")
			}
			hash, err := auth.HashSecret(args[0])
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", hash)
			return nil
		},
	})
	return cmd
}
