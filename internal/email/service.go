// Package email implements the caller-facing send operations on top of a
// transport, the quota tracker, stored templates and analytics.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/mailgate/internal/analytics"
	"github.com/aiox-platform/mailgate/internal/bulk"
	"github.com/aiox-platform/mailgate/internal/mail"
	"github.com/aiox-platform/mailgate/internal/metrics"
	"github.com/aiox-platform/mailgate/internal/quota"
	"github.com/aiox-platform/mailgate/internal/templates"
	"github.com/aiox-platform/mailgate/internal/transport"
)

const recordTimeout = 5 * time.Second

type attachmentLoader interface {
	Load(ctx context.Context, specs []mail.AttachmentSpec) ([]mail.Attachment, error)
}

// Deps are the collaborators of Service. Tracker and Recorder may be nil to
// disable quota enforcement and analytics.
type Deps struct {
	Transport   transport.Transport
	Tracker     *quota.Tracker
	Templates   bulk.TemplateSource
	Attachments attachmentLoader
	Dispatcher  *bulk.Dispatcher
	Recorder    analytics.Recorder
	Defaults    mail.Defaults
	BatchSize   int
}

type Service struct {
	transport   transport.Transport
	tracker     *quota.Tracker
	templates   bulk.TemplateSource
	attachments attachmentLoader
	dispatcher  *bulk.Dispatcher
	recorder    analytics.Recorder
	defaults    mail.Defaults
	batchSize   int
	validate    *mail.Validator
	now         func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		transport:   d.Transport,
		tracker:     d.Tracker,
		templates:   d.Templates,
		attachments: d.Attachments,
		dispatcher:  d.Dispatcher,
		recorder:    d.Recorder,
		defaults:    d.Defaults,
		batchSize:   d.BatchSize,
		validate:    mail.NewValidator(),
		now:         time.Now,
	}
	if s.batchSize < 1 {
		s.batchSize = bulk.DefaultBatchSize
	}
	if s.dispatcher == nil {
		s.dispatcher = bulk.NewDispatcher(d.Templates)
	}
	s.registerRules()
	return s
}

// TransportInfo describes the active transport.
func (s *Service) TransportInfo() string {
	return s.transport.Info()
}

// Send delivers a single message with static content.
func (s *Service) Send(ctx context.Context, id quota.Identity, req SendRequest) (*SendResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, id, 1); err != nil {
		return nil, err
	}
	atts, err := s.loadAttachments(ctx, req.Attachments, false)
	if err != nil {
		return nil, err
	}

	msg := &mail.Message{
		From:        req.From,
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		Priority:    req.Priority,
		Attachments: atts,
	}
	res, err := s.deliver(ctx, id, msg, KindSingle, "")
	if err != nil {
		return nil, err
	}
	res.Attachments = len(atts)
	res.ScheduledAt = req.ScheduledAt
	return res, nil
}

// SendTemplate renders a stored template, or uses static content when no
// template is named. Premium tier only.
func (s *Service) SendTemplate(ctx context.Context, id quota.Identity, req TemplateSendRequest) (*SendResult, error) {
	if id.Tier != PremiumTier {
		return nil, ErrPremiumRequired
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, id, 1); err != nil {
		return nil, err
	}

	msg := &mail.Message{
		From:    req.From,
		To:      req.To,
		CC:      req.CC,
		BCC:     req.BCC,
		ReplyTo: req.ReplyTo,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
	}
	if req.TemplateID != "" {
		if s.templates == nil {
			return nil, bulk.ErrNoTemplates
		}
		tpl, err := s.templates.Get(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		rendered, err := templates.Render(tpl.Content, req.TemplateData)
		if err != nil {
			return nil, fmt.Errorf("rendering template %q: %w", req.TemplateID, err)
		}
		msg.Subject, msg.HTML, msg.Text = rendered.Subject, rendered.HTML, rendered.Text
	} else if len(req.TemplateData) > 0 {
		msg.Subject = templates.Substitute(msg.Subject, req.TemplateData)
		msg.HTML = templates.Substitute(msg.HTML, req.TemplateData)
		msg.Text = templates.Substitute(msg.Text, req.TemplateData)
	}

	res, err := s.deliver(ctx, id, msg, KindTemplate, req.TemplateID)
	if err != nil {
		return nil, err
	}
	res.TemplateID = req.TemplateID
	return res, nil
}

// SendPremium adds priority, custom headers, attachments and tracking
// headers. Premium tier only.
func (s *Service) SendPremium(ctx context.Context, id quota.Identity, req PremiumRequest) (*SendResult, error) {
	if id.Tier != PremiumTier {
		return nil, ErrPremiumRequired
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, id, 1); err != nil {
		return nil, err
	}
	atts, err := s.loadAttachments(ctx, req.Attachments, true)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(req.Headers)+2)
	for k, v := range req.Headers {
		headers[k] = v
	}
	var tracking []string
	if req.TrackOpens {
		headers["X-Track-Opens"] = "true"
		tracking = append(tracking, "opens")
	}
	if req.TrackClicks {
		headers["X-Track-Clicks"] = "true"
		tracking = append(tracking, "clicks")
	}

	msg := &mail.Message{
		From:        req.From,
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		Headers:     headers,
		Priority:    req.Priority,
		Attachments: atts,
	}
	res, err := s.deliver(ctx, id, msg, KindPremium, "")
	if err != nil {
		return nil, err
	}
	res.Priority = req.Priority
	res.Attachments = len(atts)
	res.Tracking = tracking
	res.ScheduledAt = req.ScheduledAt
	return res, nil
}

// SendBulk sends one message per recipient through the batch dispatcher.
// The quota must cover every recipient up front; only successful sends are
// counted against it. Premium tier only.
func (s *Service) SendBulk(ctx context.Context, id quota.Identity, req BulkRequest) (*BulkResult, error) {
	if id.Tier != PremiumTier {
		return nil, ErrPremiumRequired
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, id, len(req.Recipients)); err != nil {
		return nil, err
	}

	content := bulk.Content{
		Subject:    req.Subject,
		HTML:       req.HTML,
		Text:       req.Text,
		TemplateID: req.TemplateID,
		Base:       mail.Message{From: req.From, ReplyTo: req.ReplyTo},
	}
	s.defaults.Apply(&content.Base)

	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = s.batchSize
	}

	send := func(ctx context.Context, msg *mail.Message) (string, error) {
		res, err := s.transport.Send(ctx, msg)
		if err != nil {
			return "", err
		}
		return res.MessageID, nil
	}

	outcomes, err := s.dispatcher.Dispatch(ctx, req.Recipients, content, batchSize, send)
	if err != nil {
		return nil, mail.NewValidationError(err.Error())
	}

	rctx, cancel := recordContext(ctx)
	defer cancel()

	result := &BulkResult{
		Total:      len(outcomes),
		Outcomes:   outcomes,
		Transport:  s.transport.Info(),
		TemplateID: req.TemplateID,
	}
	now := s.now()
	for _, o := range outcomes {
		if o.Success {
			result.Successful++
		} else {
			result.Failed++
		}
		s.record(rctx, analytics.Event{
			Identity:   id.ID,
			Kind:       KindBulk,
			Success:    o.Success,
			Transport:  s.transport.Name(),
			TemplateID: req.TemplateID,
			MessageID:  o.MessageID,
			Error:      o.Error,
			Timestamp:  now,
		})
	}
	s.recordQuota(rctx, id.ID, result.Successful)

	slog.Info("bulk send finished",
		"identity", id.ID,
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"template_id", req.TemplateID,
	)
	return result, nil
}

func (s *Service) deliver(ctx context.Context, id quota.Identity, msg *mail.Message, kind, templateID string) (*SendResult, error) {
	s.defaults.Apply(msg)
	msg.HTML = mail.SanitizeHTML(msg.HTML)

	res, err := s.transport.Send(ctx, msg)

	rctx, cancel := recordContext(ctx)
	defer cancel()

	ev := analytics.Event{
		Identity:   id.ID,
		Kind:       kind,
		Success:    err == nil,
		Transport:  s.transport.Name(),
		TemplateID: templateID,
		Timestamp:  s.now(),
	}
	if err != nil {
		ev.Error = err.Error()
		s.record(rctx, ev)
		slog.Warn("send failed", "identity", id.ID, "kind", kind, "to", mail.RedactAddresses(msg.To), "error", err)
		return nil, &SendError{Err: err}
	}
	ev.MessageID = res.MessageID
	s.record(rctx, ev)
	s.recordQuota(rctx, id.ID, 1)

	slog.Info("email sent",
		"identity", id.ID,
		"kind", kind,
		"message_id", res.MessageID,
		"to", mail.RedactAddresses(msg.To),
		"transport", s.transport.Name(),
	)
	return &SendResult{
		MessageID: res.MessageID,
		Response:  res.Response,
		Transport: s.transport.Info(),
		SentAt:    s.now().UTC(),
	}, nil
}

func (s *Service) checkQuota(ctx context.Context, id quota.Identity, n int) error {
	if s.tracker == nil {
		return nil
	}
	d, err := s.tracker.CheckAllowedN(ctx, id, n)
	if err != nil {
		return fmt.Errorf("checking quota: %w", err)
	}
	if !d.Allowed {
		metrics.QuotaDecisionsTotal.WithLabelValues(string(d.Limit)).Inc()
		slog.Info("quota exceeded", "identity", id.ID, "limit", d.Limit, "requested", n)
		return &QuotaExceededError{Decision: d}
	}
	metrics.QuotaDecisionsTotal.WithLabelValues("allowed").Inc()
	return nil
}

// recordContext detaches bookkeeping from the caller. Once mail has left,
// usage is charged even if the request was abandoned.
func recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

// recordQuota counts confirmed sends. The mail is already out, so a storage
// failure is logged rather than returned.
func (s *Service) recordQuota(ctx context.Context, identityID string, n int) {
	if s.tracker == nil || n == 0 {
		return
	}
	if err := s.tracker.RecordSentN(ctx, identityID, n); err != nil {
		metrics.QuotaRecordErrorsTotal.Inc()
		slog.Error("recording quota usage", "identity", identityID, "count", n, "error", err)
	}
}

func (s *Service) record(ctx context.Context, ev analytics.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, ev); err != nil {
		slog.Warn("recording analytics", "kind", ev.Kind, "error", err)
	}
}

// loadAttachments resolves specs. Premium attachments carry base64 content
// unless an encoding says otherwise.
func (s *Service) loadAttachments(ctx context.Context, specs []mail.AttachmentSpec, premium bool) ([]mail.Attachment, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if s.attachments == nil {
		return nil, mail.NewValidationError("attachments: not supported by this server")
	}
	if premium {
		specs = append([]mail.AttachmentSpec(nil), specs...)
		for i := range specs {
			if specs[i].Content == "" {
				continue
			}
			if specs[i].Encoding == "" {
				specs[i].Encoding = "base64"
			}
			if specs[i].ContentType == "" {
				specs[i].ContentType = "application/octet-stream"
			}
		}
	}
	return s.attachments.Load(ctx, specs)
}

func (s *Service) registerRules() {
	hasSender := s.defaults.Sender != ""

	checkEnvelope := func(sl validator.StructLevel, from, text, html string) {
		if !hasSender && from == "" {
			sl.ReportError(from, "from", "From", mail.TagFromRequired, "")
		}
		if text == "" && html == "" {
			sl.ReportError(text, "text", "Text", mail.TagTextOrHTML, "")
		}
	}

	s.validate.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(SendRequest)
		checkEnvelope(sl, r.From, r.Text, r.HTML)
	}, SendRequest{})

	s.validate.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(PremiumRequest)
		checkEnvelope(sl, r.From, r.Text, r.HTML)
		names := make([]string, 0, len(r.Headers))
		for name := range r.Headers {
			if mail.IsReservedHeader(name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			sl.ReportError(r.Headers[name], "headers", "Headers", mail.TagReservedHeader, name)
		}
	}, PremiumRequest{})

	s.validate.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(TemplateSendRequest)
		if !hasSender && r.From == "" {
			sl.ReportError(r.From, "from", "From", mail.TagFromRequired, "")
		}
		if !hasContentSource(r.TemplateID, r.Subject, r.Text, r.HTML) {
			sl.ReportError(r.TemplateID, "template_id", "TemplateID", mail.TagContentSource, "")
		}
	}, TemplateSendRequest{})

	s.validate.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(BulkRequest)
		if !hasSender && r.From == "" {
			sl.ReportError(r.From, "from", "From", mail.TagFromRequired, "")
		}
		if !hasContentSource(r.TemplateID, r.Subject, r.Text, r.HTML) {
			sl.ReportError(r.TemplateID, "template_id", "TemplateID", mail.TagContentSource, "")
		}
	}, BulkRequest{})
}

func hasContentSource(templateID, subject, text, html string) bool {
	if strings.TrimSpace(templateID) != "" {
		return true
	}
	return strings.TrimSpace(subject) != "" && (text != "" || html != "")
}
