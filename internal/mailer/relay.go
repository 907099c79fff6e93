package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/config"
	"smart-mail-router/internal/metrics"
	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pipeline"
	"smart-mail-router/internal/provider"
)

// FallbackName names the configured last-resort transport in logs
const FallbackName = "fallback"

// Outcome describes what the relay did with an email
type Outcome string

const (
	// OutcomeDelivered means the routed provider accepted the email
	OutcomeDelivered Outcome = "delivered"
	// OutcomeBlocked means the email was suppressed as spam
	OutcomeBlocked Outcome = "blocked"
	// OutcomeFallback means the fallback transport accepted the email
	OutcomeFallback Outcome = "fallback"
	// OutcomePassThrough means the caller must send the email itself
	OutcomePassThrough Outcome = "pass_through"
)

// Interceptor decides how an email is routed
type Interceptor interface {
	Intercept(ctx context.Context, payload model.MailPayload) pipeline.Result
}

// StatusRecorder updates a report after delivery
type StatusRecorder interface {
	MarkReportFailed(ctx context.Context, id uint, reason string) error
	MarkReportFallback(ctx context.Context, id uint) error
}

// SendResult summarizes one relayed email
type SendResult struct {
	TraceID    string   `json:"trace_id"`
	Outcome    Outcome  `json:"outcome"`
	Provider   string   `json:"provider,omitempty"`
	ReportID   uint     `json:"report_id,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Trace      []string `json:"trace,omitempty"`
}

// Relay intercepts an email and delivers it to the chosen provider
type Relay struct {
	interceptor Interceptor
	transport   Transport
	reports     StatusRecorder
	fallback    *provider.Connection
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewRelay creates a relay. The fallback transport is used only when the
// relay configuration names one.
func NewRelay(interceptor Interceptor, transport Transport, reports StatusRecorder, cfg *config.RelayConfig, m *metrics.Metrics) *Relay {
	r := &Relay{
		interceptor: interceptor,
		transport:   transport,
		reports:     reports,
		metrics:     m,
		now:         time.Now,
	}
	if cfg != nil && cfg.HasFallback() {
		r.fallback = FallbackConnection(cfg)
	}
	return r
}

// FallbackConnection builds the fallback transport's connection
func FallbackConnection(cfg *config.RelayConfig) *provider.Connection {
	enc := model.Encryption(cfg.FallbackEncryption)
	if !enc.Valid() {
		enc = model.EncryptionNone
	}
	return &provider.Connection{
		Name:       FallbackName,
		Host:       cfg.FallbackHost,
		Port:       cfg.FallbackPort,
		Encryption: enc,
		Username:   cfg.FallbackUsername,
		Password:   cfg.FallbackPassword,
		Sender:     cfg.FallbackSender,
	}
}

// Send intercepts and delivers payload. Blocked emails succeed without
// being sent. An email the router passes through goes to the fallback
// transport, or back to the caller when none is configured.
func (r *Relay) Send(ctx context.Context, payload model.MailPayload) (*SendResult, error) {
	res := r.interceptor.Intercept(ctx, payload)
	out := &SendResult{
		TraceID:  res.TraceID,
		ReportID: res.ReportID,
		Trace:    res.Trace,
	}

	switch {
	case res.Blocked:
		out.Outcome = OutcomeBlocked
		return out, nil
	case res.PassThrough:
		return r.sendFallback(ctx, out, res)
	}

	conn := *res.Connection
	out.Provider = conn.Name
	out.Recipients = res.Payload.To

	from := Sender{Email: conn.Sender, Name: res.SenderName}
	if from.Email == "" {
		from.Email = res.SenderEmail
	}

	err := r.deliver(ctx, conn, res.Payload, from)
	if err == nil {
		out.Outcome = OutcomeDelivered
		return out, nil
	}

	logrus.WithField("trace_id", res.TraceID).Errorf("Delivery via provider %s failed: %v", conn.Name, err)
	if res.ReportID != 0 {
		if markErr := r.reports.MarkReportFailed(ctx, res.ReportID, err.Error()); markErr != nil {
			logrus.WithField("trace_id", res.TraceID).Errorf("Failed to mark report %d as failed: %v", res.ReportID, markErr)
		}
	}

	if r.fallback == nil {
		return out, err
	}
	if fbErr := r.deliverFallback(ctx, res.Payload, res); fbErr != nil {
		return out, errors.Join(err, fbErr)
	}
	out.Outcome = OutcomeFallback
	out.Provider = FallbackName
	out.Trace = append(out.Trace, "Delivery via "+conn.Name+" failed: "+err.Error(), "Delivered via fallback")
	if res.ReportID != 0 {
		if markErr := r.reports.MarkReportFallback(ctx, res.ReportID); markErr != nil {
			logrus.WithField("trace_id", res.TraceID).Errorf("Failed to mark report %d as delivered via fallback: %v", res.ReportID, markErr)
		}
	}
	return out, nil
}

// SendTest delivers a short test email through conn
func (r *Relay) SendTest(ctx context.Context, conn provider.Connection, to string) error {
	payload := model.MailPayload{
		To:      []string{to},
		Subject: "Smart Mail Router test email",
		Message: fmt.Sprintf("This is a test email sent through provider %s at %s.", conn.Name, r.now().Format(time.RFC1123Z)),
	}
	from := Sender{Email: conn.Sender, Name: "Smart Mail Router"}
	if from.Email == "" {
		from.Email = conn.Username
	}
	return r.deliver(ctx, conn, payload, from)
}

func (r *Relay) sendFallback(ctx context.Context, out *SendResult, res pipeline.Result) (*SendResult, error) {
	if r.fallback == nil {
		out.Outcome = OutcomePassThrough
		return out, nil
	}

	if err := r.deliverFallback(ctx, res.Payload, res); err != nil {
		return out, err
	}
	out.Outcome = OutcomeFallback
	out.Provider = FallbackName
	out.Recipients = res.Payload.To
	return out, nil
}

func (r *Relay) deliverFallback(ctx context.Context, payload model.MailPayload, res pipeline.Result) error {
	from := Sender{Email: res.SenderEmail, Name: res.SenderName}
	if from.Email == "" {
		if env, err := pipeline.Extract(payload); err == nil {
			from = Sender{Email: env.SenderEmail, Name: env.SenderName}
		}
	}
	if r.fallback.Sender != "" {
		from.Email = r.fallback.Sender
	}
	return r.deliver(ctx, *r.fallback, payload, from)
}

func (r *Relay) deliver(ctx context.Context, conn provider.Connection, payload model.MailPayload, from Sender) error {
	env, err := Compose(payload, from, r.now())
	if err != nil {
		r.metrics.DeliveryFailures.Inc()
		return fmt.Errorf("failed to compose email: %w", err)
	}

	if err := r.transport.Deliver(ctx, conn, env); err != nil {
		r.metrics.DeliveryFailures.Inc()
		return err
	}

	r.metrics.DeliverySuccesses.Inc()
	logrus.Infof("Delivered email to %d recipient(s) via %s", len(env.Recipients), conn.Name)
	return nil
}
