// Package pipeline intercepts outgoing email, decides how it is routed and
// records one report per message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/metrics"
	"smart-mail-router/internal/model"
	"smart-mail-router/internal/provider"
	"smart-mail-router/internal/routing"
	"smart-mail-router/internal/spam"
)

// State is a step of the interception state machine
type State string

const (
	StateReceived           State = "received"
	StateExtracted          State = "extracted"
	StateRuleResolved       State = "rule_resolved"
	StateSpamChecked        State = "spam_checked"
	StateBlocked            State = "blocked"
	StateProviderConfigured State = "provider_configured"
	StateLogged             State = "logged"
	StatePassThrough        State = "pass_through"
)

// RuleSource reads the enabled routing rules
type RuleSource interface {
	EnabledRules(ctx context.Context) ([]model.RoutingRule, error)
}

// ConfigSource provides settings and providers, usually through the cache
type ConfigSource interface {
	Settings(ctx context.Context) *model.Settings
	Provider(ctx context.Context, name string) (*model.Provider, error)
}

// Scorer runs the external spam check
type Scorer interface {
	Decide(ctx context.Context, message, apiKey, endpoint string) spam.Decision
}

// ReportSink persists reports
type ReportSink interface {
	CreateReport(ctx context.Context, report *model.Report) error
}

// Result is the outcome of intercepting one email
type Result struct {
	TraceID string
	State   State

	// Payload is the email to send. It is the original payload, unmodified,
	// when PassThrough is set.
	Payload model.MailPayload

	// Blocked means the email must not be delivered but the caller should
	// report success.
	Blocked bool

	// PassThrough means the router made no decision and the caller should
	// deliver the original payload through its own transport.
	PassThrough bool
	Err         error

	Rule        *model.RoutingRule
	Connection  *provider.Connection
	Spam        spam.Decision
	SenderEmail string
	SenderName  string
	ReportID    uint
	Trace       []string
}

// Interceptor runs the interception pipeline
type Interceptor struct {
	rules   RuleSource
	config  ConfigSource
	scorer  Scorer
	reports ReportSink
	box     provider.Decrypter
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewInterceptor creates an interceptor
func NewInterceptor(rules RuleSource, config ConfigSource, scorer Scorer, reports ReportSink, box provider.Decrypter, m *metrics.Metrics) *Interceptor {
	return &Interceptor{
		rules:   rules,
		config:  config,
		scorer:  scorer,
		reports: reports,
		box:     box,
		metrics: m,
		now:     time.Now,
	}
}

// Intercept decides what happens to an outgoing email. It never fails: any
// error or panic yields a pass-through result carrying the original payload.
func (i *Interceptor) Intercept(ctx context.Context, payload model.MailPayload) (result Result) {
	start := i.now()
	original := payload.Clone()
	traceID := uuid.NewString()
	i.metrics.Intercepted.Inc()

	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("trace_id", traceID).Errorf("Mail interception panicked, passing email through: %v", r)
			result = passThrough(traceID, original, fmt.Errorf("interception panicked: %v", r))
		}
		i.metrics.Outcomes.WithLabelValues(outcomeLabel(result)).Inc()
		i.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	}()

	env, err := Extract(payload)
	if err != nil {
		logrus.WithField("trace_id", traceID).Warnf("Skipping interception: %v", err)
		return passThrough(traceID, original, err)
	}

	run := &run{
		Interceptor: i,
		ctx:         ctx,
		env:         env,
		result: Result{
			TraceID:     traceID,
			State:       StateExtracted,
			SenderEmail: env.SenderEmail,
			SenderName:  env.SenderName,
		},
	}
	return run.execute(original)
}

// run carries the state of one interception
type run struct {
	*Interceptor
	ctx      context.Context
	env      *Envelope
	settings *model.Settings
	result   Result
}

func (r *run) trace(format string, args ...interface{}) {
	r.result.Trace = append(r.result.Trace, fmt.Sprintf(format, args...))
}

func (r *run) execute(original model.MailPayload) Result {
	r.settings = r.config.Settings(r.ctx)

	r.resolveRule()
	r.checkSpam()

	status := model.ReportSent
	recipients := r.env.Recipients
	payload := original.Clone()

	if r.result.Spam.IsSpam {
		r.result.State = StateBlocked
		r.result.Blocked = true
		status = model.ReportBlocked
		r.trace("Outcome: blocked as spam, not delivered")
	} else if conn, err := r.configureProvider(); err != nil {
		r.result.State = StatePassThrough
		r.result.PassThrough = true
		r.result.Err = err
		status = model.ReportError
		r.trace("Provider error: %v", err)
		r.trace("Outcome: passed through unmodified")
		logrus.WithField("trace_id", r.result.TraceID).Errorf("Provider configuration error: %v", err)
	} else {
		r.result.State = StateProviderConfigured
		r.result.Connection = &conn
		r.trace("Provider: %s", conn.String())

		if override := r.overrideRecipients(); len(override) > 0 {
			recipients = override
			payload.To = override
			r.trace("Recipients replaced by rule: %s", strings.Join(override, ", "))
		} else {
			payload.To = recipients
		}
		if r.result.SenderEmail == "" && conn.Sender != "" {
			r.result.SenderEmail = conn.Sender
		}
		r.trace("Outcome: handed to provider %s", conn.Name)
	}
	r.result.Payload = payload

	r.writeReport(status, recipients)

	logrus.WithFields(logrus.Fields{
		"trace_id": r.result.TraceID,
		"rule":     ruleName(r.result.Rule),
		"provider": providerName(r.result.Connection),
		"status":   status,
		"spam":     r.result.Spam.IsSpam,
	}).Info("Email intercepted")

	if r.result.PassThrough {
		r.result.State = StatePassThrough
		r.result.Payload = original
	}
	return r.result
}

func (r *run) resolveRule() {
	rules, err := r.rules.EnabledRules(r.ctx)
	if err != nil {
		logrus.WithField("trace_id", r.result.TraceID).Errorf("Failed to load routing rules, using global settings: %v", err)
		r.trace("Rules unavailable (%v), using global settings", err)
	} else if rule := routing.Resolve(rules, r.env.PrimaryRecipient(), r.env.Subject); rule != nil {
		r.result.Rule = rule
		if rule.IsDefault() {
			r.metrics.RuleMatches.WithLabelValues("default").Inc()
			r.trace("Rule: %s (id %d, default rule)", rule.Name, rule.ID)
		} else {
			r.metrics.RuleMatches.WithLabelValues("custom").Inc()
			r.trace("Rule: %s (id %d, priority %d)", rule.Name, rule.ID, rule.Priority)
		}
	} else {
		r.metrics.RuleMatches.WithLabelValues("none").Inc()
		r.trace("Rule: none matched, using global settings")
	}
	r.result.State = StateRuleResolved
}

func (r *run) checkSpam() {
	defer func() { r.result.State = StateSpamChecked }()

	if !spam.ShouldCheck(r.env.Subject, r.settings, r.result.Rule) {
		r.trace("Spam check: not required")
		return
	}

	r.metrics.SpamChecks.Inc()
	apiKey, err := r.box.Decrypt(r.settings.AntiSpamAPIKey)
	if err != nil {
		r.metrics.SpamCheckFailures.Inc()
		r.result.Spam = spam.Decision{Checked: true, Failed: true, Reason: fmt.Sprintf("spam check failed: cannot decrypt API key: %v", err)}
		r.trace("Spam check: %s", r.result.Spam.Reason)
		return
	}

	decision := r.scorer.Decide(r.ctx, r.env.Message, apiKey, r.settings.AntiSpamEndPoint)
	r.result.Spam = decision
	if decision.Failed {
		r.metrics.SpamCheckFailures.Inc()
		r.trace("Spam check: %s", decision.Reason)
		return
	}
	r.trace("Spam check: score %.2f, spam=%t (%s)", decision.Score, decision.IsSpam, decision.Reason)
}

func (r *run) configureProvider() (provider.Connection, error) {
	p, err := provider.Select(r.ctx, r.result.Rule, r.settings, r.config)
	if err != nil {
		return provider.Connection{}, err
	}
	return provider.Connect(p, r.box)
}

func (r *run) overrideRecipients() []string {
	if r.result.Rule == nil {
		return nil
	}
	return NormalizeRecipients(r.result.Rule.RecipientOverride())
}

func (r *run) writeReport(status model.ReportStatus, recipients []string) {
	if r.settings.LogsRetentionDays <= 0 {
		r.result.State = StateLogged
		return
	}

	report := &model.Report{
		Date:            r.now(),
		TraceID:         r.result.TraceID,
		Subject:         r.env.Subject,
		Sender:          r.result.SenderEmail,
		Recipients:      strings.Join(recipients, ", "),
		Message:         model.TruncateMessage(r.env.Message),
		Status:          status,
		Log:             strings.Join(r.result.Trace, "\n"),
		AntiSpamEnabled: r.result.Spam.Checked,
		IsSpam:          r.result.Spam.IsSpam,
	}
	if r.result.Rule != nil {
		id := r.result.Rule.ID
		report.RoutingRuleID = &id
	}
	if r.result.Connection != nil {
		report.ProviderName = r.result.Connection.Name
	} else {
		report.ProviderName = provider.Name(r.result.Rule, r.settings)
	}

	if err := r.reports.CreateReport(r.ctx, report); err != nil {
		logrus.WithField("trace_id", r.result.TraceID).Errorf("Failed to write report: %v", err)
	} else {
		r.result.ReportID = report.ID
	}
	r.result.State = StateLogged
}

func passThrough(traceID string, original model.MailPayload, err error) Result {
	return Result{
		TraceID:     traceID,
		State:       StatePassThrough,
		Payload:     original,
		PassThrough: true,
		Err:         err,
	}
}

func outcomeLabel(r Result) string {
	var verr *ValidationError
	switch {
	case r.Blocked:
		return "blocked"
	case errors.As(r.Err, &verr):
		return "invalid"
	case r.PassThrough:
		return "pass_through"
	default:
		return "routed"
	}
}

func ruleName(rule *model.RoutingRule) string {
	if rule == nil {
		return ""
	}
	return rule.Name
}

func providerName(conn *provider.Connection) string {
	if conn == nil {
		return ""
	}
	return conn.Name
}
