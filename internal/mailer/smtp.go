package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/config"
	"smart-mail-router/internal/model"
	"smart-mail-router/internal/provider"
)

// ErrStartTLSUnsupported means a provider configured for STARTTLS does not
// advertise it
var ErrStartTLSUnsupported = errors.New("server does not support STARTTLS")

// Transport submits composed messages to a provider
type Transport interface {
	Deliver(ctx context.Context, conn provider.Connection, env *Envelope) error
}

// SMTPTransport delivers over SMTP with PLAIN authentication
type SMTPTransport struct {
	hostname       string
	connectTimeout time.Duration
	commandTimeout time.Duration
	maxAttempts    int
	tlsConfig      *tls.Config

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSMTPTransport creates a transport from relay configuration
func NewSMTPTransport(cfg *config.RelayConfig) *SMTPTransport {
	hostname := cfg.HeloHostname
	if hostname == "" {
		hostname = "localhost"
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &SMTPTransport{
		hostname:       hostname,
		connectTimeout: cfg.ConnectTimeout,
		commandTimeout: cfg.CommandTimeout,
		maxAttempts:    attempts,
		tlsConfig:      &tls.Config{MinVersion: tls.VersionTLS12},
		dial:           dialer.DialContext,
	}
}

// Deliver submits env, retrying temporary failures with a quadratic backoff
func (t *SMTPTransport) Deliver(ctx context.Context, conn provider.Connection, env *Envelope) error {
	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		lastErr = t.attempt(ctx, conn, env)
		if lastErr == nil {
			return nil
		}

		logrus.Warnf("Delivery via %s failed (attempt %d/%d): %v", conn.Name, attempt, t.maxAttempts, lastErr)
		if !IsTemporary(lastErr) || attempt == t.maxAttempts {
			break
		}

		wait := time.Duration(attempt*attempt) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to deliver via %s: %w", conn.Name, lastErr)
}

func (t *SMTPTransport) attempt(ctx context.Context, conn provider.Connection, env *Envelope) error {
	cl, err := t.connect(ctx, conn)
	if err != nil {
		return err
	}
	defer cl.Close()

	if conn.AuthRequired() {
		if err := cl.Auth(sasl.NewPlainClient("", conn.Username, conn.Password)); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := cl.Mail(env.From, &smtp.MailOptions{}); err != nil {
		return err
	}
	for _, rcpt := range env.Recipients {
		if err := cl.Rcpt(rcpt); err != nil {
			return fmt.Errorf("recipient %s rejected: %w", rcpt, err)
		}
	}

	wc, err := cl.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(env.Data); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}

	return cl.Quit()
}

func (t *SMTPTransport) connect(ctx context.Context, conn provider.Connection) (*smtp.Client, error) {
	netConn, err := t.dial(ctx, "tcp", conn.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", conn.Address(), err)
	}

	if conn.Encryption == model.EncryptionSSL {
		cfg := t.tlsConfig.Clone()
		cfg.ServerName = conn.Host
		netConn = tls.Client(netConn, cfg)
	}

	cl, err := smtp.NewClient(netConn, conn.Host)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	if t.commandTimeout > 0 {
		cl.CommandTimeout = t.commandTimeout
		cl.SubmissionTimeout = t.commandTimeout
	}

	if err := cl.Hello(t.hostname); err != nil {
		cl.Close()
		return nil, err
	}

	if conn.Encryption == model.EncryptionTLS {
		if ok, _ := cl.Extension("STARTTLS"); !ok {
			cl.Close()
			return nil, ErrStartTLSUnsupported
		}
		cfg := t.tlsConfig.Clone()
		cfg.ServerName = conn.Host
		if err := cl.StartTLS(cfg); err != nil {
			cl.Close()
			return nil, err
		}
	}

	return cl, nil
}

// IsTemporary reports whether a delivery error is worth retrying
func IsTemporary(err error) bool {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code/100 == 4
	}
	if errors.Is(err, ErrStartTLSUnsupported) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
