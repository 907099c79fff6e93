package pipeline

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"smart-mail-router/internal/model"
)

// ValidationError reports an outgoing email that cannot be routed
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("outgoing email has no %s", e.Field)
}

// Envelope is the normalized form of a MailPayload
type Envelope struct {
	Recipients  []string
	SenderEmail string
	SenderName  string
	Subject     string
	Message     string
	Header      mail.Header
}

// PrimaryRecipient is the address used for rule matching. Only the first
// recipient is considered.
func (e *Envelope) PrimaryRecipient() string {
	if len(e.Recipients) == 0 {
		return ""
	}
	return e.Recipients[0]
}

// Extract normalizes a payload. It fails when the payload has no recipient
// or no subject.
func Extract(payload model.MailPayload) (*Envelope, error) {
	recipients := NormalizeRecipients(payload.To)
	if len(recipients) == 0 {
		return nil, &ValidationError{Field: "recipient"}
	}

	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		return nil, &ValidationError{Field: "subject"}
	}

	header := ParseHeaders(payload.Headers)
	env := &Envelope{
		Recipients: recipients,
		Subject:    subject,
		Message:    payload.Message,
		Header:     header,
	}

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		env.SenderEmail = from[0].Address
		env.SenderName = from[0].Name
	}

	return env, nil
}

// ParseHeaders reads raw "Key: value" header lines. Lines without a colon
// are ignored.
func ParseHeaders(lines []string) mail.Header {
	var h textproto.Header
	for _, line := range lines {
		for _, l := range strings.Split(line, "\n") {
			l = strings.TrimRight(l, "\r")
			key, value, ok := strings.Cut(l, ":")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			h.Add(key, strings.TrimSpace(value))
		}
	}
	return mail.Header{Header: message.Header{Header: h}}
}

// NormalizeRecipients splits comma or semicolon separated entries and
// reduces "Name <addr>" forms to the bare address, dropping duplicates.
func NormalizeRecipients(to []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range to {
		for _, part := range strings.FieldsFunc(entry, func(r rune) bool { return r == ',' || r == ';' }) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			addr := part
			if parsed, err := mail.ParseAddress(part); err == nil {
				addr = parsed.Address
			}
			key := strings.ToLower(addr)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
	}
	return out
}
