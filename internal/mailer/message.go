// Package mailer delivers routed email through SMTP providers.
package mailer

import (
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pipeline"
)

// headers the builder writes itself; copies from the payload are dropped
var managedHeaders = map[string]bool{
	"From":                      true,
	"To":                        true,
	"Subject":                   true,
	"Date":                      true,
	"Message-Id":                true,
	"Mime-Version":              true,
	"Content-Type":              true,
	"Content-Transfer-Encoding": true,
	"Bcc":                       true,
}

// Envelope is a message ready for SMTP submission
type Envelope struct {
	From       string
	Recipients []string
	Data       []byte
}

// Sender identifies who a message is sent as
type Sender struct {
	Email string
	Name  string
}

// Compose renders a payload into an RFC 5322 message. The header From is
// the given sender; when it differs from the address found in the payload
// headers, that address becomes the Reply-To unless one is present.
// Cc and Bcc header addresses are added to the envelope recipients.
func Compose(payload model.MailPayload, from Sender, now time.Time) (*Envelope, error) {
	if from.Email == "" {
		return nil, fmt.Errorf("no sender address")
	}
	if len(payload.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	src := pipeline.ParseHeaders(payload.Headers)

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(payload.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: from.Name, Address: from.Email}})
	h.SetAddressList("To", addressList(payload.To))
	h.Set("Message-Id", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Email)))

	fields := src.Fields()
	for fields.Next() {
		if managedHeaders[textproto.CanonicalMIMEHeaderKey(fields.Key())] {
			continue
		}
		h.Add(fields.Key(), fields.Value())
	}

	if original, err := src.AddressList("From"); err == nil && len(original) > 0 &&
		!strings.EqualFold(original[0].Address, from.Email) && !src.Has("Reply-To") {
		h.SetAddressList("Reply-To", original[:1])
	}

	recipients := append([]string(nil), payload.To...)
	for _, key := range []string{"Cc", "Bcc"} {
		if list, err := src.AddressList(key); err == nil {
			for _, a := range list {
				recipients = append(recipients, a.Address)
			}
		}
	}

	contentType := src.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain; charset=UTF-8"
	}

	var buf bytes.Buffer
	if len(payload.Attachments) == 0 {
		h.Set("Content-Type", contentType)
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("failed to create message writer: %w", err)
		}
		if _, err := io.WriteString(w, payload.Message); err != nil {
			return nil, fmt.Errorf("failed to write message body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish message: %w", err)
		}
	} else if err := writeMultipart(&buf, h, contentType, payload); err != nil {
		return nil, err
	}

	return &Envelope{
		From:       from.Email,
		Recipients: recipients,
		Data:       buf.Bytes(),
	}, nil
}

func writeMultipart(buf *bytes.Buffer, h mail.Header, contentType string, payload model.MailPayload) error {
	mw, err := mail.CreateWriter(buf, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}

	var ih mail.InlineHeader
	ih.Set("Content-Type", contentType)
	pw, err := mw.CreateSingleInline(ih)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := io.WriteString(pw, payload.Message); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to finish body part: %w", err)
	}

	for _, att := range payload.Attachments {
		var ah mail.AttachmentHeader
		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		ah.Set("Content-Type", mimeType)
		ah.SetFilename(att.Filename)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("failed to create attachment %q: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Data); err != nil {
			return fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return fmt.Errorf("failed to finish attachment %q: %w", att.Filename, err)
		}
	}

	return mw.Close()
}

func addressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
