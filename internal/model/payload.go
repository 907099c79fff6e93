package model

// Attachment is a file attached to an outgoing email
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// MailPayload is an outgoing email as emitted by the host application
type MailPayload struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Message     string       `json:"message"`
	Headers     []string     `json:"headers,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Clone returns a copy that shares no slices with p
func (p MailPayload) Clone() MailPayload {
	c := p
	c.To = append([]string(nil), p.To...)
	c.Headers = append([]string(nil), p.Headers...)
	c.Attachments = append([]Attachment(nil), p.Attachments...)
	return c
}
