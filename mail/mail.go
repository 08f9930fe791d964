package mail

import (
	"context"
	"io"
	"strings"
)

// Session is an open, authenticated transport handle.
// A Session belongs to exactly one SendEmails call.
type Session interface {
	Send(ctx context.Context, email *Email) error
	io.Closer
}

// Connector opens a fresh Session.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Session, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}

// AttachmentLoader resolves an attachment reference to its name and content.
type AttachmentLoader interface {
	Load(ctx context.Context, path string) (Attachment, error)
}

// Email is a composed, transport-ready message.
type Email struct {
	From    string
	To      string
	Cc      string // empty means no header
	Bcc     string // empty means no header, never written to the wire
	Subject string

	Body        string // Plain text body
	Attachments []Attachment
}

// Attachment is a named binary part.
type Attachment struct {
	Name string
	Data []byte
}

// Job describes one email of a batch.
type Job struct {
	Receiver    string     `yaml:"receiver" json:"receiver"`
	Subject     string     `yaml:"subject" json:"subject"`
	Message     string     `yaml:"message" json:"message"`
	Cc          StringList `yaml:"cc" json:"cc"`
	Bcc         StringList `yaml:"bcc" json:"bcc"`
	Attachments StringList `yaml:"attachment_paths" json:"attachment_paths"`
}

// Missing returns the names of required fields that are empty.
func (j Job) Missing() []string {
	var missing []string
	if j.Receiver == "" {
		missing = append(missing, "receiver")
	}
	if j.Subject == "" {
		missing = append(missing, "subject")
	}
	if j.Message == "" {
		missing = append(missing, "message")
	}
	return missing
}

// Validate returns a CodeJobValidation error naming the missing fields.
func (j Job) Validate() error {
	missing := j.Missing()
	if len(missing) == 0 {
		return nil
	}
	return NewError(CodeJobValidation, "missing "+strings.Join(missing, ", "), nil)
}
