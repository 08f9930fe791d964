package smtp

import (
	"bytes"
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailbatch/mail"
)

var _ mail.Session = (*session)(nil)

// session is one authenticated SMTP connection.
type session struct {
	mx     sync.Mutex
	client client
	host   string
	closed bool
}

func newSession(cl client, host string) *session {
	return &session{client: cl, host: host}
}

// Send transmits email. Bcc recipients receive it but are not in its headers.
func (s *session) Send(ctx context.Context, email *mail.Email) error {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	rcpts := email.Recipients()
	span.SetAttributes(
		attribute.String("smtp.host", s.host),
		attribute.String("smtp.from", email.From),
		attribute.String("smtp.subject", email.Subject),
		attribute.Int("smtp.recipients_count", len(rcpts)),
		attribute.Int("smtp.attachments_count", len(email.Attachments)),
	)

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		recordError(span, mail.ErrSessionClosed)
		return transmissionError("failed to send email", mail.ErrSessionClosed)
	}

	if err := ctx.Err(); err != nil {
		recordError(span, err)
		return transmissionError("send canceled", err)
	}

	if len(rcpts) == 0 {
		err := errors.New("no recipients specified")
		recordError(span, err)
		return transmissionError("failed to send email", err)
	}

	var buf bytes.Buffer
	if _, err := email.WriteTo(&buf); err != nil {
		recordError(span, err)
		return transmissionError("failed to build message", err)
	}

	if err := s.client.SendMail(email.From, rcpts, &buf); err != nil {
		recordError(span, err)
		return transmissionError("failed to send email", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Close says QUIT and drops the connection. Closing twice is a no-op.
func (s *session) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.client.Quit(); err != nil {
		// connection may already be gone, make sure it is released
		_ = s.client.Close()
		return errors.Wrap(err, "failed to quit SMTP session")
	}
	return nil
}

func transmissionError(message string, err error) error {
	return mail.NewError(mail.CodeTransmission, message, err)
}
