package noop

import (
	"context"
	"sync"

	"github.com/pure-golang/mailbatch/mail"
)

var (
	_ mail.Connector = (*Connector)(nil)
	_ mail.Session   = (*Session)(nil)
)

// Connector hands out sessions that record emails instead of sending them.
// Used for dry runs and tests.
type Connector struct {
	mx       sync.Mutex
	sessions []*Session
}

// NewConnector creates a new no-op Connector.
func NewConnector() *Connector {
	return &Connector{}
}

// Connect returns a fresh recording session.
func (c *Connector) Connect(ctx context.Context) (mail.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, mail.NewError(mail.CodeConnection, "connection canceled", err)
	}

	c.mx.Lock()
	defer c.mx.Unlock()

	s := &Session{}
	c.sessions = append(c.sessions, s)
	return s, nil
}

// Sessions returns every session opened so far.
func (c *Connector) Sessions() []*Session {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// Session records sent emails.
type Session struct {
	mx     sync.Mutex
	emails []*mail.Email
	closed bool
}

// Send records email.
func (s *Session) Send(_ context.Context, email *mail.Email) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return mail.NewError(mail.CodeTransmission, "failed to send email", mail.ErrSessionClosed)
	}
	s.emails = append(s.emails, email)
	return nil
}

// Emails returns the recorded emails in send order.
func (s *Session) Emails() []*mail.Email {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]*mail.Email(nil), s.emails...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.closed
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.closed = true
	return nil
}
