package smtp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailbatch/mail"
)

func testEmail() *mail.Email {
	return &mail.Email{
		From:    "alice@example.com",
		To:      "bob@example.com",
		Cc:      "carol@example.com, dave@example.com",
		Bcc:     "audit@example.com",
		Subject: "Status",
		Body:    "All good",
	}
}

func TestSession_Send(t *testing.T) {
	fc := &fakeClient{}
	s := newSession(fc, "smtp.example.com")

	err := s.Send(context.Background(), testEmail())

	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", fc.from)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com", "dave@example.com", "audit@example.com"}, fc.to)

	msg := string(fc.message)
	assert.Contains(t, msg, "Subject: Status")
	assert.Contains(t, msg, "Cc: carol@example.com, dave@example.com")
	assert.NotContains(t, msg, "audit@example.com")
}

func TestSession_SendFailure(t *testing.T) {
	cause := errors.New("554 5.7.1 rejected")
	s := newSession(&fakeClient{sendErr: cause}, "smtp.example.com")

	err := s.Send(context.Background(), testEmail())

	require.Error(t, err)
	assert.True(t, mail.IsTransmission(err))
	assert.ErrorIs(t, err, cause)
}

func TestSession_NoRecipients(t *testing.T) {
	fc := &fakeClient{}
	s := newSession(fc, "smtp.example.com")

	err := s.Send(context.Background(), &mail.Email{From: "alice@example.com", Subject: "s", Body: "b"})

	require.Error(t, err)
	assert.True(t, mail.IsTransmission(err))
	assert.Contains(t, err.Error(), "no recipients")
	assert.Empty(t, fc.calls)
}

func TestSession_Close(t *testing.T) {
	fc := &fakeClient{}
	s := newSession(fc, "smtp.example.com")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"QUIT"}, fc.calls)

	err := s.Send(context.Background(), testEmail())
	require.Error(t, err)
	assert.ErrorIs(t, err, mail.ErrSessionClosed)
}

func TestSession_CloseQuitFailure(t *testing.T) {
	fc := &fakeClient{quitErr: errors.New("broken pipe")}
	s := newSession(fc, "smtp.example.com")

	err := s.Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to quit SMTP session")
	assert.Equal(t, 1, fc.closed)
}

func TestSession_CanceledContext(t *testing.T) {
	fc := &fakeClient{}
	s := newSession(fc, "smtp.example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, testEmail())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fc.calls)
}
