package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailbatch/mail"
)

// fakeClient records the SMTP conversation.
type fakeClient struct {
	calls []string
	auth  string // AUTH extension parameters, empty when not advertised

	helloErr    error
	startTLSErr error
	authErr     error
	sendErr     error
	quitErr     error

	from    string
	to      []string
	message []byte
	closed  int
}

func (f *fakeClient) Hello(localName string) error {
	f.calls = append(f.calls, "EHLO "+localName)
	return f.helloErr
}

func (f *fakeClient) Extension(ext string) (bool, string) {
	if ext == "AUTH" && f.auth != "" {
		return true, f.auth
	}
	return false, ""
}

func (f *fakeClient) Auth(a sasl.Client) error {
	mech, _, err := a.Start()
	if err != nil {
		return err
	}
	f.calls = append(f.calls, "AUTH "+mech)
	return f.authErr
}

func (f *fakeClient) SendMail(from string, to []string, r io.Reader) error {
	f.calls = append(f.calls, "SEND")
	if f.sendErr != nil {
		return f.sendErr
	}
	f.from, f.to = from, to
	data, err := io.ReadAll(r)
	f.message = data
	return err
}

func (f *fakeClient) Quit() error {
	f.calls = append(f.calls, "QUIT")
	return f.quitErr
}

func (f *fakeClient) Close() error {
	f.closed++
	return nil
}

// withFakeDial hands fc to c in place of a real server and records every
// dial as "<network> <addr>". The STARTTLS step is recorded on fc.
func withFakeDial(t *testing.T, c *Connector, fc *fakeClient) *[]string {
	t.Helper()

	var dials []string
	c.dial = func(_ context.Context, network, addr string) (net.Conn, error) {
		dials = append(dials, network+" "+addr)
		local, remote := net.Pipe()
		t.Cleanup(func() {
			_ = local.Close()
			_ = remote.Close()
		})
		return local, nil
	}
	c.dialTLS = func(_ context.Context, network, addr string, config *tls.Config) (net.Conn, error) {
		dials = append(dials, "tls "+network+" "+addr+" "+config.ServerName)
		local, remote := net.Pipe()
		t.Cleanup(func() {
			_ = local.Close()
			_ = remote.Close()
		})
		return local, nil
	}
	c.startTLS = func(net.Conn, *tls.Config) (client, error) {
		fc.calls = append(fc.calls, "STARTTLS")
		if fc.startTLSErr != nil {
			return nil, fc.startTLSErr
		}
		return fc, nil
	}
	c.newClient = func(net.Conn) client {
		return fc
	}
	return &dials
}

func TestConnect_TLS_PlainServer(t *testing.T) {
	fc := &fakeClient{auth: "PLAIN LOGIN"}
	c := NewTLSConnector(testConfig("smtp.gmail.com"), nil)
	dials := withFakeDial(t, c, fc)

	s, err := c.Connect(context.Background())

	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, []string{"tcp smtp.gmail.com:587"}, *dials)
	assert.Equal(t, []string{"STARTTLS", "AUTH PLAIN"}, fc.calls)
}

func TestConnect_TLS_Microsoft(t *testing.T) {
	for _, server := range []string{"smtp-mail.outlook.com", "smtp.office365.com"} {
		t.Run(server, func(t *testing.T) {
			fc := &fakeClient{auth: "LOGIN XOAUTH2"}
			c := NewTLSConnector(testConfig(server), nil)
			withFakeDial(t, c, fc)

			_, err := c.Connect(context.Background())

			require.NoError(t, err)
			assert.Equal(t, []string{
				"STARTTLS",
				"EHLO mylowercasehost",
				"AUTH LOGIN",
			}, fc.calls)
		})
	}
}

func TestConnect_TLS_CustomLocalName(t *testing.T) {
	fc := &fakeClient{auth: "PLAIN"}
	cfg := testConfig("smtp.office365.com")
	cfg.LocalName = "client.example.org"
	c := NewTLSConnector(cfg, nil)
	withFakeDial(t, c, fc)

	_, err := c.Connect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"STARTTLS", "EHLO client.example.org", "AUTH PLAIN"}, fc.calls)
}

func TestConnect_SSL_NeverStartsTLS(t *testing.T) {
	for _, server := range []string{"smtp.gmail.com", "smtp.office365.com"} {
		t.Run(server, func(t *testing.T) {
			fc := &fakeClient{auth: "PLAIN"}
			c := NewSSLConnector(testConfig(server), nil)
			dials := withFakeDial(t, c, fc)

			_, err := c.Connect(context.Background())

			require.NoError(t, err)
			assert.Equal(t, []string{"tls tcp " + server + ":465 " + server}, *dials)
			assert.Equal(t, []string{"AUTH PLAIN"}, fc.calls)
		})
	}
}

func TestConnect_Failures(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name    string
		server  string
		client  *fakeClient
		message string
		closed  int // client closes; a failed STARTTLS never yields a client
	}{
		{name: "starttls", server: "smtp.gmail.com", client: &fakeClient{startTLSErr: cause}, message: "failed to start TLS", closed: 0},
		{name: "greeting", server: "smtp.office365.com", client: &fakeClient{helloErr: cause}, message: "failed to greet server after STARTTLS", closed: 1},
		{name: "auth", server: "smtp.gmail.com", client: &fakeClient{auth: "PLAIN", authErr: cause}, message: "failed to authenticate", closed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTLSConnector(testConfig(tt.server), nil)
			withFakeDial(t, c, tt.client)

			s, err := c.Connect(context.Background())

			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, mail.IsConnection(err))
			assert.ErrorIs(t, err, cause)
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, tt.closed, tt.client.closed, "half-open client must be closed")
			assert.NotContains(t, tt.client.calls, "SEND")
		})
	}
}

func TestConnect_DialFailure(t *testing.T) {
	cause := errors.New("connection refused")

	tlsConn := NewTLSConnector(testConfig("smtp.example.com"), nil)
	tlsConn.dial = func(context.Context, string, string) (net.Conn, error) { return nil, cause }

	_, err := tlsConn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, mail.IsConnection(err))
	assert.ErrorIs(t, err, cause)

	sslConn := NewSSLConnector(testConfig("smtp.example.com"), nil)
	sslConn.dialTLS = func(context.Context, string, string, *tls.Config) (net.Conn, error) { return nil, cause }

	_, err = sslConn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, mail.IsConnection(err))
	assert.Contains(t, err.Error(), "ssl")
}

func TestConnect_CanceledContext(t *testing.T) {
	fc := &fakeClient{}
	c := NewTLSConnector(testConfig("smtp.example.com"), nil)
	dials := withFakeDial(t, c, fc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Connect(ctx)

	require.Error(t, err)
	assert.True(t, mail.IsConnection(err))
	assert.Empty(t, *dials)
}

func TestSupportsAuth(t *testing.T) {
	assert.True(t, supportsAuth(&fakeClient{auth: "LOGIN PLAIN"}, sasl.Plain))
	assert.True(t, supportsAuth(&fakeClient{auth: "plain"}, sasl.Plain))
	assert.False(t, supportsAuth(&fakeClient{auth: "LOGIN"}, sasl.Plain))
	assert.False(t, supportsAuth(&fakeClient{}, sasl.Plain))
}

func TestNewGoSMTPClientStartTLS_ClosedConn(t *testing.T) {
	local, remote := net.Pipe()
	require.NoError(t, remote.Close())

	cl, err := newGoSMTPClientStartTLS(local, &tls.Config{ServerName: "localhost"})

	require.Error(t, err)
	assert.Nil(t, cl, "no typed nil on failure")
}
