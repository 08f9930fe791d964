package smtp

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailbatch/mail"
)

var _ mail.Connector = (*Connector)(nil)

// client is the part of *gosmtp.Client the connector and session use.
type client interface {
	Hello(localName string) error
	Extension(ext string) (bool, string)
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

type (
	dialFunc      func(ctx context.Context, network, addr string) (net.Conn, error)
	dialTLSFunc   func(ctx context.Context, network, addr string, config *tls.Config) (net.Conn, error)
	newClientFunc func(conn net.Conn) client
	startTLSFunc  func(conn net.Conn, config *tls.Config) (client, error)
)

// DialTimeout bounds the TCP connect.
const DialTimeout = 30 * time.Second

// ConnectorOptions contains options for creating a Connector.
type ConnectorOptions struct {
	Logger    *slog.Logger
	TLSConfig *tls.Config // base TLS config, ServerName is filled in when empty
}

// Connector opens authenticated SMTP sessions in either mode.
type Connector struct {
	cfg       Config
	mode      Mode
	port      int
	tlsConfig *tls.Config
	logger    *slog.Logger

	dial      dialFunc
	dialTLS   dialTLSFunc
	newClient newClientFunc
	startTLS  startTLSFunc
}

// NewConnector returns the connector for cfg.Mode.
func NewConnector(cfg Config, options *ConnectorOptions) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newConnector(cfg, cfg.mode(), options), nil
}

// NewTLSConnector returns a connector that upgrades a plaintext session with STARTTLS.
// Port defaults to 587.
func NewTLSConnector(cfg Config, options *ConnectorOptions) *Connector {
	return newConnector(cfg, ModeTLS, options)
}

// NewSSLConnector returns a connector that dials straight over TLS.
// Port defaults to 465.
func NewSSLConnector(cfg Config, options *ConnectorOptions) *Connector {
	return newConnector(cfg, ModeSSL, options)
}

func newConnector(cfg Config, mode Mode, options *ConnectorOptions) *Connector {
	if options == nil {
		options = &ConnectorOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	logger := options.Logger.WithGroup("smtp")

	def := DefaultTLSPort
	if mode == ModeSSL {
		def = DefaultSSLPort
	}
	port, ok := ResolvePort(cfg.Port, def)
	if !ok && cfg.Port != "" {
		logger.Warn("invalid SMTP_PORT, using default", "value", cfg.Port, "port", port)
	}

	tlsConfig := &tls.Config{}
	if options.TLSConfig != nil {
		tlsConfig = options.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = cfg.Server
	}
	if cfg.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- controlled by config, user's responsibility
	}

	return &Connector{
		cfg:       cfg,
		mode:      mode,
		port:      port,
		tlsConfig: tlsConfig,
		logger:    logger,
		dial:      (&net.Dialer{Timeout: DialTimeout}).DialContext,
		dialTLS:   dialImplicitTLS,
		newClient: newGoSMTPClient,
		startTLS:  newGoSMTPClientStartTLS,
	}
}

// Mode returns the encryption mode.
func (c *Connector) Mode() Mode { return c.mode }

// Port returns the resolved port.
func (c *Connector) Port() int { return c.port }

// Addr returns host:port of the server.
func (c *Connector) Addr() string {
	return net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.port))
}

// Connect dials, secures and authenticates a session. Nothing is retried.
func (c *Connector) Connect(ctx context.Context) (mail.Session, error) {
	ctx, span := tracer.Start(ctx, "SMTP.Connect", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.host", c.cfg.Server),
		attribute.Int("smtp.port", c.port),
		attribute.String("smtp.mode", string(c.mode)),
	)

	if err := ctx.Err(); err != nil {
		recordError(span, err)
		return nil, connectionError("connection canceled", err)
	}

	cl, err := c.open(ctx)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	if err := authenticate(cl, c.cfg.Sender, c.cfg.Password); err != nil {
		_ = cl.Close()
		recordError(span, err)
		return nil, err
	}

	c.logger.Debug("session opened", "addr", c.Addr(), "mode", c.mode)
	span.SetStatus(codes.Ok, "")
	return newSession(cl, c.cfg.Server), nil
}

func (c *Connector) open(ctx context.Context) (client, error) {
	addr := c.Addr()

	if c.mode == ModeSSL {
		conn, err := c.dialTLS(ctx, "tcp", addr, c.tlsConfig)
		if err != nil {
			return nil, connectionError("failed to connect to SMTP ssl server", err)
		}
		return c.newClient(conn), nil
	}

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, connectionError("failed to connect to SMTP server", err)
	}

	return c.upgrade(conn)
}

// upgrade greets the server and issues STARTTLS. Microsoft servers get an
// explicit EHLO <LocalName> once the channel is encrypted; others are greeted
// again as "localhost" by the next command.
func (c *Connector) upgrade(conn net.Conn) (client, error) {
	cl, err := c.startTLS(conn, c.tlsConfig)
	if err != nil {
		_ = conn.Close()
		return nil, connectionError("failed to start TLS", err)
	}

	if !IsMicrosoft(c.cfg.Server) {
		return cl, nil
	}

	if err := cl.Hello(c.cfg.localName()); err != nil {
		_ = cl.Close()
		return nil, connectionError("failed to greet server after STARTTLS", err)
	}
	return cl, nil
}

// authenticate prefers PLAIN and falls back to LOGIN.
func authenticate(cl client, username, password string) error {
	var auth sasl.Client
	if supportsAuth(cl, sasl.Plain) {
		auth = sasl.NewPlainClient("", username, password)
	} else {
		auth = sasl.NewLoginClient(username, password)
	}

	if err := cl.Auth(auth); err != nil {
		return connectionError("failed to authenticate", err)
	}
	return nil
}

func supportsAuth(cl client, mech string) bool {
	ok, params := cl.Extension("AUTH")
	if !ok {
		return false
	}
	for _, m := range strings.Fields(params) {
		if strings.EqualFold(m, mech) {
			return true
		}
	}
	return false
}

func connectionError(message string, err error) error {
	return mail.NewError(mail.CodeConnection, message, err)
}

// dialImplicitTLS dials addr and completes the TLS handshake before any SMTP traffic.
func dialImplicitTLS(ctx context.Context, network, addr string, config *tls.Config) (net.Conn, error) {
	d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: DialTimeout}, Config: config}
	return d.DialContext(ctx, network, addr)
}

func newGoSMTPClient(conn net.Conn) client {
	return gosmtp.NewClient(conn)
}

// newGoSMTPClientStartTLS reads the greeting, sends EHLO and STARTTLS, and
// completes the TLS handshake.
func newGoSMTPClientStartTLS(conn net.Conn, config *tls.Config) (client, error) {
	c, err := gosmtp.NewClientStartTLS(conn, config)
	if err != nil {
		return nil, err
	}
	return c, nil
}
