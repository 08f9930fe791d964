package smtp

import (
	"strconv"
	"strings"

	"github.com/pure-golang/mailbatch/mail"
)

// Mode selects how the connection is encrypted.
type Mode string

const (
	ModeTLS Mode = "tls" // plaintext dial, then STARTTLS
	ModeSSL Mode = "ssl" // TLS from the first byte

	DefaultTLSPort = 587
	DefaultSSLPort = 465

	DefaultLocalName = "mylowercasehost"
)

// Config contains SMTP connection parameters.
type Config struct {
	Server    string `envconfig:"SMTP_SERVER" required:"true"`               // smtp.gmail.com
	Sender    string `envconfig:"SENDER" required:"true"`                    // login and From address
	Password  string `envconfig:"PASSWORD" required:"true"`                  // password or app password
	Port      string `envconfig:"SMTP_PORT"`                                 // falls back to the mode default when not an integer
	Mode      Mode   `envconfig:"SMTP_MODE" default:"tls"`                   // tls or ssl
	LocalName string `envconfig:"SMTP_LOCAL_NAME" default:"mylowercasehost"` // EHLO name for Microsoft servers
	Insecure  bool   `envconfig:"SMTP_INSECURE" default:"false"`             // skip certificate verification
}

// Validate reports missing required fields and unknown modes.
func (c Config) Validate() error {
	var missing []string
	if c.Server == "" {
		missing = append(missing, "SMTP_SERVER")
	}
	if c.Sender == "" {
		missing = append(missing, "SENDER")
	}
	if c.Password == "" {
		missing = append(missing, "PASSWORD")
	}
	if len(missing) > 0 {
		return mail.NewError(mail.CodeConfig, "missing "+strings.Join(missing, ", "), nil)
	}

	switch c.mode() {
	case ModeTLS, ModeSSL:
		return nil
	default:
		return mail.NewError(mail.CodeConfig, "unsupported SMTP_MODE "+string(c.Mode), nil)
	}
}

func (c Config) mode() Mode {
	if c.Mode == "" {
		return ModeTLS
	}
	return Mode(strings.ToLower(string(c.Mode)))
}

func (c Config) localName() string {
	if c.LocalName == "" {
		return DefaultLocalName
	}
	return c.LocalName
}

// ResolvePort parses raw as a port number. Anything that is not an integer
// yields def and false.
func ResolvePort(raw string, def int) (int, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def, false
	}
	return port, true
}

// IsMicrosoft reports whether server is an Outlook/Office 365 endpoint.
// These need an explicit EHLO around STARTTLS.
func IsMicrosoft(server string) bool {
	return strings.Contains(server, "outlook") || strings.Contains(server, "office365")
}
