package mail

import (
	"bytes"
	"io"
	"mime"
	netmail "net/mail"
	"strings"

	"github.com/pkg/errors"
	gomail "gopkg.in/mail.v2"
)

// WriteTo renders the message as MIME. Bcc is left out of the headers.
func (e *Email) WriteTo(w io.Writer) (int64, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", e.From)
	m.SetHeader("To", e.To)
	if e.Cc != "" {
		m.SetHeader("Cc", e.Cc)
	}
	m.SetHeader("Subject", e.Subject)
	m.SetBody("text/plain", e.Body)

	for _, a := range e.Attachments {
		m.AttachReader(a.Name, bytes.NewReader(a.Data), gomail.SetHeader(map[string][]string{
			"Content-Type":        {mediaType("application/octet-stream", "name", a.Name)},
			"Content-Disposition": {mediaType("attachment", "filename", a.Name)},
		}))
	}

	n, err := m.WriteTo(w)
	return n, errors.Wrap(err, "failed to write MIME message")
}

// mediaType appends one parameter, quoted or RFC 2231-encoded as needed.
func mediaType(base, param, value string) string {
	if t := mime.FormatMediaType(base, map[string]string{param: value}); t != "" {
		return t
	}
	return base
}

// Bytes renders the message into memory.
func (e *Email) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Recipients returns the envelope recipients taken from To, Cc and Bcc.
func (e *Email) Recipients() []string {
	var rcpts []string
	for _, field := range []string{e.To, e.Cc, e.Bcc} {
		rcpts = append(rcpts, parseAddresses(field)...)
	}
	return rcpts
}

// parseAddresses is lenient: values that are not RFC 5322 lists are split on commas.
func parseAddresses(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}

	if list, err := netmail.ParseAddressList(field); err == nil {
		addrs := make([]string, len(list))
		for i, a := range list {
			addrs[i] = a.Address
		}
		return addrs
	}

	var addrs []string
	for _, part := range strings.Split(field, ",") {
		if part = strings.TrimSpace(part); part != "" {
			addrs = append(addrs, part)
		}
	}
	return addrs
}
