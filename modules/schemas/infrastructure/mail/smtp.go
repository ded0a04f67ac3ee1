// Package mail delivers schema request notifications over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/modules/schemas/services"
)

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	opts Options
	now  func() time.Time
}

func NewSMTPMailer(opts Options) (*SMTPMailer, error) {
	if _, err := netmail.ParseAddress(opts.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", opts.From, err)
	}
	return &SMTPMailer{opts: opts, now: time.Now}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg services.Mail) error {
	to, err := netmail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	addr := net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.opts.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(nil); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.opts.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.opts.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to.Address); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(m.compose(to.Address, msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA close: %w", err)
	}
	return c.Quit()
}

func (m *SMTPMailer) compose(to string, msg services.Mail) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.opts.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

// LogMailer writes mails to the log instead of sending them.
type LogMailer struct {
	logger *logrus.Entry
}

func NewLogMailer(logger *logrus.Entry) *LogMailer {
	return &LogMailer{logger: logger.WithField("component", "schemas.mail")}
}

func (m *LogMailer) Send(ctx context.Context, msg services.Mail) error {
	m.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("schemas: mail delivery disabled, logging instead")
	return nil
}
