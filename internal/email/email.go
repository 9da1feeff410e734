// Package email sends host notifications over SMTP.
package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// ErrNotConfigured is returned by Send when no SMTP server is set.
var ErrNotConfigured = errors.New("SMTP not configured")

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
	From string `mapstructure:"from"`
}

// IsConfigured returns true if SMTP settings are present.
func (c SMTPConfig) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Bytes renders m with RFC 5322 headers.
func (m Message) Bytes(from string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", m.Subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(sb.String())
}

// Send delivers m. Port 465 uses implicit TLS; any other port uses
// STARTTLS when the server offers it.
func Send(cfg SMTPConfig, m Message) error {
	if !cfg.IsConfigured() {
		return ErrNotConfigured
	}
	if len(m.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	addr := cfg.Host + ":" + cfg.Port
	msg := m.Bytes(cfg.From)

	if cfg.Port == "465" {
		return sendImplicitTLS(cfg, addr, m.To, msg)
	}

	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, cfg.From, m.To, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func sendImplicitTLS(cfg SMTPConfig, addr string, to []string, msg []byte) (err error) {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return fmt.Errorf("TLS dial: %w", err)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer func() {
		if qerr := c.Quit(); qerr != nil && err == nil {
			err = fmt.Errorf("quit: %w", qerr)
		}
	}()

	if cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return nil
}
