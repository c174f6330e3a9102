package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/keyxmakerx/stockroom/internal/config"
)

// dialTimeout bounds connecting to the relay when ctx has no deadline.
const dialTimeout = 10 * time.Second

// MailService is the interface other plugins use to send email.
type MailService interface {
	SendMail(ctx context.Context, m Mail) error
	IsConfigured() bool
}

// smtpService implements MailService over net/smtp.
type smtpService struct {
	cfg config.SMTPConfig
	now func() time.Time
}

// NewService creates a mail service from the environment SMTP settings.
func NewService(cfg config.SMTPConfig) MailService {
	if cfg.Encryption == "" {
		cfg.Encryption = EncryptionStartTLS
	}
	return &smtpService{cfg: cfg, now: time.Now}
}

// IsConfigured returns true if a relay host and sender are set.
func (s *smtpService) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.From != ""
}

// SendMail delivers m through the configured relay. Every failure is
// wrapped in ErrDeliveryFailed.
func (s *smtpService) SendMail(ctx context.Context, m Mail) error {
	if !s.IsConfigured() {
		return fmt.Errorf("%w: smtp is not configured", ErrDeliveryFailed)
	}
	if len(m.To) == 0 {
		return fmt.Errorf("%w: no recipients", ErrDeliveryFailed)
	}
	if m.From == "" {
		m.From = s.cfg.From
	}

	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return fmt.Errorf("%w: invalid sender: %v", ErrDeliveryFailed, err)
	}
	msg := buildMessage(m, s.now())

	if err := s.deliver(ctx, from.Address, m.To, msg); err != nil {
		slog.Warn("smtp delivery failed",
			slog.String("host", s.cfg.Host),
			slog.Int("recipients", len(m.To)),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// deliver opens a connection in the configured encryption mode and runs
// the SMTP transaction.
func (s *smtpService) deliver(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}

	dialer := &net.Dialer{Timeout: dialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Encryption == EncryptionSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if s.cfg.Encryption == EncryptionStartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starting TLS: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	return sendMessage(client, from, to, msg)
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from string, to []string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// buildMessage renders an RFC 5322 HTML message. Header values are stripped
// of line breaks so user input cannot inject headers.
func buildMessage(m Mail, now time.Time) []byte {
	var b strings.Builder
	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headerValue(v))
		b.WriteString("\r\n")
	}

	writeHeader("From", m.From)
	writeHeader("To", strings.Join(m.To, ", "))
	if m.ReplyTo != "" {
		writeHeader("Reply-To", m.ReplyTo)
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", headerValue(m.Subject)))
	writeHeader("Date", now.UTC().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/html; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(m.HTMLBody)
	return []byte(b.String())
}

// headerValue drops CR and LF from a header value.
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
