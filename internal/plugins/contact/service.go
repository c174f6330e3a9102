package contact

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/stockroom/internal/apperror"
	"github.com/keyxmakerx/stockroom/internal/plugins/smtp"
	"github.com/keyxmakerx/stockroom/internal/sanitize"
)

// msgEmailFailed matches the reset flow so clients handle both the same way.
const msgEmailFailed = "Email sending failed, please try again."

// MailSender is the slice of the smtp plugin the relay uses.
type MailSender interface {
	SendMail(ctx context.Context, m smtp.Mail) error
}

// ContactService relays contact messages to support.
type ContactService interface {
	Send(ctx context.Context, from Sender, subject, message string) error
}

type contactService struct {
	mail    MailSender
	support string
}

// NewContactService creates a relay that delivers to supportAddress.
func NewContactService(mail MailSender, supportAddress string) ContactService {
	return &contactService{mail: mail, support: supportAddress}
}

// Send validates and sanitises the message and mails it to support with the
// sender's email as Reply-To.
func (s *contactService) Send(ctx context.Context, from Sender, subject, message string) error {
	subject = sanitize.Text(subject)
	if len(message) > maxMessageLen {
		return apperror.NewValidation("message must be at most 10000 characters")
	}
	// A body whose markup sanitises away to nothing counts as empty.
	safeMessage := strings.TrimSpace(sanitize.HTML(message))
	if subject == "" || sanitize.Text(safeMessage) == "" {
		return apperror.NewValidation("please add a subject and message")
	}
	if len(subject) > maxSubjectLen {
		return apperror.NewValidation("subject must be at most 200 characters")
	}
	if s.support == "" {
		return apperror.NewUnavailable(msgEmailFailed, fmt.Errorf("no support address configured"))
	}

	err := s.mail.SendMail(ctx, smtp.Mail{
		To:       []string{s.support},
		ReplyTo:  from.Email,
		Subject:  subject,
		HTMLBody: contactEmailBody(from, safeMessage),
	})
	if err != nil {
		return apperror.NewUnavailable(msgEmailFailed, err)
	}

	slog.Info("contact message relayed", slog.String("user_id", from.ID))
	return nil
}

// contactEmailBody wraps the already sanitised message with the sender's
// details.
func contactEmailBody(from Sender, safeMessage string) string {
	var b strings.Builder
	b.WriteString("<p>Message from ")
	b.WriteString(html.EscapeString(from.Username))
	b.WriteString(" &lt;")
	b.WriteString(html.EscapeString(from.Email))
	b.WriteString("&gt;</p>\n<div>")
	b.WriteString(safeMessage)
	b.WriteString("</div>\n")
	return b.String()
}
