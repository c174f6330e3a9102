package contact

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/keyxmakerx/stockroom/internal/apperror"
	"github.com/keyxmakerx/stockroom/internal/plugins/smtp"
)

// mockMailSender implements MailSender for testing.
type mockMailSender struct {
	sendMailFn func(ctx context.Context, m smtp.Mail) error
	last       smtp.Mail
	sendCount  int
}

func (m *mockMailSender) SendMail(ctx context.Context, mail smtp.Mail) error {
	m.last = mail
	m.sendCount++
	if m.sendMailFn != nil {
		return m.sendMailFn(ctx, mail)
	}
	return nil
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

var alice = Sender{ID: "user-1", Username: "Alice", Email: "alice@example.com"}

func TestSend_Success(t *testing.T) {
	mail := &mockMailSender{}
	svc := NewContactService(mail, "support@stockroom.example")

	err := svc.Send(context.Background(), alice, "Stock count is off", "<p>Shelf <b>B4</b> is short by 3.</p>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mail.sendCount != 1 {
		t.Fatalf("expected 1 email, got %d", mail.sendCount)
	}
	if len(mail.last.To) != 1 || mail.last.To[0] != "support@stockroom.example" {
		t.Errorf("expected mail to support, got %v", mail.last.To)
	}
	if mail.last.ReplyTo != alice.Email {
		t.Errorf("expected Reply-To %s, got %s", alice.Email, mail.last.ReplyTo)
	}
	if mail.last.From != "" {
		t.Errorf("expected configured sender to be used, got %q", mail.last.From)
	}
	if mail.last.Subject != "Stock count is off" {
		t.Errorf("unexpected subject %q", mail.last.Subject)
	}
	if !strings.Contains(mail.last.HTMLBody, "<b>B4</b>") {
		t.Errorf("expected formatting kept, got %q", mail.last.HTMLBody)
	}
}

func TestSend_SanitisesInput(t *testing.T) {
	mail := &mockMailSender{}
	svc := NewContactService(mail, "support@stockroom.example")
	evil := Sender{ID: "user-2", Username: "<img src=x onerror=alert(1)>", Email: "bob@example.com"}

	err := svc.Send(context.Background(), evil, "<i>Hi</i>\r\nBcc: victim@example.com", `hello<script>alert(1)</script>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(mail.last.HTMLBody, "<script") || strings.Contains(mail.last.HTMLBody, "<img") {
		t.Errorf("expected body sanitised, got %q", mail.last.HTMLBody)
	}
	if strings.ContainsAny(mail.last.Subject, "\r\n<>") {
		t.Errorf("expected plain single-line subject, got %q", mail.last.Subject)
	}
}

func TestSend_Validation(t *testing.T) {
	tests := []struct {
		name, subject, message string
	}{
		{"missing subject", "", "hello"},
		{"markup-only subject", "<b></b>", "hello"},
		{"missing message", "hi", "   "},
		{"script-only message", "hi", "<script>x</script>"},
		{"markup-only message", "hi", " <p> </p> "},
		{"long subject", strings.Repeat("s", 201), "hello"},
		{"long message", "hi", strings.Repeat("m", 10001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := &mockMailSender{}
			err := NewContactService(mail, "support@stockroom.example").Send(context.Background(), alice, tt.subject, tt.message)
			assertAppError(t, err, http.StatusUnprocessableEntity)
			if mail.sendCount != 0 {
				t.Error("expected no email for invalid input")
			}
		})
	}
}

func TestSend_MailFailure(t *testing.T) {
	mail := &mockMailSender{
		sendMailFn: func(context.Context, smtp.Mail) error { return smtp.ErrDeliveryFailed },
	}

	err := NewContactService(mail, "support@stockroom.example").Send(context.Background(), alice, "hi", "hello")
	assertAppError(t, err, http.StatusServiceUnavailable)
}

func TestSend_NoSupportAddress(t *testing.T) {
	mail := &mockMailSender{}

	err := NewContactService(mail, "").Send(context.Background(), alice, "hi", "hello")
	assertAppError(t, err, http.StatusServiceUnavailable)
	if mail.sendCount != 0 {
		t.Error("expected no email without a support address")
	}
}
