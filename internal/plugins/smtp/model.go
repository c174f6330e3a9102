// Package smtp provides outbound email for Stockroom. Settings come from the
// environment (EMAIL_HOST, EMAIL_USER, ...) and are read once at startup.
package smtp

import "errors"

// Encryption modes for the SMTP connection.
const (
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
	EncryptionNone     = "none"
)

// ErrDeliveryFailed wraps every failure to hand a message to the relay.
// Callers map it to a retryable error.
var ErrDeliveryFailed = errors.New("email delivery failed")

// Mail represents an HTML email message to be sent. An empty From uses the
// configured sender address.
type Mail struct {
	From     string
	To       []string
	ReplyTo  string
	Subject  string
	HTMLBody string
}
