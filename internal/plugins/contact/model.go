// Package contact relays messages from signed-in users to the support
// mailbox. The sender's account email becomes the Reply-To so support can
// answer directly.
package contact

// Field limits for a contact message.
const (
	maxSubjectLen = 200
	maxMessageLen = 10000
)

// ContactRequest holds the data submitted to POST /api/contact.
type ContactRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Sender identifies the authenticated user relaying a message.
type Sender struct {
	ID       string
	Username string
	Email    string
}

// MessageResponse is the success body.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
