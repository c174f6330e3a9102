package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/stockroom/internal/apperror"
	"github.com/keyxmakerx/stockroom/internal/metrics"
	"github.com/keyxmakerx/stockroom/internal/plugins/security"
	"github.com/keyxmakerx/stockroom/internal/plugins/smtp"
)

// Client-facing messages shared by several paths. Login failures use one
// message so responses do not reveal whether an email is registered.
const (
	msgInvalidCredentials = "invalid email or password"
	msgUnauthenticated    = "unauthenticated"
	msgInvalidResetToken  = "invalid or expired token"
	msgEmailFailed        = "Email sending failed, please try again."
)

// MailSender is the slice of the smtp plugin the auth service uses to send
// password reset links.
type MailSender interface {
	SendMail(ctx context.Context, m smtp.Mail) error
}

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*User, string, error)
	Login(ctx context.Context, input LoginInput, meta RequestMeta) (*User, string, error)
	Logout(ctx context.Context, token string, meta RequestMeta)

	// ValidateSession verifies a session token and loads its identity. Every
	// failure is a 401 with the same message.
	ValidateSession(ctx context.Context, token string) (*User, error)
	IsLoggedIn(token string) bool
	SessionTTL() time.Duration

	GetUser(ctx context.Context, id string) (*User, error)
	UpdateProfile(ctx context.Context, id string, input ProfileInput) (*User, error)
	ChangePassword(ctx context.Context, id, oldPassword, newPassword string, meta RequestMeta) error

	ForgotPassword(ctx context.Context, email string, meta RequestMeta) error
	ValidateResetToken(ctx context.Context, rawToken string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string, meta RequestMeta) error

	RecentActivity(ctx context.Context, id string, limit int) ([]security.Event, error)
}

// Deps holds the collaborators of the auth service. Events and Metrics are
// optional.
type Deps struct {
	Users       UserRepository
	Hasher      PasswordHasher
	Tokens      *TokenIssuer
	Resets      *ResetManager
	Mail        MailSender
	Events      security.Service
	Metrics     metrics.Recorder
	FrontendURL string
}

// authService implements AuthService.
type authService struct {
	users       UserRepository
	hasher      PasswordHasher
	tokens      *TokenIssuer
	resets      *ResetManager
	mail        MailSender
	events      security.Service
	metrics     metrics.Recorder
	frontendURL string

	dummyOnce sync.Once
	dummy     string
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(d Deps) AuthService {
	m := d.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	return &authService{
		users:       d.Users,
		hasher:      d.Hasher,
		tokens:      d.Tokens,
		resets:      d.Resets,
		mail:        d.Mail,
		events:      d.Events,
		metrics:     m,
		frontendURL: strings.TrimRight(d.FrontendURL, "/"),
	}
}

// Register creates a new account and signs it in. Validation runs before
// anything is looked up or hashed.
func (s *authService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*User, string, error) {
	if msg := validateRegisterInput(&input); msg != "" {
		return nil, "", apperror.NewValidation(msg)
	}
	email := normalizeEmail(input.Email)

	// Check if email is already taken before doing expensive hashing.
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, "", apperror.NewConflict("email has already been registered")
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: hash,
		Photo:        orDefault(input.Photo, DefaultPhoto),
		Phone:        orDefault(input.Phone, DefaultPhone),
		Biography:    orDefault(input.Biography, DefaultBiography),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The unique index catches races the pre-check missed.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, "", apperror.NewConflict("email has already been registered")
		}
		return nil, "", apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("issuing session: %w", err))
	}

	s.metrics.RecordRegistration()
	s.logEvent(ctx, security.EventUserRegistered, user.ID, meta, nil)
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user.Public(), token, nil
}

// Login authenticates a user by email and password and issues a session
// token. Unknown email and wrong password are indistinguishable to the
// caller, including in timing: an unknown email still pays for one bcrypt
// comparison.
func (s *authService) Login(ctx context.Context, input LoginInput, meta RequestMeta) (*User, string, error) {
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, "", apperror.NewValidation("please add email and password")
	}

	user, err := s.users.FindByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if apperror.SafeCode(err) == http.StatusNotFound {
			s.hasher.Verify(ctx, input.Password, s.dummyHash())
			s.metrics.RecordLogin(metrics.OutcomeFailure)
			s.logEvent(ctx, security.EventLoginFailed, "", meta, map[string]any{"reason": "unknown_email"})
			return nil, "", apperror.NewUnauthorized(msgInvalidCredentials)
		}
		return nil, "", apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !s.hasher.Verify(ctx, input.Password, user.PasswordHash) {
		s.metrics.RecordLogin(metrics.OutcomeFailure)
		s.logEvent(ctx, security.EventLoginFailed, user.ID, meta, map[string]any{"reason": "bad_password"})
		return nil, "", apperror.NewUnauthorized(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("issuing session: %w", err))
	}

	s.metrics.RecordLogin(metrics.OutcomeSuccess)
	s.logEvent(ctx, security.EventLoginSuccess, user.ID, meta, nil)
	slog.Info("user logged in", slog.String("user_id", user.ID))

	return user.Public(), token, nil
}

// Logout records the event for a still-valid token. Tokens are stateless,
// so nothing is revoked server-side; the handler clears the cookie.
func (s *authService) Logout(ctx context.Context, token string, meta RequestMeta) {
	if id, err := s.tokens.Verify(token); err == nil {
		s.logEvent(ctx, security.EventLogout, id, meta, nil)
	}
}

// ValidateSession verifies token and loads the identity it names.
func (s *authService) ValidateSession(ctx context.Context, token string) (*User, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		s.metrics.RecordSessionRejected()
		return nil, apperror.NewUnauthorized(msgUnauthenticated)
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusNotFound {
			s.metrics.RecordSessionRejected()
			return nil, apperror.NewUnauthorized(msgUnauthenticated)
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading session user: %w", err))
	}

	return user.Public(), nil
}

// IsLoggedIn reports whether token is a valid session token. The identity
// is not loaded.
func (s *authService) IsLoggedIn(token string) bool {
	_, err := s.tokens.Verify(token)
	return err == nil
}

// SessionTTL returns the lifetime of issued session tokens.
func (s *authService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

// GetUser returns the public profile of id.
func (s *authService) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusNotFound {
			return nil, apperror.NewNotFound("user not found")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	return user.Public(), nil
}

// UpdateProfile replaces each provided, non-blank profile field and leaves
// the rest alone. Email and password cannot change here.
func (s *authService) UpdateProfile(ctx context.Context, id string, input ProfileInput) (*User, error) {
	if msg := validateProfileInput(&input); msg != "" {
		return nil, apperror.NewValidation(msg)
	}

	upd := UserUpdate{
		Username:  trimmedOrNil(input.Username),
		Photo:     trimmedOrNil(input.Photo),
		Phone:     trimmedOrNil(input.Phone),
		Biography: trimmedOrNil(input.Biography),
	}
	if !upd.IsEmpty() {
		if err := s.users.UpdateFields(ctx, id, upd); err != nil {
			if apperror.SafeCode(err) == http.StatusNotFound {
				return nil, apperror.NewNotFound("user not found")
			}
			return nil, apperror.NewInternal(fmt.Errorf("updating profile: %w", err))
		}
	}

	return s.GetUser(ctx, id)
}

// ChangePassword replaces the password after checking the current one.
// Any outstanding reset token is revoked.
func (s *authService) ChangePassword(ctx context.Context, id, oldPassword, newPassword string, meta RequestMeta) error {
	if oldPassword == "" || newPassword == "" {
		return apperror.NewValidation("please add old and new password")
	}
	if msg := validatePassword(newPassword); msg != "" {
		return apperror.NewValidation(msg)
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusNotFound {
			return apperror.NewNotFound("user not found")
		}
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !s.hasher.Verify(ctx, oldPassword, user.PasswordHash) {
		return apperror.NewBadRequest("old password is incorrect")
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.users.UpdateFields(ctx, id, UserUpdate{PasswordHash: &hash}); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	if err := s.resets.Revoke(ctx, id); err != nil {
		slog.Warn("failed to revoke reset token after password change",
			slog.String("user_id", id),
			slog.Any("error", err),
		)
	}

	s.logEvent(ctx, security.EventPasswordChanged, id, meta, nil)
	slog.Info("password changed", slog.String("user_id", id))
	return nil
}

// ForgotPassword issues a reset token for the account with email and mails
// the link. An unknown email is not an error: the caller sees the same
// success either way and no email is sent.
func (s *authService) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperror.NewValidation("email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusNotFound {
			slog.Info("password reset requested for unknown email")
			return nil
		}
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	raw, err := s.resets.RequestReset(ctx, user.ID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("requesting reset: %w", err))
	}

	link := s.frontendURL + "/resetPwd/" + raw
	mail := smtp.Mail{
		To:       []string{user.Email},
		Subject:  "Password Reset Request",
		HTMLBody: resetEmailBody(user.Username, link, s.resets.TTL()),
	}
	if err := s.mail.SendMail(ctx, mail); err != nil {
		// The link never left, so the record must not stay redeemable.
		if rerr := s.resets.Revoke(ctx, user.ID); rerr != nil {
			slog.Warn("failed to revoke undelivered reset token",
				slog.String("user_id", user.ID),
				slog.Any("error", rerr),
			)
		}
		return apperror.NewUnavailable(msgEmailFailed, err)
	}

	s.metrics.RecordResetRequested()
	s.logEvent(ctx, security.EventPasswordResetInitiated, user.ID, meta, nil)
	slog.Info("password reset email sent", slog.String("user_id", user.ID))
	return nil
}

// ValidateResetToken checks a reset link without consuming it.
func (s *authService) ValidateResetToken(ctx context.Context, rawToken string) error {
	if _, err := s.resets.ValidateReset(ctx, rawToken); err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			return apperror.NewBadRequest(msgInvalidResetToken)
		}
		return apperror.NewInternal(fmt.Errorf("validating reset token: %w", err))
	}
	return nil
}

// ResetPassword redeems a reset token and installs the new password. The
// password is validated before the token is looked at.
func (s *authService) ResetPassword(ctx context.Context, rawToken, newPassword string, meta RequestMeta) error {
	if msg := validatePassword(newPassword); msg != "" {
		return apperror.NewValidation(msg)
	}

	userID, err := s.resets.ConsumeReset(ctx, rawToken, newPassword)
	if err != nil {
		s.metrics.RecordResetCompleted(metrics.OutcomeFailure)
		if errors.Is(err, ErrInvalidResetToken) {
			return apperror.NewBadRequest(msgInvalidResetToken)
		}
		return apperror.NewInternal(fmt.Errorf("resetting password: %w", err))
	}

	s.metrics.RecordResetCompleted(metrics.OutcomeSuccess)
	s.logEvent(ctx, security.EventPasswordResetCompleted, userID, meta, nil)
	slog.Info("password reset completed", slog.String("user_id", userID))
	return nil
}

// RecentActivity lists the identity's latest security events.
func (s *authService) RecentActivity(ctx context.Context, id string, limit int) ([]security.Event, error) {
	if s.events == nil {
		return []security.Event{}, nil
	}
	return s.events.ListForUser(ctx, id, limit)
}

// logEvent records a security event. Failures are logged and swallowed so
// they never fail the auth operation.
func (s *authService) logEvent(ctx context.Context, eventType, userID string, meta RequestMeta, details map[string]any) {
	if s.events == nil {
		return
	}
	err := s.events.LogEvent(ctx, security.Event{
		EventType: eventType,
		UserID:    userID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Details:   details,
	})
	if err != nil {
		slog.Warn("failed to record security event",
			slog.String("event_type", eventType),
			slog.Any("error", err),
		)
	}
}

// fallbackDummyHash is a cost-10 bcrypt hash used when the lazy dummy hash
// cannot be computed. It keeps unknown-email logins as slow as real ones.
const fallbackDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// dummyHash lazily computes a hash of a random secret, compared against on
// logins for unknown emails.
func (s *authService) dummyHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(context.Background(), uuid.NewString())
		if err != nil {
			slog.Warn("failed to compute dummy hash", slog.Any("error", err))
			s.dummy = fallbackDummyHash
			return
		}
		s.dummy = h
	})
	return s.dummy
}

// trimmedOrNil returns a pointer to the trimmed value, or nil when v is
// absent or blank.
func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// resetEmailBody renders the reset email.
func resetEmailBody(username, link string, ttl time.Duration) string {
	var b strings.Builder
	b.WriteString("<h2>Hello ")
	b.WriteString(html.EscapeString(username))
	b.WriteString("</h2>\n")
	b.WriteString("<p>Please use the url below to reset your password.</p>\n")
	fmt.Fprintf(&b, "<p>This reset link is valid for only %d minutes.</p>\n", int(ttl.Minutes()))
	b.WriteString(`<a href="`)
	b.WriteString(html.EscapeString(link))
	b.WriteString(`" clicktracking=off>`)
	b.WriteString(html.EscapeString(link))
	b.WriteString("</a>\n")
	b.WriteString("<p>Regards...</p>\n<p>Stockroom Team</p>\n")
	return b.String()
}
