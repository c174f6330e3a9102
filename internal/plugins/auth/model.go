// Package auth handles user accounts, authentication and password security
// for Stockroom. It provides registration, login, logout, profile updates,
// the forgot/reset password flow, and the request-level gateway that turns
// a session cookie into an authenticated identity.
//
// Sessions are stateless HS256 tokens carried in an HttpOnly cookie. Reset
// tokens are random, stored only as SHA-256 hashes in Redis, and single-use.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"regexp"
	"strings"
	"time"
)

// Profile defaults applied at registration when the client leaves a field empty.
const (
	DefaultPhoto     = "/assets/avatar.png"
	DefaultPhone     = "+646"
	DefaultBiography = "bio"
)

// Field limits enforced before anything is hashed or persisted.
const (
	minPasswordLen  = 6
	maxPasswordLen  = 72 // bcrypt ignores input past 72 bytes.
	maxUsernameLen  = 100
	maxBiographyLen = 255
	maxEmailLen     = 255
)

// emailPattern is the address shape accepted at registration.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// User represents a registered account. PasswordHash always holds a bcrypt
// hash once persisted, never raw input.
type User struct {
	ID           string    `json:"_id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"password_hash"` // Never expose in JSON responses.
	Photo        string    `json:"photo" bson:"photo"`
	Phone        string    `json:"phone" bson:"phone"`
	Biography    string    `json:"biography" bson:"biography"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// Public returns a copy of the user with the password hash cleared. This is
// the form handed to downstream handlers through the request context.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.PasswordHash = ""
	return &cp
}

// UserUpdate is a partial update of a user row. Nil fields are left alone.
// PasswordHash must already be hashed; only the service sets it.
type UserUpdate struct {
	Username     *string
	Photo        *string
	Phone        *string
	Biography    *string
	PasswordHash *string
}

// IsEmpty reports whether the update touches no fields.
func (u UserUpdate) IsEmpty() bool {
	return u.Username == nil && u.Photo == nil && u.Phone == nil &&
		u.Biography == nil && u.PasswordHash == nil
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted to POST /api/users/register.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Photo     string `json:"photo"`
	Phone     string `json:"phone"`
	Biography string `json:"biography"`
}

// LoginRequest holds the data submitted to POST /api/users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest holds the optional profile fields for PATCH
// /api/users/update. Email is deliberately absent: it is immutable.
type UpdateProfileRequest struct {
	Username  *string `json:"username"`
	Photo     *string `json:"photo"`
	Phone     *string `json:"phone"`
	Biography *string `json:"biography"`
}

// ChangePasswordRequest holds the data for PATCH /api/users/changePwd.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ForgotPasswordRequest holds the data for POST /api/users/forgotPwd.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest holds the data for PUT /api/users/resetPwd/:resetToken.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the input for creating a new user.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Photo     string
	Phone     string
	Biography string
}

// LoginInput is the input for authenticating a user.
type LoginInput struct {
	Email    string
	Password string
}

// ProfileInput carries optional profile replacements. Empty strings are
// treated like absent fields, matching how the frontend submits forms.
type ProfileInput struct {
	Username  *string
	Photo     *string
	Phone     *string
	Biography *string
}

// RequestMeta carries client details recorded with security events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// --- Response DTOs ---

// AuthResponse is returned by register and login: the public profile plus
// the session token (also set as a cookie).
type AuthResponse struct {
	*User
	Token string `json:"token"`
}

// MessageResponse is a generic success body.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// normalizeEmail lower-cases and trims an email for storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validatePassword checks the password policy. Returns an error message or
// empty string.
func validatePassword(password string) string {
	if password == "" {
		return "password is required"
	}
	if len(password) < minPasswordLen {
		return "password must be at least 6 characters"
	}
	if len(password) > maxPasswordLen {
		return "password must be at most 72 bytes"
	}
	return ""
}

// validateRegisterInput performs server-side validation of a registration.
// Runs before any lookup, hashing or persistence. Returns an error message
// or empty string.
func validateRegisterInput(in *RegisterInput) string {
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return "please enter the required information: username, email and password"
	}
	if len(strings.TrimSpace(in.Username)) > maxUsernameLen {
		return "username must be at most 100 characters"
	}
	email := normalizeEmail(in.Email)
	if len(email) > maxEmailLen || !emailPattern.MatchString(email) {
		return "email entered is not valid"
	}
	if msg := validatePassword(in.Password); msg != "" {
		return msg
	}
	if len(in.Biography) > maxBiographyLen {
		return "biography must be at most 255 characters"
	}
	return ""
}

// validateProfileInput checks the optional profile fields that are present.
func validateProfileInput(in *ProfileInput) string {
	if in.Username != nil && len(strings.TrimSpace(*in.Username)) > maxUsernameLen {
		return "username must be at most 100 characters"
	}
	if in.Biography != nil && len(*in.Biography) > maxBiographyLen {
		return "biography must be at most 255 characters"
	}
	return ""
}

// orDefault returns v trimmed, or def when v is blank.
func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
