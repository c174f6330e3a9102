package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// resetTokenBytes is the entropy of a raw reset token: 32 bytes, hex-encoded
// to 64 characters.
const resetTokenBytes = 32

// ErrInvalidResetToken is returned for every reset token that cannot be
// used: unknown, expired, or already consumed. Callers cannot tell these
// apart.
var ErrInvalidResetToken = errors.New("invalid or expired token")

// ErrResetNotFound is returned by a ResetRepository when no record matches.
var ErrResetNotFound = errors.New("reset record not found")

// ResetRecord is the stored half of a password reset token. Only the
// SHA-256 hash of the raw token is kept.
type ResetRecord struct {
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ResetRepository stores reset records. Replace and Take must be atomic so
// that an identity never has two live records and a record is consumed at
// most once.
type ResetRepository interface {
	// Replace deletes any record of rec.UserID and stores rec.
	Replace(ctx context.Context, rec ResetRecord) error
	// Take removes and returns the record with the given hash.
	Take(ctx context.Context, tokenHash string) (*ResetRecord, error)
	FindByHash(ctx context.Context, tokenHash string) (*ResetRecord, error)
	FindByIdentity(ctx context.Context, userID string) (*ResetRecord, error)
	DeleteByIdentity(ctx context.Context, userID string) error
}

// passwordWriter is the slice of the credential store the reset manager
// needs to install a new password hash.
type passwordWriter interface {
	UpdateFields(ctx context.Context, id string, upd UserUpdate) error
}

// ResetManager issues and redeems password reset tokens.
type ResetManager struct {
	store  ResetRepository
	users  passwordWriter
	hasher PasswordHasher
	ttl    time.Duration
	now    func() time.Time
}

// ResetOption configures a ResetManager.
type ResetOption func(*ResetManager)

// WithResetClock replaces the wall clock, for tests.
func WithResetClock(now func() time.Time) ResetOption {
	return func(m *ResetManager) { m.now = now }
}

// NewResetManager creates a reset manager whose tokens live for ttl.
func NewResetManager(store ResetRepository, users passwordWriter, hasher PasswordHasher, ttl time.Duration, opts ...ResetOption) *ResetManager {
	m := &ResetManager{
		store:  store,
		users:  users,
		hasher: hasher,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestReset creates a fresh reset token for userID, replacing any earlier
// one, and returns the raw token. The raw token is never stored.
func (m *ResetManager) RequestReset(ctx context.Context, userID string) (string, error) {
	raw, err := generateResetToken()
	if err != nil {
		return "", fmt.Errorf("generating reset token: %w", err)
	}

	now := m.now().UTC()
	rec := ResetRecord{
		UserID:    userID,
		TokenHash: hashResetToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Replace(ctx, rec); err != nil {
		return "", fmt.Errorf("storing reset record: %w", err)
	}
	return raw, nil
}

// TTL returns how long issued tokens stay valid.
func (m *ResetManager) TTL() time.Duration {
	return m.ttl
}

// Revoke drops userID's outstanding token, if any.
func (m *ResetManager) Revoke(ctx context.Context, userID string) error {
	if err := m.store.DeleteByIdentity(ctx, userID); err != nil {
		return fmt.Errorf("revoking reset token: %w", err)
	}
	return nil
}

// ValidateReset reports which identity a raw token belongs to without
// consuming it.
func (m *ResetManager) ValidateReset(ctx context.Context, raw string) (string, error) {
	rec, err := m.lookup(ctx, raw)
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

// ConsumeReset redeems a raw token: the record is taken exactly once and the
// identity's password hash is replaced with a hash of newPassword. Returns
// the identity id. The new password must already be validated.
//
// The record is taken only after the new hash is computed, so a hashing
// failure leaves the token usable. If the final write fails after the take,
// the token is spent and the caller must request a new one.
func (m *ResetManager) ConsumeReset(ctx context.Context, raw, newPassword string) (string, error) {
	rec, err := m.lookup(ctx, raw)
	if err != nil {
		return "", err
	}

	hash, err := m.hasher.Hash(ctx, newPassword)
	if err != nil {
		return "", fmt.Errorf("hashing new password: %w", err)
	}

	taken, err := m.store.Take(ctx, rec.TokenHash)
	if errors.Is(err, ErrResetNotFound) {
		// Lost a race with a concurrent redeem or a newer request.
		return "", ErrInvalidResetToken
	}
	if err != nil {
		return "", fmt.Errorf("taking reset record: %w", err)
	}

	if err := m.users.UpdateFields(ctx, taken.UserID, UserUpdate{PasswordHash: &hash}); err != nil {
		return "", fmt.Errorf("writing new password: %w", err)
	}
	return taken.UserID, nil
}

// lookup finds the live record for raw, treating every miss the same way.
func (m *ResetManager) lookup(ctx context.Context, raw string) (*ResetRecord, error) {
	if raw == "" {
		return nil, ErrInvalidResetToken
	}
	rec, err := m.store.FindByHash(ctx, hashResetToken(raw))
	if errors.Is(err, ErrResetNotFound) {
		return nil, ErrInvalidResetToken
	}
	if err != nil {
		return nil, fmt.Errorf("finding reset record: %w", err)
	}
	if !m.now().Before(rec.ExpiresAt) {
		return nil, ErrInvalidResetToken
	}
	return rec, nil
}

// generateResetToken returns 32 random bytes, hex-encoded.
func generateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashResetToken is the lookup key stored in place of the raw token.
func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
