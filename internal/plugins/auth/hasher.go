package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultHashCost is the bcrypt work factor for every stored password.
const DefaultHashCost = 10

// PasswordHasher turns plaintext passwords into salted one-way hashes and
// checks candidates against them.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) bool
}

// BcryptHasher is a PasswordHasher backed by bcrypt. Concurrent hash and
// verify calls are bounded by a weighted semaphore since both are CPU-bound.
type BcryptHasher struct {
	cost    int
	pool    *semaphore.Weighted
	observe func(op string, d time.Duration)
}

// HasherOption configures a BcryptHasher.
type HasherOption func(*BcryptHasher)

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) HasherOption {
	return func(h *BcryptHasher) { h.cost = cost }
}

// WithObserver reports the duration of every hash and verify call,
// including time spent waiting for a slot.
func WithObserver(fn func(op string, d time.Duration)) HasherOption {
	return func(h *BcryptHasher) { h.observe = fn }
}

// NewBcryptHasher creates a hasher allowing at most concurrency simultaneous
// bcrypt operations.
func NewBcryptHasher(concurrency int, opts ...HasherOption) *BcryptHasher {
	if concurrency < 1 {
		concurrency = 1
	}
	h := &BcryptHasher{
		cost:    DefaultHashCost,
		pool:    semaphore.NewWeighted(int64(concurrency)),
		observe: func(string, time.Duration) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash returns a bcrypt hash of plaintext with a fresh random salt. Waiting
// for a hashing slot honours ctx cancellation.
func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	defer h.timed("hash")()
	if err := h.pool.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for hash slot: %w", err)
	}
	defer h.pool.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A malformed hash or a
// cancelled context counts as a mismatch.
func (h *BcryptHasher) Verify(ctx context.Context, plaintext, hash string) bool {
	defer h.timed("verify")()
	if err := h.pool.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.pool.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	return err == nil
}

// timed starts a measurement and returns the func that reports it.
func (h *BcryptHasher) timed(op string) func() {
	start := time.Now()
	return func() { h.observe(op, time.Since(start)) }
}
