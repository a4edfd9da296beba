// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes    = 32                 // 32 bytes = 64 hex chars
	DefaultSessionExpiry = 7 * 24 * time.Hour // matches the refresh token TTL
)

// Session binds a device/login instance to a user. It is independently
// revocable: logout, logout-all, password change/reset, and explicit
// revocation all flip IsActive to false. Expired or inactive rows are
// hard-deleted only by the purge sweep.
type Session struct {
	ID           ulid.ULID
	UserID       ulid.ULID
	Token        string // opaque session token
	RefreshToken string
	DeviceInfo   *string
	IPAddress    *string
	UserAgent    *string
	IsActive     bool
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSession creates a validated Session. DeviceInfo, IPAddress, and
// UserAgent are optional. ExpiresAt must be in the future.
func NewSession(userID ulid.ULID, token, refreshToken string, deviceInfo, ipAddress, userAgent *string, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("session token cannot be empty")
	}
	if refreshToken == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("refresh token cannot be empty")
	}
	if !expiresAt.After(time.Now()) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be in the future")
	}

	now := time.Now().UTC()
	return &Session{
		ID:           ulid.Make(),
		UserID:       userID,
		Token:        token,
		RefreshToken: refreshToken,
		DeviceInfo:   deviceInfo,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		IsActive:     true,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsExpiredAt returns true if the session would be expired at the given
// time. Useful for testing with deterministic time values.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateOpaqueToken creates a secure random session token.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("INTERNAL_TOKEN_GENERATE").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// SessionRepository manages session persistence. Every "active" lookup
// filters on is_active AND expires_at > now(); the active flag alone is
// never trusted.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetActiveByRefreshToken retrieves the active, non-expired session
	// holding the refresh token value.
	GetActiveByRefreshToken(ctx context.Context, refreshToken string) (*Session, error)

	// GetActiveByID retrieves an active, non-expired session scoped to
	// its owning user.
	GetActiveByID(ctx context.Context, id, userID ulid.ULID) (*Session, error)

	// RotateRefreshToken atomically replaces the stored refresh token,
	// matching the current value. Returns ErrNotFound (wrapped) when the
	// current value no longer matches: a concurrent rotation won, or the
	// session is inactive or expired. At most one concurrent
	// caller can succeed per stored value.
	RotateRefreshToken(ctx context.Context, id ulid.ULID, current, next string) error

	// Deactivate marks one session inactive.
	Deactivate(ctx context.Context, id ulid.ULID) error

	// DeactivateForUser marks a session inactive only when it belongs to
	// userID. Zero rows affected is not an error.
	DeactivateForUser(ctx context.Context, id, userID ulid.ULID) error

	// DeactivateAllForUser marks every session of the user inactive.
	DeactivateAllForUser(ctx context.Context, userID ulid.ULID) error

	// ListActiveForUser returns the user's active, non-expired sessions,
	// newest first.
	ListActiveForUser(ctx context.Context, userID ulid.ULID) ([]*Session, error)

	// PurgeExpiredOrInactive hard-deletes expired or inactive rows and
	// returns the count. This is the only hard-delete path.
	PurgeExpiredOrInactive(ctx context.Context) (int64, error)
}
