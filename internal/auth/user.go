// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Password policy constraints.
const (
	MinPasswordLength = 8
	// PasswordSymbols is the fixed set of accepted special characters.
	PasswordSymbols = "@$!%*?&"
)

// Subscription tiers.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// emailRegex matches a local@domain.tld shape without whitespace.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User represents a durable account identity. Secret-bearing fields
// (PasswordHash, the reset and verification tokens) must never leave the
// service boundary; external reads go through ToSafeUser.
type User struct {
	ID          ulid.ULID
	Email       string
	Username    *string
	FirstName   *string
	LastName    *string
	DisplayName *string

	// PasswordHash is empty for accounts without a local credential
	// (e.g. federated identities, which are out of scope here).
	PasswordHash string

	IsEmailVerified          bool
	EmailVerificationToken   *string
	EmailVerificationExpires *time.Time

	// Reset token is stored as a SHA-256 hash, never the plaintext value.
	PasswordResetToken   *string
	PasswordResetExpires *time.Time

	SubscriptionTier string
	IsActive         bool
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SafeUser is the external-facing projection of User with every secret
// field stripped.
type SafeUser struct {
	ID               ulid.ULID  `json:"id"`
	Email            string     `json:"email"`
	Username         *string    `json:"username,omitempty"`
	FirstName        *string    `json:"firstName,omitempty"`
	LastName         *string    `json:"lastName,omitempty"`
	DisplayName      *string    `json:"displayName,omitempty"`
	IsEmailVerified  bool       `json:"isEmailVerified"`
	SubscriptionTier string     `json:"subscriptionTier"`
	IsActive         bool       `json:"isActive"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ToSafeUser strips all secret fields from the user.
func (u *User) ToSafeUser() *SafeUser {
	return &SafeUser{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		DisplayName:      u.DisplayName,
		IsEmailVerified:  u.IsEmailVerified,
		SubscriptionTier: u.SubscriptionTier,
		IsActive:         u.IsActive,
		LastLoginAt:      u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// ValidateEmail checks the local@domain.tld shape.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return oops.Code("VALIDATION_INVALID_EMAIL").Errorf("invalid email format")
	}
	return nil
}

// ValidatePassword enforces the password strength policy: at least
// MinPasswordLength characters with one uppercase letter, one lowercase
// letter, one digit, and one symbol from PasswordSymbols. Characters
// outside letters, digits, and PasswordSymbols are rejected.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("VALIDATION_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters long and contain uppercase, lowercase, number, and special character", MinPasswordLength)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		default:
			return oops.Code("VALIDATION_WEAK_PASSWORD").
				Errorf("password contains unsupported characters")
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return oops.Code("VALIDATION_WEAK_PASSWORD").
			Errorf("password must contain uppercase, lowercase, number, and special character")
	}
	return nil
}

// DeriveDisplayName picks a display name for a new account: full name when
// both parts are present, otherwise the username, otherwise the email
// local part.
func DeriveDisplayName(email string, username, firstName, lastName *string) string {
	if firstName != nil && lastName != nil && *firstName != "" && *lastName != "" {
		return *firstName + " " + *lastName
	}
	if username != nil && *username != "" {
		return *username
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// UserRepository manages user persistence. Implementations return
// ErrNotFound (wrapped) for absent rows and ErrDuplicate for unique
// constraint violations.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// ExistsByEmailOrUsername reports whether any user holds the email
	// or, when username is non-nil, the username.
	ExistsByEmailOrUsername(ctx context.Context, email string, username *string) (bool, error)

	// UpdateLastLogin records a successful login timestamp.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePassword replaces the password hash and clears any pending
	// reset token in the same statement.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetResetToken stores a reset token hash and its expiry.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// GetByActiveResetToken retrieves the user holding a non-expired
	// reset token hash. The expiry predicate lives in the query.
	GetByActiveResetToken(ctx context.Context, tokenHash string) (*User, error)

	// GetByActiveVerificationToken retrieves the user holding a
	// non-expired email verification token.
	GetByActiveVerificationToken(ctx context.Context, token string) (*User, error)

	// MarkEmailVerified flags the email as verified and clears the
	// verification token.
	MarkEmailVerified(ctx context.Context, id ulid.ULID) error
}
