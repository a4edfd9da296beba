// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/digitalwardrobe/authd/internal/auth"
)

const userColumns = `id, email, username, first_name, last_name, display_name,
	password_hash, is_email_verified, email_verification_token, email_verification_expires,
	password_reset_token, password_reset_expires, subscription_tier, is_active,
	last_login_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, username, first_name, last_name, display_name,
			password_hash, is_email_verified, email_verification_token, email_verification_expires,
			password_reset_token, password_reset_expires, subscription_tier, is_active,
			last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		user.ID.String(),
		user.Email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.DisplayName,
		user.PasswordHash,
		user.IsEmailVerified,
		user.EmailVerificationToken,
		user.EmailVerificationExpires,
		user.PasswordResetToken,
		user.PasswordResetExpires,
		user.SubscriptionTier,
		user.IsActive,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("VALIDATION_USER_EXISTS").
				With("operation", "insert user").
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("INTERNAL_USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INTERNAL_USER_GET_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INTERNAL_USER_GET_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// ExistsByEmailOrUsername reports whether any user holds the email or the
// optional username.
func (r *UserRepository) ExistsByEmailOrUsername(ctx context.Context, email string, username *string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE LOWER(email) = LOWER($1)
			   OR ($2::text IS NOT NULL AND LOWER(username) = LOWER($2))
		)
	`, email, username).Scan(&exists)
	if err != nil {
		return false, oops.Code("INTERNAL_USER_GET_FAILED").
			With("operation", "check user existence").
			Wrap(err)
	}
	return exists, nil
}

// UpdateLastLogin records a successful login timestamp.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("INTERNAL_USER_UPDATE_FAILED").
			With("operation", "update last_login_at").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any pending reset
// token in the same statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = now()
		WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("INTERNAL_USER_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetResetToken stores a reset token hash and its expiry.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_reset_token = $2,
			password_reset_expires = $3,
			updated_at = now()
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt)
	if err != nil {
		return oops.Code("INTERNAL_USER_UPDATE_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// GetByActiveResetToken retrieves the user holding a non-expired reset
// token hash. The expiry predicate lives here, not at the call sites.
func (r *UserRepository) GetByActiveResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE password_reset_token = $1 AND password_reset_expires > now()
	`, tokenHash)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INTERNAL_USER_GET_FAILED").
			With("operation", "get user by reset token").
			Wrap(err)
	}
	return user, nil
}

// GetByActiveVerificationToken retrieves the user holding a non-expired
// email verification token.
func (r *UserRepository) GetByActiveVerificationToken(ctx context.Context, token string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email_verification_token = $1 AND email_verification_expires > now()
	`, token)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INTERNAL_USER_GET_FAILED").
			With("operation", "get user by verification token").
			Wrap(err)
	}
	return user, nil
}

// MarkEmailVerified flags the email as verified and clears the
// verification token.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET is_email_verified = true,
			email_verification_token = NULL,
			email_verification_expires = NULL,
			updated_at = now()
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("INTERNAL_USER_UPDATE_FAILED").
			With("operation", "mark email verified").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a user row into the domain type.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user  auth.User
		idStr string
	)
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.DisplayName,
		&user.PasswordHash,
		&user.IsEmailVerified,
		&user.EmailVerificationToken,
		&user.EmailVerificationExpires,
		&user.PasswordResetToken,
		&user.PasswordResetExpires,
		&user.SubscriptionTier,
		&user.IsActive,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("INTERNAL_CORRUPT_ROW").
			With("id", idStr).
			Wrapf(err, "corrupt user ID in database")
	}
	return &user, nil
}
