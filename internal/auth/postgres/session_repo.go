// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/digitalwardrobe/authd/internal/auth"
)

const sessionColumns = `id, user_id, token, refresh_token, device_info,
	ip_address, user_agent, is_active, expires_at, created_at, updated_at`

// SessionRepository implements auth.SessionRepository using PostgreSQL.
// Every "active" predicate is `is_active AND expires_at > now()`, baked
// into the queries so call sites cannot drift.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token, refresh_token, device_info,
			ip_address, user_agent, is_active, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.Token,
		session.RefreshToken,
		session.DeviceInfo,
		session.IPAddress,
		session.UserAgent,
		session.IsActive,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("INTERNAL_SESSION_CREATE_FAILED").
				With("operation", "insert session").
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("INTERNAL_SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetActiveByRefreshToken retrieves the active, non-expired session
// holding the refresh token value.
func (r *SessionRepository) GetActiveByRefreshToken(ctx context.Context, refreshToken string) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE refresh_token = $1 AND is_active AND expires_at > now()
	`, refreshToken)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INTERNAL_SESSION_GET_FAILED").
			With("operation", "get session by refresh token").
			Wrap(err)
	}
	return session, nil
}

// GetActiveByID retrieves an active, non-expired session scoped to its
// owning user.
func (r *SessionRepository) GetActiveByID(ctx context.Context, id, userID ulid.ULID) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1 AND user_id = $2 AND is_active AND expires_at > now()
	`, id.String(), userID.String())

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INTERNAL_SESSION_GET_FAILED").
			With("operation", "get session by id").
			With("id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// RotateRefreshToken atomically replaces the stored refresh token. The
// WHERE clause matches the current value on an active, non-expired row,
// so concurrent rotations with the same presented token race on a single
// conditional update: exactly one wins, the rest see zero rows and get
// ErrNotFound.
func (r *SessionRepository) RotateRefreshToken(ctx context.Context, id ulid.ULID, current, next string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET refresh_token = $3, updated_at = now()
		WHERE id = $1 AND refresh_token = $2 AND is_active AND expires_at > now()
	`, id.String(), current, next)
	if err != nil {
		return oops.Code("INTERNAL_SESSION_UPDATE_FAILED").
			With("operation", "rotate refresh token").
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

// Deactivate marks one session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = false, updated_at = now()
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("INTERNAL_SESSION_UPDATE_FAILED").
			With("operation", "deactivate session").
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

// DeactivateForUser marks a session inactive only when it belongs to
// userID. Zero rows affected is deliberately not an error: revoking a
// session across users must not leak whether the session exists.
func (r *SessionRepository) DeactivateForUser(ctx context.Context, id, userID ulid.ULID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = false, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, id.String(), userID.String())
	if err != nil {
		return oops.Code("INTERNAL_SESSION_UPDATE_FAILED").
			With("operation", "deactivate session for user").
			With("id", id.String()).
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeactivateAllForUser marks every session of the user inactive.
func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = false, updated_at = now()
		WHERE user_id = $1 AND is_active
	`, userID.String())
	if err != nil {
		return oops.Code("INTERNAL_SESSION_UPDATE_FAILED").
			With("operation", "deactivate all sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// ListActiveForUser returns the user's active, non-expired sessions,
// newest first.
func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND is_active AND expires_at > now()
		ORDER BY created_at DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("INTERNAL_SESSION_GET_FAILED").
			With("operation", "list sessions for user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("INTERNAL_SESSION_GET_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("INTERNAL_SESSION_GET_FAILED").
			With("operation", "iterate session rows").
			Wrap(err)
	}

	return sessions, nil
}

// PurgeExpiredOrInactive hard-deletes expired or inactive rows and
// returns the count. Sessions are never reactivated, so this cannot race
// with a legitimate write.
func (r *SessionRepository) PurgeExpiredOrInactive(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at <= now() OR NOT is_active
	`)
	if err != nil {
		return 0, oops.Code("INTERNAL_SESSION_PURGE_FAILED").
			With("operation", "purge sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a session row into the domain type.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		session   auth.Session
		idStr     string
		userIDStr string
	)
	err := row.Scan(
		&idStr,
		&userIDStr,
		&session.Token,
		&session.RefreshToken,
		&session.DeviceInfo,
		&session.IPAddress,
		&session.UserAgent,
		&session.IsActive,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("INTERNAL_CORRUPT_ROW").
			With("id", idStr).
			Wrapf(err, "corrupt session ID in database")
	}
	session.UserID, err = ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("INTERNAL_CORRUPT_ROW").
			With("user_id", userIDStr).
			Wrapf(err, "corrupt user ID in database")
	}
	return &session, nil
}
