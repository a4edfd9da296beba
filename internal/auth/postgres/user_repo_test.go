// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalwardrobe/authd/internal/auth"
	"github.com/digitalwardrobe/authd/internal/auth/postgres"
)

var userCols = []string{
	"id", "email", "username", "first_name", "last_name", "display_name",
	"password_hash", "is_email_verified", "email_verification_token", "email_verification_expires",
	"password_reset_token", "password_reset_expires", "subscription_tier", "is_active",
	"last_login_at", "created_at", "updated_at",
}

func newUserMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.UserRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock, postgres.NewUserRepository(mock)
}

func testUser() *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		ID:               ulid.Make(),
		Email:            "casey@example.com",
		PasswordHash:     "$argon2id$stored",
		SubscriptionTier: auth.TierFree,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func userRow(user *auth.User) *pgxmock.Rows {
	return pgxmock.NewRows(userCols).AddRow(
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
}

func TestUserRepository_Create(t *testing.T) {
	mock, repo := newUserMock(t)
	user := testUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID.String(), user.Email, user.Username, user.FirstName,
			user.LastName, user.DisplayName, user.PasswordHash, user.IsEmailVerified,
			user.EmailVerificationToken, user.EmailVerificationExpires,
			user.PasswordResetToken, user.PasswordResetExpires,
			user.SubscriptionTier, user.IsActive, user.LastLoginAt,
			user.CreatedAt, user.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), user))
}

func TestUserRepository_Create_Duplicate(t *testing.T) {
	mock, repo := newUserMock(t)
	user := testUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID.String(), user.Email, user.Username, user.FirstName,
			user.LastName, user.DisplayName, user.PasswordHash, user.IsEmailVerified,
			user.EmailVerificationToken, user.EmailVerificationExpires,
			user.PasswordResetToken, user.PasswordResetExpires,
			user.SubscriptionTier, user.IsActive, user.LastLoginAt,
			user.CreatedAt, user.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := repo.Create(context.Background(), user)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrDuplicate))
}

func TestUserRepository_GetByID(t *testing.T) {
	mock, repo := newUserMock(t)
	user := testUser()

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(user.ID.String()).
		WillReturnRows(userRow(user))

	got, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, got.Email)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	mock, repo := newUserMock(t)
	id := ulid.Make()

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(userCols))

	_, err := repo.GetByID(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrNotFound))
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock, repo := newUserMock(t)
	user := testUser()

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("CASEY@example.com").
		WillReturnRows(userRow(user))

	got, err := repo.GetByEmail(context.Background(), "CASEY@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)
}

func TestUserRepository_ExistsByEmailOrUsername(t *testing.T) {
	mock, repo := newUserMock(t)
	username := "casey"

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("casey@example.com", &username).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByEmailOrUsername(context.Background(), "casey@example.com", &username)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserRepository_UpdateLastLogin_NotFound(t *testing.T) {
	mock, repo := newUserMock(t)
	id := ulid.Make()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE users").
		WithArgs(id.String(), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateLastLogin(context.Background(), id, at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrNotFound))
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	mock, repo := newUserMock(t)
	id := ulid.Make()

	mock.ExpectExec("UPDATE users").
		WithArgs(id.String(), "$argon2id$new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), id, "$argon2id$new"))
}

func TestUserRepository_SetResetToken(t *testing.T) {
	mock, repo := newUserMock(t)
	id := ulid.Make()
	expiresAt := time.Now().UTC().Add(time.Hour)

	mock.ExpectExec("UPDATE users").
		WithArgs(id.String(), "token-hash", expiresAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.SetResetToken(context.Background(), id, "token-hash", expiresAt))
}

func TestUserRepository_GetByActiveResetToken_NotFound(t *testing.T) {
	mock, repo := newUserMock(t)

	// Expired tokens fall out of the predicate, indistinguishable from
	// absent ones.
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("stale-hash").
		WillReturnRows(pgxmock.NewRows(userCols))

	_, err := repo.GetByActiveResetToken(context.Background(), "stale-hash")
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrNotFound))
}

func TestUserRepository_GetByActiveVerificationToken(t *testing.T) {
	mock, repo := newUserMock(t)
	user := testUser()
	token := "verification-token"
	user.EmailVerificationToken = &token

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(token).
		WillReturnRows(userRow(user))

	got, err := repo.GetByActiveVerificationToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestUserRepository_MarkEmailVerified(t *testing.T) {
	mock, repo := newUserMock(t)
	id := ulid.Make()

	mock.ExpectExec("UPDATE users").
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkEmailVerified(context.Background(), id))
}
