// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/digitalwardrobe/authd/internal/auth"
	"github.com/digitalwardrobe/authd/internal/auth/mocks"
	"github.com/digitalwardrobe/authd/pkg/errutil"
)

const (
	serviceTestSecret = "0123456789abcdef0123456789abcdef"
	validPassword     = "Password1@"
	storedHash        = "$argon2id$stored"
)

type serviceFixture struct {
	svc      *auth.Service
	users    *mocks.MockUserRepository
	sessions *mocks.MockSessionRepository
	hasher   *mocks.MockPasswordHasher
	issuer   *auth.TokenIssuer
	notified []string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		users:    mocks.NewMockUserRepository(t),
		sessions: mocks.NewMockSessionRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
	}

	issuer, err := auth.NewTokenIssuer([]byte(serviceTestSecret), 0, 0)
	require.NoError(t, err)
	f.issuer = issuer

	svc, err := auth.NewService(f.users, f.sessions, f.hasher, issuer,
		auth.WithResetNotifier(func(_ context.Context, _, token string) {
			f.notified = append(f.notified, token)
		}),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func activeUser() *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		ID:               ulid.Make(),
		Email:            "casey@example.com",
		PasswordHash:     storedHash,
		SubscriptionTier: auth.TierFree,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	issuer, err := auth.NewTokenIssuer([]byte(serviceTestSecret), 0, 0)
	require.NoError(t, err)

	_, err = auth.NewService(nil, sessions, hasher, issuer)
	assert.Error(t, err)
	_, err = auth.NewService(users, nil, hasher, issuer)
	assert.Error(t, err)
	_, err = auth.NewService(users, sessions, nil, issuer)
	assert.Error(t, err)
	_, err = auth.NewService(users, sessions, hasher, nil)
	assert.Error(t, err)

	_, err = auth.NewService(users, sessions, hasher, issuer)
	require.NoError(t, err)
}

func TestRegister_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	username := "casey"

	f.users.On("ExistsByEmailOrUsername", ctx, "casey@example.com", &username).Return(false, nil)
	f.hasher.On("Hash", validPassword).Return(storedHash, nil)

	var createdUser *auth.User
	f.users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Run(func(args mock.Arguments) {
		createdUser = args.Get(1).(*auth.User)
	}).Return(nil)

	var createdSession *auth.Session
	f.sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Run(func(args mock.Arguments) {
		createdSession = args.Get(1).(*auth.Session)
	}).Return(nil)

	result, err := f.svc.Register(ctx, auth.RegisterCredentials{
		Email:       "casey@example.com",
		Password:    validPassword,
		Username:    &username,
		AcceptTerms: true,
	})
	require.NoError(t, err)

	assert.True(t, result.IsNewUser)
	assert.Equal(t, "casey@example.com", result.User.Email)
	assert.False(t, result.User.IsEmailVerified)
	assert.Equal(t, auth.TierFree, result.User.SubscriptionTier)
	require.NotNil(t, result.User.DisplayName)
	assert.Equal(t, "casey", *result.User.DisplayName)

	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.Equal(t, int64((24 * time.Hour).Seconds()), result.Tokens.ExpiresIn)

	// The returned refresh token must be the one stored on the session.
	require.NotNil(t, createdSession)
	assert.Equal(t, createdSession.RefreshToken, result.Tokens.RefreshToken)
	assert.Equal(t, createdUser.ID, createdSession.UserID)

	// New accounts start unverified with a pending verification token.
	require.NotNil(t, createdUser.EmailVerificationToken)
	assert.NotEmpty(t, *createdUser.EmailVerificationToken)
	assert.Equal(t, storedHash, createdUser.PasswordHash)

	// The access token is verifiable and bound to the created session.
	claims, err := f.issuer.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, createdUser.ID.String(), claims.UserID)
	assert.Equal(t, createdSession.ID.String(), claims.SessionID)
}

func TestRegister_MissingFields(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cases := []auth.RegisterCredentials{
		{Password: validPassword, AcceptTerms: true},
		{Email: "casey@example.com", AcceptTerms: true},
		{Email: "casey@example.com", Password: validPassword},
	}
	for _, creds := range cases {
		_, err := f.svc.Register(ctx, creds)
		require.Error(t, err)
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	}
}

func TestRegister_WeakPasswordAndBadEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, auth.RegisterCredentials{
		Email: "not-an-email", Password: validPassword, AcceptTerms: true,
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))

	_, err = f.svc.Register(ctx, auth.RegisterCredentials{
		Email: "casey@example.com", Password: "short", AcceptTerms: true,
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestRegister_DuplicateUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.users.On("ExistsByEmailOrUsername", ctx, "casey@example.com", (*string)(nil)).Return(true, nil)

	_, err := f.svc.Register(ctx, auth.RegisterCredentials{
		Email: "casey@example.com", Password: validPassword, AcceptTerms: true,
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestRegister_DuplicateRaceOnCreate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.users.On("ExistsByEmailOrUsername", ctx, "casey@example.com", (*string)(nil)).Return(false, nil)
	f.hasher.On("Hash", validPassword).Return(storedHash, nil)
	// A concurrent registration wins between the existence check and the
	// insert; the unique index reports it.
	f.users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Return(auth.ErrDuplicate)

	_, err := f.svc.Register(ctx, auth.RegisterCredentials{
		Email: "casey@example.com", Password: validPassword, AcceptTerms: true,
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestLogin_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()

	f.users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	f.hasher.On("Verify", validPassword, storedHash).Return(true)
	f.hasher.On("NeedsUpgrade", storedHash).Return(false)
	f.users.On("UpdateLastLogin", ctx, user.ID, mock.AnythingOfType("time.Time")).Return(nil)
	f.sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)

	ip := "192.0.2.10"
	result, err := f.svc.Login(ctx, auth.LoginCredentials{Email: user.Email, Password: validPassword},
		&auth.DeviceInfo{UserAgent: "wardrobe-ios/2.1"}, &ip)
	require.NoError(t, err)

	assert.False(t, result.IsNewUser)
	assert.Equal(t, user.Email, result.User.Email)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
}

func TestLogin_UnknownEmailAndWrongPasswordLookTheSame(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()

	f.users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)
	// The dummy hash is still verified against for the absent user.
	f.hasher.On("Verify", validPassword, mock.AnythingOfType("string")).Return(false).Once()

	_, unknownErr := f.svc.Login(ctx, auth.LoginCredentials{Email: "ghost@example.com", Password: validPassword}, nil, nil)
	require.Error(t, unknownErr)

	f.users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	f.hasher.On("Verify", "Wrong-pass1@", storedHash).Return(false)

	_, wrongErr := f.svc.Login(ctx, auth.LoginCredentials{Email: user.Email, Password: "Wrong-pass1@"}, nil, nil)
	require.Error(t, wrongErr)

	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	errutil.AssertErrorCode(t, unknownErr, "AUTH_INVALID_CREDENTIALS")
	errutil.AssertErrorCode(t, wrongErr, "AUTH_INVALID_CREDENTIALS")
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	user.IsActive = false

	f.users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	f.hasher.On("Verify", validPassword, storedHash).Return(true)

	_, err := f.svc.Login(ctx, auth.LoginCredentials{Email: user.Email, Password: validPassword}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deactivated")
	errutil.AssertErrorCode(t, err, "AUTH_ACCOUNT_DEACTIVATED")
}

func TestLogin_UpgradesLegacyHash(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	user.PasswordHash = "$2a$12$legacybcrypt"

	f.users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	f.hasher.On("Verify", validPassword, user.PasswordHash).Return(true)
	f.hasher.On("NeedsUpgrade", user.PasswordHash).Return(true)
	f.hasher.On("Hash", validPassword).Return(storedHash, nil)
	f.users.On("UpdatePassword", ctx, user.ID, storedHash).Return(nil)
	f.users.On("UpdateLastLogin", ctx, user.ID, mock.AnythingOfType("time.Time")).Return(nil)
	f.sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)

	_, err := f.svc.Login(ctx, auth.LoginCredentials{Email: user.Email, Password: validPassword}, nil, nil)
	require.NoError(t, err)
}

// Same flow without mock hashers: a user row carrying a real bcrypt hash
// logs in through the argon2id hasher and comes out re-hashed.
func TestLogin_RehashesStoredBcryptHash(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{Memory: 1024, Time: 1, Threads: 1})
	issuer, err := auth.NewTokenIssuer([]byte(serviceTestSecret), 0, 0)
	require.NoError(t, err)

	svc, err := auth.NewService(users, sessions, hasher, issuer)
	require.NoError(t, err)

	ctx := context.Background()
	user := activeUser()

	bc, err := auth.NewBcryptHasher(auth.MinBcryptCost)
	require.NoError(t, err)
	user.PasswordHash, err = bc.Hash(validPassword)
	require.NoError(t, err)

	var rehashed string
	users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	users.On("UpdatePassword", ctx, user.ID, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			rehashed = args.String(2)
		}).Return(nil)
	users.On("UpdateLastLogin", ctx, user.ID, mock.AnythingOfType("time.Time")).Return(nil)
	sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)

	result, err := svc.Login(ctx, auth.LoginCredentials{Email: user.Email, Password: validPassword}, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tokens.AccessToken)

	// The replacement credential is argon2id and still matches the password.
	assert.True(t, strings.HasPrefix(rehashed, "$argon2id$"))
	assert.True(t, hasher.Verify(validPassword, rehashed))
	assert.False(t, hasher.NeedsUpgrade(rehashed))
}

func TestRefresh_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()

	oldRefresh, err := f.issuer.IssueRefresh()
	require.NoError(t, err)

	session := &auth.Session{
		ID:           ulid.Make(),
		UserID:       user.ID,
		Token:        "opaque",
		RefreshToken: oldRefresh,
		IsActive:     true,
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	f.sessions.On("GetActiveByRefreshToken", ctx, oldRefresh).Return(session, nil)
	f.users.On("GetByID", ctx, user.ID).Return(user, nil)
	f.sessions.On("RotateRefreshToken", ctx, session.ID, oldRefresh, mock.AnythingOfType("string")).Return(nil)

	pair, err := f.svc.Refresh(ctx, oldRefresh)
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, oldRefresh, pair.RefreshToken)
	assert.Equal(t, int64((24 * time.Hour).Seconds()), pair.ExpiresIn)

	claims, err := f.issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.ID.String(), claims.SessionID)
}

func TestRefresh_GarbageToken(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Refresh(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
}

func TestRefresh_NoActiveSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	refresh, err := f.issuer.IssueRefresh()
	require.NoError(t, err)

	// Valid signature, but the session was revoked or already rotated away.
	f.sessions.On("GetActiveByRefreshToken", ctx, refresh).Return(nil, auth.ErrNotFound)

	_, err = f.svc.Refresh(ctx, refresh)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
	assert.Contains(t, err.Error(), "invalid or expired refresh token")
}

func TestRefresh_RotationLostRace(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()

	refresh, err := f.issuer.IssueRefresh()
	require.NoError(t, err)

	session := &auth.Session{
		ID:           ulid.Make(),
		UserID:       user.ID,
		Token:        "opaque",
		RefreshToken: refresh,
		IsActive:     true,
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	f.sessions.On("GetActiveByRefreshToken", ctx, refresh).Return(session, nil)
	f.users.On("GetByID", ctx, user.ID).Return(user, nil)
	// A concurrent refresh rotated first; the conditional update misses.
	f.sessions.On("RotateRefreshToken", ctx, session.ID, refresh, mock.AnythingOfType("string")).Return(auth.ErrNotFound)

	_, err = f.svc.Refresh(ctx, refresh)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
	assert.Contains(t, err.Error(), "invalid or expired refresh token")
}

func TestRefresh_InactiveUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	user.IsActive = false

	refresh, err := f.issuer.IssueRefresh()
	require.NoError(t, err)

	session := &auth.Session{
		ID:           ulid.Make(),
		UserID:       user.ID,
		Token:        "opaque",
		RefreshToken: refresh,
		IsActive:     true,
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	f.sessions.On("GetActiveByRefreshToken", ctx, refresh).Return(session, nil)
	f.users.On("GetByID", ctx, user.ID).Return(user, nil)

	_, err = f.svc.Refresh(ctx, refresh)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
}

func TestLogout(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sessionID := ulid.Make()

	f.sessions.On("Deactivate", ctx, sessionID).Return(nil)
	require.NoError(t, f.svc.Logout(ctx, sessionID))
}

func TestLogout_UnknownSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sessionID := ulid.Make()

	f.sessions.On("Deactivate", ctx, sessionID).Return(auth.ErrNotFound)

	err := f.svc.Logout(ctx, sessionID)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
}

func TestVerifyUser_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	sessionID := ulid.Make()

	token, err := f.issuer.IssueAccess(user, sessionID)
	require.NoError(t, err)

	session := &auth.Session{
		ID:        sessionID,
		UserID:    user.ID,
		IsActive:  true,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	f.users.On("GetByID", ctx, user.ID).Return(user, nil)
	f.sessions.On("GetActiveByID", ctx, sessionID, user.ID).Return(session, nil)

	safe, err := f.svc.VerifyUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, safe.ID)
	assert.Equal(t, user.Email, safe.Email)
}

func TestVerifyUser_RevokedSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	sessionID := ulid.Make()

	token, err := f.issuer.IssueAccess(user, sessionID)
	require.NoError(t, err)

	f.users.On("GetByID", ctx, user.ID).Return(user, nil)
	// Token still cryptographically valid, session revoked underneath it.
	f.sessions.On("GetActiveByID", ctx, sessionID, user.ID).Return(nil, auth.ErrNotFound)

	_, err = f.svc.VerifyUser(ctx, token)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
	assert.Contains(t, err.Error(), "session expired or invalid")
}

func TestVerifyUser_InactiveUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	user.IsActive = false
	sessionID := ulid.Make()

	token, err := f.issuer.IssueAccess(user, sessionID)
	require.NoError(t, err)

	f.users.On("GetByID", ctx, user.ID).Return(user, nil)

	_, err = f.svc.VerifyUser(ctx, token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found or inactive")
}

func TestVerifyUser_RefreshTokenRejected(t *testing.T) {
	f := newServiceFixture(t)

	refresh, err := f.issuer.IssueRefresh()
	require.NoError(t, err)

	_, err = f.svc.VerifyUser(context.Background(), refresh)
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
}

func TestChangePassword_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	newHash := "$argon2id$new"

	f.users.On("GetByID", ctx, user.ID).Return(user, nil)
	f.hasher.On("Verify", validPassword, storedHash).Return(true)
	f.hasher.On("Hash", "NewPass1@").Return(newHash, nil)
	f.users.On("UpdatePassword", ctx, user.ID, newHash).Return(nil)
	// Every session dies with the old credential.
	f.sessions.On("DeactivateAllForUser", ctx, user.ID).Return(nil)

	require.NoError(t, f.svc.ChangePassword(ctx, user.ID, validPassword, "NewPass1@"))
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()

	f.users.On("GetByID", ctx, user.ID).Return(user, nil)
	f.hasher.On("Verify", "Wrong-pass1@", storedHash).Return(false)

	err := f.svc.ChangePassword(ctx, user.ID, "Wrong-pass1@", "NewPass1@")
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
	assert.Contains(t, err.Error(), "current password is incorrect")
}

func TestChangePassword_WeakNewPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()

	f.users.On("GetByID", ctx, user.ID).Return(user, nil)
	f.hasher.On("Verify", validPassword, storedHash).Return(true)

	err := f.svc.ChangePassword(ctx, user.ID, validPassword, "weak")
	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestRequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost@example.com"))
	assert.Empty(t, f.notified)
}

func TestRequestPasswordReset_StoresHashNotifiesRaw(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()

	var storedTokenHash string
	f.users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	f.users.On("SetResetToken", ctx, user.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			storedTokenHash = args.String(2)
		}).Return(nil)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, user.Email))

	require.Len(t, f.notified, 1)
	// The notifier gets the raw token; the store only ever sees its hash.
	assert.NotEqual(t, f.notified[0], storedTokenHash)
	assert.NotEmpty(t, storedTokenHash)
}

func TestResetPassword_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	newHash := "$argon2id$new"

	f.users.On("GetByActiveResetToken", ctx, mock.AnythingOfType("string")).Return(user, nil)
	f.hasher.On("Hash", "NewPass1@").Return(newHash, nil)
	f.users.On("UpdatePassword", ctx, user.ID, newHash).Return(nil)
	f.sessions.On("DeactivateAllForUser", ctx, user.ID).Return(nil)

	require.NoError(t, f.svc.ResetPassword(ctx, "raw-reset-token", "NewPass1@"))
}

func TestResetPassword_InvalidToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	err := f.svc.ResetPassword(ctx, "", "NewPass1@")
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))

	f.users.On("GetByActiveResetToken", ctx, mock.AnythingOfType("string")).Return(nil, auth.ErrNotFound)

	err = f.svc.ResetPassword(ctx, "expired-or-bogus", "NewPass1@")
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
	assert.Contains(t, err.Error(), "invalid or expired reset token")
}

func TestVerifyEmail_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := activeUser()
	token := "verification-token"
	user.EmailVerificationToken = &token

	f.users.On("GetByActiveVerificationToken", ctx, token).Return(user, nil)
	f.users.On("MarkEmailVerified", ctx, user.ID).Return(nil)

	safe, err := f.svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, safe.IsEmailVerified)
}

func TestVerifyEmail_InvalidToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyEmail(ctx, "")
	require.Error(t, err)

	f.users.On("GetByActiveVerificationToken", ctx, "stale").Return(nil, auth.ErrNotFound)

	_, err = f.svc.VerifyEmail(ctx, "stale")
	require.Error(t, err)
	assert.Equal(t, auth.KindAuth, auth.KindOf(err))
}

func TestGetUserSessions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := ulid.Make()

	stored := []*auth.Session{
		{ID: ulid.Make(), UserID: userID, IsActive: true},
		{ID: ulid.Make(), UserID: userID, IsActive: true},
	}
	f.sessions.On("ListActiveForUser", ctx, userID).Return(stored, nil)

	sessions, err := f.svc.GetUserSessions(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, stored, sessions)
}

func TestRevokeSession_CrossUserIsSilent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sessionID := ulid.Make()
	userID := ulid.Make()

	// The store reports zero rows affected as success; another user's
	// session simply does not match the scoped predicate.
	f.sessions.On("DeactivateForUser", ctx, sessionID, userID).Return(nil)

	require.NoError(t, f.svc.RevokeSession(ctx, sessionID, userID))
}
