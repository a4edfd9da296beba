// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token expiries for the verification and reset flows.
const (
	VerificationTokenExpiry = 24 * time.Hour
	ResetTokenExpiry        = time.Hour
)

// dummyPasswordHash is verified against when a user doesn't exist, so
// response time stays consistent with the real-user path. This is NOT a
// credential; it can never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing hardening.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ResetNotifier hands a password-reset token off to an out-of-scope
// notification channel (e.g. an email queue). Failures are logged, never
// surfaced to the caller.
type ResetNotifier func(ctx context.Context, email, token string)

// Service orchestrates the register/login/refresh/logout/password-reset
// and session-management flows, composing the hasher, the token issuer,
// and the persistence adapters. It holds no mutable state; every call is
// an independent request handler over the shared persistence resource.
type Service struct {
	users      UserRepository
	sessions   SessionRepository
	hasher     PasswordHasher
	tokens     *TokenIssuer
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	notifier   ResetNotifier
	clock      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured log sink.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSessionTTL sets the session lifetime (default 7 days).
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithResetNotifier sets the password-reset hand-off.
func WithResetNotifier(n ResetNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a Service. All four dependencies are required.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, tokens *TokenIssuer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}

	s := &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		sessionTTL: DefaultSessionExpiry,
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a new user, opens a first session, and returns the safe
// user projection with a token pair.
func (s *Service) Register(ctx context.Context, creds RegisterCredentials) (*AuthResult, error) {
	if creds.Email == "" || creds.Password == "" || !creds.AcceptTerms {
		s.metrics.recordRegistration("invalid")
		return nil, oops.Code("VALIDATION_MISSING_FIELDS").Errorf("email, password, and terms acceptance are required")
	}
	if err := ValidateEmail(creds.Email); err != nil {
		s.metrics.recordRegistration("invalid")
		return nil, err
	}
	if err := ValidatePassword(creds.Password); err != nil {
		s.metrics.recordRegistration("invalid")
		return nil, err
	}

	exists, err := s.users.ExistsByEmailOrUsername(ctx, creds.Email, creds.Username)
	if err != nil {
		s.metrics.recordRegistration("error")
		return nil, oops.Code("INTERNAL_REGISTER_FAILED").
			With("operation", "check existing user").
			Wrap(err)
	}
	if exists {
		s.metrics.recordRegistration("duplicate")
		return nil, oops.Code("VALIDATION_USER_EXISTS").Errorf("user already exists with this email or username")
	}

	passwordHash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		s.metrics.recordRegistration("error")
		s.logger.Error("password hashing failed", "event", "register", "error", err)
		return nil, oops.Code("INTERNAL_HASH_FAILED").Wrapf(err, "password hashing failed")
	}

	verificationToken, err := GenerateOpaqueToken()
	if err != nil {
		s.metrics.recordRegistration("error")
		return nil, err
	}

	now := s.clock().UTC()
	displayName := DeriveDisplayName(creds.Email, creds.Username, creds.FirstName, creds.LastName)
	verificationExpires := now.Add(VerificationTokenExpiry)
	user := &User{
		ID:                       ulid.Make(),
		Email:                    creds.Email,
		Username:                 creds.Username,
		FirstName:                creds.FirstName,
		LastName:                 creds.LastName,
		DisplayName:              &displayName,
		PasswordHash:             passwordHash,
		IsEmailVerified:          false,
		EmailVerificationToken:   &verificationToken,
		EmailVerificationExpires: &verificationExpires,
		SubscriptionTier:         TierFree,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win the race past the existence
		// check; the unique index is authoritative.
		if errors.Is(err, ErrDuplicate) {
			s.metrics.recordRegistration("duplicate")
			return nil, oops.Code("VALIDATION_USER_EXISTS").Errorf("user already exists with this email or username")
		}
		s.metrics.recordRegistration("error")
		return nil, oops.Code("INTERNAL_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	session, err := s.createSession(ctx, user.ID, nil, nil)
	if err != nil {
		s.metrics.recordRegistration("error")
		return nil, err
	}

	pair, err := s.tokenPairForSession(user, session)
	if err != nil {
		s.metrics.recordRegistration("error")
		return nil, err
	}

	s.metrics.recordRegistration("success")
	s.logger.Info("user registered",
		"event", "register",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
	)
	return &AuthResult{User: user.ToSafeUser(), Tokens: pair, IsNewUser: true}, nil
}

// Login verifies credentials, records the login, opens a session, and
// returns the safe user projection with a token pair. Credential failures
// collapse into one generic error; the absent-user path still runs a
// verification against a dummy hash to keep response time consistent.
func (s *Service) Login(ctx context.Context, creds LoginCredentials, device *DeviceInfo, ipAddress *string) (*AuthResult, error) {
	if creds.Email == "" || creds.Password == "" {
		s.metrics.recordLogin("invalid")
		return nil, oops.Code("VALIDATION_MISSING_FIELDS").Errorf("email and password are required")
	}

	user, lookupErr := s.users.GetByEmail(ctx, creds.Email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		s.metrics.recordLogin("error")
		return nil, oops.Code("INTERNAL_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	targetHash := dummyPasswordHash
	userExists := lookupErr == nil && user.PasswordHash != ""
	if userExists {
		targetHash = user.PasswordHash
	}

	if !s.hasher.Verify(creds.Password, targetHash) || !userExists {
		s.metrics.recordLogin("rejected")
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid credentials")
	}

	if !user.IsActive {
		s.metrics.recordLogin("rejected")
		return nil, oops.Code("AUTH_ACCOUNT_DEACTIVATED").Errorf("account is deactivated")
	}

	// Re-hash on login when the stored hash uses the non-configured
	// algorithm (e.g. bcrypt rows after switching to argon2id).
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(creds.Password); hashErr == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
				s.logger.Warn("password hash upgrade failed",
					"event", "login",
					"user_id", user.ID.String(),
					"error", err,
				)
			}
		}
	}

	// Best effort; login succeeds regardless.
	if err := s.users.UpdateLastLogin(ctx, user.ID, s.clock().UTC()); err != nil {
		s.logger.Warn("last login update failed",
			"event", "login",
			"user_id", user.ID.String(),
			"error", err,
		)
	}

	session, err := s.createSession(ctx, user.ID, device, ipAddress)
	if err != nil {
		s.metrics.recordLogin("error")
		return nil, err
	}

	pair, err := s.tokenPairForSession(user, session)
	if err != nil {
		s.metrics.recordLogin("error")
		return nil, err
	}

	s.metrics.recordLogin("success")
	s.logger.Info("user logged in",
		"event", "login",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
	)
	return &AuthResult{User: user.ToSafeUser(), Tokens: pair}, nil
}

// Refresh rotates a refresh token and returns a fresh token pair. The
// rotation is single-use: the conditional update in the session store lets
// at most one concurrent caller win per stored value; losers get the same
// generic failure as a forged token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if _, err := s.tokens.VerifyRefresh(refreshToken); err != nil {
		s.metrics.recordRotation("rejected")
		return nil, err
	}

	session, err := s.sessions.GetActiveByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.recordRotation("rejected")
			return nil, oops.Code("AUTH_INVALID_TOKEN").
				With("reason", "no active session").
				Errorf("invalid or expired refresh token")
		}
		s.metrics.recordRotation("error")
		return nil, oops.Code("INTERNAL_REFRESH_FAILED").
			With("operation", "get session by refresh token").
			Wrap(err)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		s.metrics.recordRotation("rejected")
		return nil, oops.Code("AUTH_INVALID_TOKEN").
			With("reason", "user missing or inactive").
			Errorf("invalid or expired refresh token")
	}

	newRefresh, err := s.tokens.IssueRefresh()
	if err != nil {
		s.metrics.recordRotation("error")
		return nil, err
	}
	newAccess, err := s.tokens.IssueAccess(user, session.ID)
	if err != nil {
		s.metrics.recordRotation("error")
		return nil, err
	}

	// Conditional update matching the presented value; the old token is
	// permanently unusable once this succeeds.
	if err := s.sessions.RotateRefreshToken(ctx, session.ID, refreshToken, newRefresh); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.recordRotation("rejected")
			return nil, oops.Code("AUTH_INVALID_TOKEN").
				With("reason", "rotation lost race").
				Errorf("invalid or expired refresh token")
		}
		s.metrics.recordRotation("error")
		return nil, oops.Code("INTERNAL_REFRESH_FAILED").
			With("operation", "rotate refresh token").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	s.metrics.recordRotation("success")
	s.logger.Info("token refreshed",
		"event", "refresh",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
	)
	return &TokenPair{
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout deactivates a single session.
func (s *Service) Logout(ctx context.Context, sessionID ulid.ULID) error {
	if err := s.sessions.Deactivate(ctx, sessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return oops.Code("INTERNAL_LOGOUT_FAILED").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	s.logger.Info("user logged out", "event", "logout", "session_id", sessionID.String())
	return nil
}

// LogoutAll deactivates every session owned by the user. Used directly and
// as the tail of password change/reset.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) error {
	if err := s.sessions.DeactivateAllForUser(ctx, userID); err != nil {
		return oops.Code("INTERNAL_LOGOUT_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	s.logger.Info("user logged out from all devices", "event", "logout_all", "user_id", userID.String())
	return nil
}

// VerifyUser verifies an access token and returns the safe user
// projection. Both the user and the session named in the token must be
// active; a valid token over a revoked session fails.
func (s *Service) VerifyUser(ctx context.Context, accessToken string) (*SafeUser, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	userID, err := ulid.Parse(claims.UserID)
	if err != nil {
		return nil, invalidTokenError(err)
	}
	sessionID, err := ulid.Parse(claims.SessionID)
	if err != nil {
		return nil, invalidTokenError(err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_INACTIVE").Errorf("user not found or inactive")
		}
		return nil, oops.Code("INTERNAL_VERIFY_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}
	if !user.IsActive {
		return nil, oops.Code("AUTH_USER_INACTIVE").Errorf("user not found or inactive")
	}

	session, err := s.sessions.GetActiveByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_SESSION_INVALID").Errorf("session expired or invalid")
		}
		return nil, oops.Code("INTERNAL_VERIFY_FAILED").
			With("operation", "get session by id").
			Wrap(err)
	}
	// The query already filters on expiry; re-check anyway rather than
	// trust a stale read.
	if session.IsExpiredAt(s.clock()) {
		return nil, oops.Code("AUTH_SESSION_INVALID").Errorf("session expired or invalid")
	}

	return user.ToSafeUser(), nil
}

// ChangePassword verifies the current password, stores a hash of the new
// one, and invalidates every session of the user, including the one that
// made this call. The caller must re-authenticate.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("current password is incorrect")
		}
		return oops.Code("INTERNAL_PASSWORD_CHANGE_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	if user.PasswordHash == "" || !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("current password is incorrect")
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("password hashing failed", "event", "change_password", "user_id", userID.String(), "error", err)
		return oops.Code("INTERNAL_HASH_FAILED").Wrapf(err, "password hashing failed")
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return oops.Code("INTERNAL_PASSWORD_CHANGE_FAILED").
			With("operation", "update password").
			Wrap(err)
	}

	if err := s.LogoutAll(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("password changed", "event", "change_password", "user_id", userID.String())
	return nil
}

// RequestPasswordReset generates a reset token for the account and hands
// it to the notifier. Unknown emails return success silently so the flow
// cannot be used as a user-existence oracle.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("password reset requested for unknown email", "event", "request_reset")
			return nil
		}
		return oops.Code("INTERNAL_RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return err
	}

	expiresAt := s.clock().UTC().Add(ResetTokenExpiry)
	if err := s.users.SetResetToken(ctx, user.ID, hashResetToken(token), expiresAt); err != nil {
		return oops.Code("INTERNAL_RESET_REQUEST_FAILED").
			With("operation", "set reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if s.notifier != nil {
		s.notifier(ctx, user.Email, token)
	}

	s.logger.Info("password reset requested", "event", "request_reset", "user_id", user.ID.String())
	return nil
}

// ResetPassword consumes a reset token, stores a hash of the new password,
// clears the token, and invalidates every session of the user.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return oops.Code("AUTH_INVALID_RESET_TOKEN").Errorf("invalid or expired reset token")
	}

	user, err := s.users.GetByActiveResetToken(ctx, hashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_INVALID_RESET_TOKEN").Errorf("invalid or expired reset token")
		}
		return oops.Code("INTERNAL_RESET_FAILED").
			With("operation", "get user by reset token").
			Wrap(err)
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("password hashing failed", "event", "reset_password", "user_id", user.ID.String(), "error", err)
		return oops.Code("INTERNAL_HASH_FAILED").Wrapf(err, "password hashing failed")
	}

	// UpdatePassword clears the reset token fields in the same statement.
	if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
		return oops.Code("INTERNAL_RESET_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if err := s.LogoutAll(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("password reset completed", "event", "reset_password", "user_id", user.ID.String())
	return nil
}

// VerifyEmail consumes an email verification token and marks the account
// verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*SafeUser, error) {
	if token == "" {
		return nil, oops.Code("AUTH_INVALID_VERIFICATION_TOKEN").Errorf("invalid or expired verification token")
	}

	user, err := s.users.GetByActiveVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_INVALID_VERIFICATION_TOKEN").Errorf("invalid or expired verification token")
		}
		return nil, oops.Code("INTERNAL_VERIFY_EMAIL_FAILED").
			With("operation", "get user by verification token").
			Wrap(err)
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, oops.Code("INTERNAL_VERIFY_EMAIL_FAILED").
			With("operation", "mark email verified").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	user.IsEmailVerified = true
	user.EmailVerificationToken = nil
	user.EmailVerificationExpires = nil

	s.logger.Info("email verified", "event", "verify_email", "user_id", user.ID.String())
	return user.ToSafeUser(), nil
}

// GetUserSessions lists the user's active, non-expired sessions, newest
// first.
func (s *Service) GetUserSessions(ctx context.Context, userID ulid.ULID) ([]*Session, error) {
	sessions, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("INTERNAL_SESSION_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return sessions, nil
}

// RevokeSession deactivates a session scoped to its owning user. A
// session belonging to a different user is silently unaffected; an error
// here would leak session existence across users.
func (s *Service) RevokeSession(ctx context.Context, sessionID, userID ulid.ULID) error {
	if err := s.sessions.DeactivateForUser(ctx, sessionID, userID); err != nil {
		return oops.Code("INTERNAL_SESSION_REVOKE_FAILED").
			With("session_id", sessionID.String()).
			With("user_id", userID.String()).
			Wrap(err)
	}
	s.logger.Info("session revoked", "event", "revoke_session", "session_id", sessionID.String(), "user_id", userID.String())
	return nil
}

// createSession opens a session with a fresh opaque token and refresh
// token.
func (s *Service) createSession(ctx context.Context, userID ulid.ULID, device *DeviceInfo, ipAddress *string) (*Session, error) {
	opaque, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh()
	if err != nil {
		return nil, err
	}

	var userAgent *string
	if device != nil && device.UserAgent != "" {
		ua := device.UserAgent
		userAgent = &ua
	}

	expiresAt := s.clock().UTC().Add(s.sessionTTL)
	session, err := NewSession(userID, opaque, refresh, device.encode(), ipAddress, userAgent, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("INTERNAL_SESSION_CREATE_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.Info("session created", "event", "session_created", "user_id", userID.String(), "session_id", session.ID.String())
	return session, nil
}

// tokenPairForSession issues an access token bound to the session and
// pairs it with the session's stored refresh token.
func (s *Service) tokenPairForSession(user *User, session *Session) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(user, session.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// hashResetToken computes the SHA-256 hash of a reset token. Only the
// hash is persisted.
func hashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
