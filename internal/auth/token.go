// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenIssuerName is the fixed issuer claim on every token.
const TokenIssuerName = "digital-wardrobe-backend"

// Token TTL defaults.
const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// MinSigningSecretLen is the minimum length of the shared signing secret.
const MinSigningSecretLen = 32

// AccessClaims is the access-token payload: identity plus the session
// binding. TokenType stays empty on access tokens; it is the discriminator
// that keeps refresh tokens out of access-token call sites, since both
// share one signing secret.
type AccessClaims struct {
	UserID           string `json:"userId"`
	Email            string `json:"email"`
	Username         string `json:"username,omitempty"`
	SubscriptionTier string `json:"subscriptionTier"`
	SessionID        string `json:"sessionId"`
	TokenType        string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// refreshClaims is intentionally minimal: a leaked refresh token reveals
// nothing about its user. The jti nonce makes every issued value unique.
type refreshClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and verifies signed, time-bound access and refresh
// tokens. Both token classes are signed with the same shared secret; the
// type claim is the sole discriminator and is checked explicitly after
// signature verification.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. The secret must be at least
// MinSigningSecretLen bytes; zero TTLs fall back to the defaults.
func NewTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if len(secret) < MinSigningSecretLen {
		return nil, oops.Code("VALIDATION_WEAK_SECRET").
			With("min_length", MinSigningSecretLen).
			Errorf("signing secret must be at least %d characters", MinSigningSecretLen)
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &TokenIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      time.Now,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

// IssueAccess signs an access token carrying the user's identity bound to
// a session.
func (t *TokenIssuer) IssueAccess(user *User, sessionID ulid.ULID) (string, error) {
	now := t.clock()
	claims := AccessClaims{
		UserID:           user.ID.String(),
		Email:            user.Email,
		SubscriptionTier: user.SubscriptionTier,
		SessionID:        sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuerName,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if user.Username != nil {
		claims.Username = *user.Username
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", oops.Code("INTERNAL_SIGN_FAILED").
			With("operation", "sign access token").
			Wrap(err)
	}
	return signed, nil
}

// IssueRefresh signs a refresh token carrying only its type and a random
// jti nonce.
func (t *TokenIssuer) IssueRefresh() (string, error) {
	now := t.clock()
	claims := refreshClaims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuerName,
			ID:        ulid.Make().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", oops.Code("INTERNAL_SIGN_FAILED").
			With("operation", "sign refresh token").
			Wrap(err)
	}
	return signed, nil
}

// VerifyAccess verifies signature, expiry, and issuer of an access token
// and returns its claims. A refresh token presented here fails even though
// its signature is valid, because of the type claim check.
//
// All failures collapse into one generic invalid-or-expired condition; the
// expired/tampered distinction travels only in the oops context, for audit
// logging.
func (t *TokenIssuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, t.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuerName),
	)
	if err != nil || !parsed.Valid {
		return nil, invalidTokenError(err)
	}
	if claims.TokenType != "" || claims.UserID == "" {
		return nil, invalidTokenError(errors.New("wrong token class"))
	}
	return claims, nil
}

// VerifyRefresh verifies signature, expiry, issuer, and the type claim of
// a refresh token, returning its jti nonce.
func (t *TokenIssuer) VerifyRefresh(token string) (string, error) {
	claims := &refreshClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, t.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuerName),
	)
	if err != nil || !parsed.Valid {
		return "", invalidTokenError(err)
	}
	// Signature validity alone does not imply the right token class.
	if claims.TokenType != "refresh" {
		return "", invalidTokenError(errors.New("wrong token class"))
	}
	return claims.ID, nil
}

func (t *TokenIssuer) keyFunc(_ *jwt.Token) (any, error) {
	return t.secret, nil
}

// invalidTokenError builds the single generic token failure. The reason
// attribute is for the log sink only and never reaches callers' messages.
func invalidTokenError(err error) error {
	reason := "invalid"
	if errors.Is(err, jwt.ErrTokenExpired) {
		reason = "expired"
	}
	builder := oops.Code("AUTH_INVALID_TOKEN").With("reason", reason)
	if err != nil {
		return builder.Wrapf(err, "invalid or expired token")
	}
	return builder.Errorf("invalid or expired token")
}
