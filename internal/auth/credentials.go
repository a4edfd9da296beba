// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import "encoding/json"

// RegisterCredentials carries registration input. Transient; never
// persisted raw.
type RegisterCredentials struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Username    *string `json:"username,omitempty"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	AcceptTerms bool    `json:"acceptTerms"`
}

// LoginCredentials carries login input.
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DeviceInfo describes the client device attached to a session.
type DeviceInfo struct {
	UserAgent string `json:"userAgent,omitempty"`
	Platform  string `json:"platform,omitempty"`
	AppName   string `json:"appName,omitempty"`
	Version   string `json:"version,omitempty"`
}

// encode serializes the device info for storage on the session row.
// Returns nil for a nil receiver.
func (d *DeviceInfo) encode() *string {
	if d == nil {
		return nil
	}
	// Marshal of a plain struct cannot fail.
	b, _ := json.Marshal(d)
	s := string(b)
	return &s
}

// TokenPair bundles a short-lived access token and a long-lived refresh
// token. Transient; the refresh token value is stored inside its owning
// session row, never the pair as a unit.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // access token lifetime in seconds
}

// AuthResult is the success payload of Register and Login.
type AuthResult struct {
	User      *SafeUser `json:"user"`
	Tokens    TokenPair `json:"tokens"`
	IsNewUser bool      `json:"isNewUser,omitempty"`
}
