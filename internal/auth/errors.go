// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import (
	"errors"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a unique constraint
// (email, username, token) is violated.
var ErrDuplicate = errors.New("already exists")

// Kind classifies an error for callers (e.g. an HTTP layer mapping it to a
// status code). Credential and token failures are deliberately collapsed
// into KindAuth with a generic message; the oops context carries the
// internal detail for the log sink only.
type Kind int

const (
	// KindInternal covers hashing, signing, and infrastructure failures.
	KindInternal Kind = iota
	// KindValidation covers bad input shape and policy violations.
	KindValidation
	// KindAuth covers invalid credentials, invalid or expired tokens,
	// and inactive accounts.
	KindAuth
	// KindNotFound covers absent resources. Rarely surfaced to
	// unauthenticated callers to avoid existence oracles.
	KindNotFound
)

// KindOf classifies err by its oops code prefix. Errors without a code
// classify as ErrNotFound -> KindNotFound, everything else -> KindInternal.
func KindOf(err error) Kind {
	if oopsErr, ok := oops.AsOops(err); ok {
		// Code() returns any; uncoded errors carry nil.
		code, _ := oopsErr.Code().(string)
		switch {
		case strings.HasPrefix(code, "VALIDATION_"):
			return KindValidation
		case strings.HasPrefix(code, "AUTH_"), strings.HasPrefix(code, "SESSION_"):
			return KindAuth
		case code == "NOT_FOUND":
			return KindNotFound
		case strings.HasPrefix(code, "INTERNAL_"):
			return KindInternal
		}
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}
