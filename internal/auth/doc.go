// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

// Package auth implements the authentication and session-lifecycle
// subsystem: credential verification, password hashing, token issuance
// and rotation, and multi-device session tracking.
//
// # Domain Types
//
// User holds the durable account identity including its secret-bearing
// fields; SafeUser is the projection with every secret stripped and is
// the only user shape that crosses the service boundary. Session binds a
// device/login instance to a user and moves through
// created -> active -> (rotated)* -> revoked|expired; expired or inactive
// rows are removed only by the Sweeper.
//
// # Services
//
// Service composes a PasswordHasher, a TokenIssuer, and the two
// repository interfaces into the register/login/refresh/logout/
// password-reset/session-management flows. Construct it with NewService
// and explicit dependencies; there are no package-level instances.
package auth
