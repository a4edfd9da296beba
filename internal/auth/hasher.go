// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Default argon2id cost parameters: deliberately expensive to slow
// brute-force and GPU cracking.
const (
	DefaultArgon2Memory  = 64 * 1024 // KiB, 64 MB
	DefaultArgon2Time    = 3         // iterations
	DefaultArgon2Threads = 1         // single lane
	argon2SaltLen        = 16
	argon2KeyLen         = 32
)

// Bcrypt cost bounds when the alternate hasher is configured.
const (
	MinBcryptCost = 10
	MaxBcryptCost = 15
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("VALIDATION_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher produces and verifies salted password hashes.
//
// Hash failure signals infrastructure trouble, not bad input. Verify never
// returns an error: malformed or foreign hashes verify as false, so a
// caller cannot distinguish a wrong password from a corrupt hash.
type PasswordHasher interface {
	// Hash produces a salted hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the hash.
	Verify(password, hash string) bool

	// NeedsUpgrade returns true if the hash was produced by a different
	// algorithm and should be re-hashed on the next successful login.
	NeedsUpgrade(hash string) bool
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32 // iterations
	Threads uint8  // parallelism degree
}

// DefaultArgon2Params returns the default cost parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:  DefaultArgon2Memory,
		Time:    DefaultArgon2Time,
		Threads: DefaultArgon2Threads,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the given cost
// parameters; zero values fall back to the defaults.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	def := DefaultArgon2Params()
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	return &Argon2idHasher{params: params}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("INTERNAL_HASH_FAILED").
			With("operation", "generate salt").
			Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether the password matches the encoded hash. Malformed
// hashes verify as false; the full parse-and-compare runs regardless so a
// structurally invalid hash does not short-circuit noticeably earlier than
// a mismatch.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	// Rows hashed before the argon2id migration still carry bcrypt hashes;
	// they must verify here so login can re-hash them.
	if strings.HasPrefix(encodedHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	salt, expected, params, ok := decodeArgon2Hash(encodedHash)
	if !ok {
		// Burn a comparable amount of work before failing so a corrupt
		// hash is not distinguishable by response time.
		_ = argon2.IDKey([]byte(password), make([]byte, argon2SaltLen), h.params.Time, h.params.Memory, h.params.Threads, argon2KeyLen)
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g. bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

// decodeArgon2Hash parses a PHC argon2id string into its salt, key, and
// cost parameters. The ok result is false for any structural problem.
func decodeArgon2Hash(encodedHash string) (salt, key []byte, params Argon2Params, ok bool) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, Argon2Params{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, Argon2Params{}, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, Argon2Params{}, false
	}
	if threads == 0 || threads > 255 {
		return nil, nil, Argon2Params{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, Argon2Params{}, false
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1<<10 {
		return nil, nil, Argon2Params{}, false
	}

	return salt, key, Argon2Params{Memory: memory, Time: time, Threads: uint8(threads)}, true
}

// BcryptHasher implements PasswordHasher using bcrypt. It exists for
// deployments that configure the alternate algorithm; new installs should
// prefer argon2id.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. Cost must be within
// [MinBcryptCost, MaxBcryptCost].
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < MinBcryptCost || cost > MaxBcryptCost {
		return nil, oops.Code("VALIDATION_BCRYPT_COST").
			With("cost", cost).
			With("min", MinBcryptCost).
			With("max", MaxBcryptCost).
			Errorf("bcrypt cost must be between %d and %d", MinBcryptCost, MaxBcryptCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("INTERNAL_HASH_FAILED").
			With("operation", "bcrypt.GenerateFromPassword").
			Wrap(err)
	}
	return string(hashed), nil
}

// Verify reports whether the password matches the hash. Malformed hashes
// verify as false.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsUpgrade returns true if the hash is not bcrypt.
func (h *BcryptHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$2")
}
