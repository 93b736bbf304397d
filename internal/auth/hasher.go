// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

// Package auth provides the possession-factor authentication core for
// Scheduler: Emoji ID generation, credential hashing, session tokens,
// and recovery codes.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"runtime"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

// PBKDF2-SHA256 parameters for credential and recovery-code hashing.
// The credential is a high-entropy feed URL, not a human-chosen password,
// so an iteration-stretched but memory-light KDF is sufficient: the
// iterations add defense-in-depth against offline cracking without
// making legitimate verification expensive.
const (
	credentialIterations = 100_000
	credentialSaltLen    = 32 // bytes
	credentialKeyLen     = 32 // bytes
)

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("AUTH_EMPTY_SECRET").Errorf("secret cannot be empty")

// Dummy (hash, salt) pair used to equalize timing on lookups that miss.
// Decodes cleanly so verification runs the full derivation; it can never
// match a real credential.
const (
	dummyCredentialHash = "0000000000000000000000000000000000000000000000000000000000000000"
	dummyCredentialSalt = "0000000000000000000000000000000000000000000000000000000000000000"
)

// CredentialHasher provides salted one-way hashing for possession-factor
// secrets (feed URLs and recovery codes).
type CredentialHasher interface {
	// Hash derives a fresh (hash, salt) pair for the secret, both hex-encoded.
	// A new random salt is drawn on every call.
	Hash(ctx context.Context, secret string) (hashHex, saltHex string, err error)

	// Verify re-derives the candidate under the stored salt and compares in
	// constant time. Malformed stored values fail closed: the result is
	// false, never a panic or an error.
	Verify(ctx context.Context, candidate, hashHex, saltHex string) bool
}

// PBKDF2Hasher implements CredentialHasher using PBKDF2-SHA256.
// Derivations are CPU-bound, so they run under a weighted semaphore sized
// to the core count: a burst of signups queues rather than starving every
// other request of scheduler time.
type PBKDF2Hasher struct {
	sem *semaphore.Weighted
}

// NewPBKDF2Hasher creates a PBKDF2Hasher with concurrency bounded to
// GOMAXPROCS.
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{
		sem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash derives a fresh (hash, salt) pair for the secret.
func (h *PBKDF2Hasher) Hash(ctx context.Context, secret string) (string, string, error) {
	if secret == "" {
		return "", "", ErrEmptySecret
	}

	salt, err := randomBytes(credentialSaltLen)
	if err != nil {
		return "", "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key, err := h.derive(ctx, secret, salt)
	if err != nil {
		return "", "", err
	}

	return hex.EncodeToString(key), hex.EncodeToString(salt), nil
}

// Verify re-derives candidate under the stored salt and compares in
// constant time. Any malformed stored value yields false.
func (h *PBKDF2Hasher) Verify(ctx context.Context, candidate, hashHex, saltHex string) bool {
	if candidate == "" {
		return false
	}

	expected, err := hex.DecodeString(hashHex)
	if err != nil || len(expected) == 0 {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}

	computed, err := h.derive(ctx, candidate, salt)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// derive runs the KDF under the concurrency bound. Waiting respects ctx
// cancellation so a shutdown does not strand queued derivations.
func (h *PBKDF2Hasher) derive(ctx context.Context, secret string, salt []byte) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, oops.Code("AUTH_HASH_CANCELED").Wrap(err)
	}
	defer h.sem.Release(1)

	return pbkdf2.Key([]byte(secret), salt, credentialIterations, credentialKeyLen, sha256.New), nil
}

// verifyDummy burns one full derivation against the dummy pair. Callers
// use it to make account-not-found paths take as long as a real
// credential mismatch.
func verifyDummy(ctx context.Context, hasher CredentialHasher, candidate string) {
	if candidate == "" {
		candidate = "-"
	}
	hasher.Verify(ctx, candidate, dummyCredentialHash, dummyCredentialSalt)
}

// Compile-time interface check.
var _ CredentialHasher = (*PBKDF2Hasher)(nil)
