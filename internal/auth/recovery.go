// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Recovery code configuration.
const (
	RecoveryCodeCount = 5  // fixed pool size, minted once at signup
	RecoveryCodeBytes = 16 // 128 bits of entropy, 32 hex chars
)

// RecoveryCode represents one one-time code from an account's pool.
// Once Used becomes true it never reverts.
type RecoveryCode struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	CodeHash  string
	CodeSalt  string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// HashedRecoveryCode is the storable form of a freshly generated code.
type HashedRecoveryCode struct {
	Hash string
	Salt string
}

// GenerateRecoveryCodes produces RecoveryCodeCount independent codes,
// each from RecoveryCodeBytes of randomness, hashed with the same
// stretched KDF as the credential. The plaintext set is for one-time
// display only and is never persisted; the hashed set is for storage
// only. The two must never be written together.
func GenerateRecoveryCodes(ctx context.Context, hasher CredentialHasher) (plaintext []string, hashed []HashedRecoveryCode, err error) {
	plaintext = make([]string, 0, RecoveryCodeCount)
	hashed = make([]HashedRecoveryCode, 0, RecoveryCodeCount)

	for range RecoveryCodeCount {
		raw, err := randomBytes(RecoveryCodeBytes)
		if err != nil {
			return nil, nil, oops.Code("RECOVERY_GENERATE_FAILED").
				With("operation", "crypto/rand.Read").
				Wrap(err)
		}
		code := hex.EncodeToString(raw)

		hash, salt, err := hasher.Hash(ctx, code)
		if err != nil {
			return nil, nil, oops.Code("RECOVERY_GENERATE_FAILED").
				With("operation", "hash recovery code").
				Wrap(err)
		}

		plaintext = append(plaintext, code)
		hashed = append(hashed, HashedRecoveryCode{Hash: hash, Salt: salt})
	}

	return plaintext, hashed, nil
}

// CodeVerifier checks a candidate against one stored (hash, salt) pair.
// Implementations must compare in constant time.
type CodeVerifier func(codeHash, codeSalt string) bool

// RecoveryCodeRepository manages recovery code persistence.
type RecoveryCodeRepository interface {
	// CreateBatch inserts all codes for an account as one atomic unit:
	// either every row commits or none do. Joins the transaction carried by
	// ctx if present, otherwise opens its own.
	CreateBatch(ctx context.Context, accountID ulid.ULID, codes []HashedRecoveryCode) error

	// Consume checks the candidate (via verify) against each unused code
	// for the account and marks the first match used. Find-and-mark is
	// atomic with respect to concurrent consumers: of two simultaneous
	// presentations of the same valid code, exactly one returns true.
	// Returns false when no unused code matches.
	Consume(ctx context.Context, accountID ulid.ULID, verify CodeVerifier) (bool, error)

	// CountUnused returns the number of codes the account has left.
	CountUnused(ctx context.Context, accountID ulid.ULID) (int, error)
}
