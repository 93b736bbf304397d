// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account represents a registered account. The Emoji ID is the only
// public handle; there is no name, email, or other identifying field.
type Account struct {
	ID             ulid.ULID
	EmojiID        string
	CredentialHash string
	CredentialSalt string
	CreatedAt      time.Time
}

// NewAccount creates a validated Account instance.
// The credential (hash, salt) pair is replaced wholesale on rotation;
// no history of prior credentials is retained.
func NewAccount(emojiID, credentialHash, credentialSalt string) (*Account, error) {
	if !ValidEmojiID(emojiID) {
		return nil, oops.Code("EMOJI_ID_INVALID").
			With("emoji_id", emojiID).
			Errorf("emoji id must be exactly %d symbols from the alphabet", EmojiIDLength)
	}
	if credentialHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("credential hash cannot be empty")
	}
	if credentialSalt == "" {
		return nil, oops.Code("ACCOUNT_INVALID_SALT").Errorf("credential salt cannot be empty")
	}

	return &Account{
		ID:             ulid.Make(),
		EmojiID:        emojiID,
		CredentialHash: credentialHash,
		CredentialSalt: credentialSalt,
		CreatedAt:      time.Now(),
	}, nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. An emoji_id uniqueness race surfaces as
	// an error wrapping ErrDuplicateEmojiID. Participates in a transaction
	// when the context carries one.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmojiID retrieves an account by its Emoji ID.
	GetByEmojiID(ctx context.Context, emojiID string) (*Account, error)

	// EmojiIDTaken reports whether an account with the given Emoji ID exists.
	EmojiIDTaken(ctx context.Context, emojiID string) (bool, error)

	// UpdateCredential replaces the (hash, salt) pair for an account.
	UpdateCredential(ctx context.Context, id ulid.ULID, credentialHash, credentialSalt string) error

	// Delete removes an account. Recovery codes and sessions cascade.
	Delete(ctx context.Context, id ulid.ULID) error
}
