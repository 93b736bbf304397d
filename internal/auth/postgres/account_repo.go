// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/dajbelshaw/Scheduler/internal/auth"
)

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account. A unique violation on emoji_id wraps
// auth.ErrDuplicateEmojiID so callers can treat the race as a conflict.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO accounts (id, emoji_id, credential_hash, credential_salt, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		account.ID.String(),
		account.EmojiID,
		account.CredentialHash,
		account.CredentialSalt,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE_EMOJI_ID").
				With("emoji_id", account.EmojiID).
				Wrap(auth.ErrDuplicateEmojiID)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, emoji_id, credential_hash, credential_salt, created_at
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmojiID retrieves an account by its Emoji ID.
func (r *AccountRepository) GetByEmojiID(ctx context.Context, emojiID string) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, emoji_id, credential_hash, credential_salt, created_at
		FROM accounts
		WHERE emoji_id = $1
	`, emojiID)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMOJI_FAILED").
			With("operation", "get account by emoji id").
			Wrap(err)
	}
	return account, nil
}

// EmojiIDTaken reports whether an account with the given Emoji ID exists.
func (r *AccountRepository) EmojiIDTaken(ctx context.Context, emojiID string) (bool, error) {
	var taken bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE emoji_id = $1)
	`, emojiID).Scan(&taken)
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_CHECK_FAILED").
			With("operation", "check emoji id exists").
			Wrap(err)
	}
	return taken, nil
}

// UpdateCredential replaces the credential (hash, salt) pair wholesale.
func (r *AccountRepository) UpdateCredential(ctx context.Context, id ulid.ULID, credentialHash, credentialSalt string) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE accounts SET credential_hash = $2, credential_salt = $3
		WHERE id = $1
	`, id.String(), credentialHash, credentialSalt)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_CREDENTIAL_FAILED").
			With("operation", "update credential").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an account. Sessions and recovery codes cascade.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM accounts WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr          string
		emojiID        string
		credentialHash string
		credentialSalt string
		createdAt      time.Time
	)

	err := row.Scan(&idStr, &emojiID, &credentialHash, &credentialSalt, &createdAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Account{
		ID:             id,
		EmojiID:        emojiID,
		CredentialHash: credentialHash,
		CredentialSalt: credentialSalt,
		CreatedAt:      createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
