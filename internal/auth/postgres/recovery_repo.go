// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/dajbelshaw/Scheduler/internal/auth"
)

// RecoveryCodeRepository implements auth.RecoveryCodeRepository using
// PostgreSQL.
type RecoveryCodeRepository struct {
	pool Pool
}

// NewRecoveryCodeRepository creates a new RecoveryCodeRepository.
func NewRecoveryCodeRepository(pool Pool) *RecoveryCodeRepository {
	return &RecoveryCodeRepository{pool: pool}
}

// CreateBatch inserts all codes for an account as one atomic unit. Joins
// the transaction carried by ctx if present, otherwise opens its own so
// partial batches are never observable.
func (r *RecoveryCodeRepository) CreateBatch(ctx context.Context, accountID ulid.ULID, codes []auth.HashedRecoveryCode) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return r.insertBatch(ctx, tx, accountID, codes)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := r.insertBatch(ctx, tx, accountID, codes); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

func (r *RecoveryCodeRepository) insertBatch(ctx context.Context, tx pgx.Tx, accountID ulid.ULID, codes []auth.HashedRecoveryCode) error {
	now := time.Now()
	for _, code := range codes {
		_, err := tx.Exec(ctx, `
			INSERT INTO recovery_codes (id, account_id, code_hash, code_salt, used, created_at)
			VALUES ($1, $2, $3, $4, FALSE, $5)
		`,
			ulid.Make().String(),
			accountID.String(),
			code.Hash,
			code.Salt,
			now,
		)
		if err != nil {
			return oops.Code("RECOVERY_CREATE_FAILED").
				With("operation", "insert recovery code").
				With("account_id", accountID.String()).
				Wrap(err)
		}
	}
	return nil
}

// Consume finds the first unused code the verifier accepts and marks it
// used. The account's unused rows are locked (FOR UPDATE) for the whole
// find-and-mark step, so two concurrent presentations of the same code
// serialize: the first marks the row, the second sees no unused match.
func (r *RecoveryCodeRepository) Consume(ctx context.Context, accountID ulid.ULID, verify auth.CodeVerifier) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	candidates, err := lockUnusedCodes(ctx, tx, accountID)
	if err != nil {
		return false, err
	}

	matchedID := ""
	for _, c := range candidates {
		if verify(c.hash, c.salt) {
			matchedID = c.id
			break
		}
	}
	if matchedID == "" {
		if err := tx.Commit(ctx); err != nil {
			return false, oops.Code("TX_COMMIT_FAILED").Wrap(err)
		}
		return false, nil
	}

	// The used guard is belt-and-braces under the row lock; a row that
	// flipped anyway means the match is gone.
	result, err := tx.Exec(ctx, `
		UPDATE recovery_codes SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE
	`, matchedID, time.Now())
	if err != nil {
		return false, oops.Code("RECOVERY_CONSUME_FAILED").
			With("operation", "mark recovery code used").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return true, nil
}

// CountUnused returns the number of codes the account has left.
func (r *RecoveryCodeRepository) CountUnused(ctx context.Context, accountID ulid.ULID) (int, error) {
	var count int
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM recovery_codes
		WHERE account_id = $1 AND used = FALSE
	`, accountID.String()).Scan(&count)
	if err != nil {
		return 0, oops.Code("RECOVERY_COUNT_FAILED").
			With("operation", "count unused recovery codes").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return count, nil
}

// lockedCode is one candidate row held under FOR UPDATE.
type lockedCode struct {
	id   string
	hash string
	salt string
}

// lockUnusedCodes reads and locks the account's unused rows. The rows are
// fully drained before returning so the caller can issue further
// statements on the same transaction.
func lockUnusedCodes(ctx context.Context, tx pgx.Tx, accountID ulid.ULID) ([]lockedCode, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, code_hash, code_salt FROM recovery_codes
		WHERE account_id = $1 AND used = FALSE
		ORDER BY created_at, id
		FOR UPDATE
	`, accountID.String())
	if err != nil {
		return nil, oops.Code("RECOVERY_LOCK_FAILED").
			With("operation", "lock unused recovery codes").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var candidates []lockedCode
	for rows.Next() {
		var c lockedCode
		if err := rows.Scan(&c.id, &c.hash, &c.salt); err != nil {
			return nil, oops.Code("RECOVERY_SCAN_FAILED").
				With("operation", "scan recovery code row").
				Wrap(err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RECOVERY_ROWS_ERROR").
			With("operation", "iterate recovery code rows").
			Wrap(err)
	}

	return candidates, nil
}

// Compile-time interface check.
var _ auth.RecoveryCodeRepository = (*RecoveryCodeRepository)(nil)
