// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultAllocatorMaxAttempts bounds the draw-and-check loop. A policy
// choice, not an architectural constant: repeated collision in a ~268M
// entry space is vanishingly rare, so a small bound trades nothing real
// for a guaranteed stop.
const DefaultAllocatorMaxAttempts = 10

// errEmojiIDCollision signals a draw that hit an existing account.
var errEmojiIDCollision = errors.New("emoji id collision")

// Allocator mints Emoji IDs that are not already assigned.
type Allocator struct {
	accounts    AccountRepository
	maxAttempts int
}

// NewAllocator creates an Allocator. maxAttempts values below 1 fall back
// to DefaultAllocatorMaxAttempts.
func NewAllocator(accounts AccountRepository, maxAttempts int) *Allocator {
	if maxAttempts < 1 {
		maxAttempts = DefaultAllocatorMaxAttempts
	}
	return &Allocator{accounts: accounts, maxAttempts: maxAttempts}
}

// AllocateUnique draws random Emoji IDs until one is unassigned, retrying
// up to the configured bound. Exhausting the bound surfaces as a distinct
// retryable service error, never a silent loop.
func (a *Allocator) AllocateUnique(ctx context.Context) (string, error) {
	var allocated string

	backoff := retry.WithMaxRetries(uint64(a.maxAttempts-1), retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		candidate, err := RandomEmojiID()
		if err != nil {
			return err
		}

		taken, err := a.accounts.EmojiIDTaken(ctx, candidate)
		if err != nil {
			return err
		}
		if taken {
			return retry.RetryableError(errEmojiIDCollision)
		}

		allocated = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, errEmojiIDCollision) {
			return "", oops.Code("EMOJI_ALLOC_EXHAUSTED").
				With("max_attempts", a.maxAttempts).
				Errorf("could not allocate a free emoji id in %d attempts", a.maxAttempts)
		}
		return "", oops.Code("EMOJI_ALLOC_FAILED").
			With("operation", "allocate unique emoji id").
			Wrap(err)
	}

	return allocated, nil
}

// Taken reports whether an Emoji ID is already assigned. Shared by the
// allocator and the user-chosen-identifier signup path.
func (a *Allocator) Taken(ctx context.Context, emojiID string) (bool, error) {
	taken, err := a.accounts.EmojiIDTaken(ctx, emojiID)
	if err != nil {
		return false, oops.Code("EMOJI_CHECK_FAILED").
			With("operation", "check emoji id taken").
			Wrap(err)
	}
	return taken, nil
}
