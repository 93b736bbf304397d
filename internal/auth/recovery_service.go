// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// WarnNoRecoveryCodesLeft is surfaced when the last recovery code has
// been consumed. The pool is fixed at signup; there is no refill.
const WarnNoRecoveryCodesLeft = "no recovery codes remain for this account"

// RecoveryService handles the one-time-code recovery flow.
type RecoveryService struct {
	accounts   AccountRepository
	sessions   SessionRepository
	codes      RecoveryCodeRepository
	hasher     CredentialHasher
	checker    CredentialChecker
	sessionTTL time.Duration
}

// NewRecoveryService creates a new RecoveryService.
func NewRecoveryService(
	accounts AccountRepository,
	sessions SessionRepository,
	codes RecoveryCodeRepository,
	hasher CredentialHasher,
	checker CredentialChecker,
) *RecoveryService {
	return &RecoveryService{
		accounts:   accounts,
		sessions:   sessions,
		codes:      codes,
		hasher:     hasher,
		checker:    checker,
		sessionTTL: SessionTTL,
	}
}

// WithSessionTTL overrides the default session lifetime. Values below or
// equal to zero are ignored.
func (s *RecoveryService) WithSessionTTL(ttl time.Duration) *RecoveryService {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// RecoverResult reports a successful recovery.
type RecoverResult struct {
	Account   *Account
	Session   *Session
	Token     string
	Remaining int
	Warning   string
}

// Recover authenticates with a one-time recovery code and optionally
// rotates the credential. Exactly one code is consumed per success.
//
// The new credential's format is validated before consumption, but its
// liveness check runs after: a liveness failure at that point leaves the
// code spent with the credential unchanged. That partial success is
// accepted rather than refunding the code, which would let a consumed
// code revert to unused.
func (s *RecoveryService) Recover(ctx context.Context, emojiID, code, newCredentialSource string) (*RecoverResult, error) {
	if !ValidEmojiID(emojiID) {
		return nil, oops.Code("EMOJI_ID_INVALID").
			Errorf("emoji id must be exactly %d symbols from the alphabet", EmojiIDLength)
	}
	if code == "" {
		return nil, invalidCredentials()
	}
	if newCredentialSource != "" {
		if err := ValidateFeedURL(newCredentialSource); err != nil {
			return nil, err
		}
	}

	account, lookupErr := s.accounts.GetByEmojiID(ctx, emojiID)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			// Burn one derivation so unknown ids cost the same as a
			// single-code mismatch.
			verifyDummy(ctx, s.hasher, code)
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_RECOVER_FAILED").
			With("operation", "get account by emoji id").
			Wrap(lookupErr)
	}

	consumed, err := s.codes.Consume(ctx, account.ID, func(codeHash, codeSalt string) bool {
		return s.hasher.Verify(ctx, code, codeHash, codeSalt)
	})
	if err != nil {
		return nil, oops.Code("AUTH_RECOVER_FAILED").
			With("operation", "consume recovery code").
			Wrap(err)
	}
	if !consumed {
		return nil, invalidCredentials()
	}

	if newCredentialSource != "" {
		if err := s.rotateCredential(ctx, account, newCredentialSource); err != nil {
			return nil, err
		}
	}

	session, token, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, err
	}

	remaining, err := s.codes.CountUnused(ctx, account.ID)
	if err != nil {
		return nil, oops.Code("AUTH_RECOVER_FAILED").
			With("operation", "count unused recovery codes").
			Wrap(err)
	}

	result := &RecoverResult{
		Account:   account,
		Session:   session,
		Token:     token,
		Remaining: remaining,
	}
	if remaining == 0 {
		result.Warning = WarnNoRecoveryCodesLeft
	}
	return result, nil
}

// rotateCredential liveness-checks the new source and replaces the
// account's (hash, salt) pair wholesale.
func (s *RecoveryService) rotateCredential(ctx context.Context, account *Account, source string) error {
	if err := s.checker.Check(ctx, source); err != nil {
		return err
	}

	hash, salt, err := s.hasher.Hash(ctx, source)
	if err != nil {
		return oops.Code("AUTH_RECOVER_FAILED").
			With("operation", "hash new credential").
			Wrap(err)
	}

	if err := s.accounts.UpdateCredential(ctx, account.ID, hash, salt); err != nil {
		return oops.Code("AUTH_RECOVER_FAILED").
			With("operation", "update credential").
			Wrap(err)
	}

	account.CredentialHash = hash
	account.CredentialSalt = salt
	return nil
}

// issueSession mirrors Service.issueSession for the recovery flow.
func (s *RecoveryService) issueSession(ctx context.Context, account *Account) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_ISSUE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(account.ID, tokenHash, time.Now().Add(s.sessionTTL))
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_ISSUE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_ISSUE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}
