// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// Transactor runs a function inside a store transaction. Repository
// methods that accept the callback's context participate in that
// transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service provides the account lifecycle operations: suggest, signup,
// signin, signout, and session introspection. Recovery lives in
// RecoveryService.
type Service struct {
	accounts   AccountRepository
	sessions   SessionRepository
	codes      RecoveryCodeRepository
	hasher     CredentialHasher
	alloc      *Allocator
	checker    CredentialChecker
	tx         Transactor
	sessionTTL time.Duration
}

// NewService creates a new Service.
func NewService(
	accounts AccountRepository,
	sessions SessionRepository,
	codes RecoveryCodeRepository,
	hasher CredentialHasher,
	alloc *Allocator,
	checker CredentialChecker,
	tx Transactor,
) *Service {
	return &Service{
		accounts:   accounts,
		sessions:   sessions,
		codes:      codes,
		hasher:     hasher,
		alloc:      alloc,
		checker:    checker,
		tx:         tx,
		sessionTTL: SessionTTL,
	}
}

// WithSessionTTL overrides the default session lifetime. Values below or
// equal to zero are ignored.
func (s *Service) WithSessionTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// SignupResult carries everything a fresh account needs exactly once:
// the recovery codes are not retrievable after this, and the token is
// never persisted in plaintext.
type SignupResult struct {
	Account       *Account
	RecoveryCodes []string
	Session       *Session
	Token         string
}

// SuggestID allocates an unassigned Emoji ID without creating any state.
func (s *Service) SuggestID(ctx context.Context) (string, error) {
	return s.alloc.AllocateUnique(ctx)
}

// Signup creates an account. Order matters: the credential source is
// format- and liveness-checked before any state exists, a supplied Emoji
// ID is format- then uniqueness-checked, and the account row plus its
// full recovery-code batch commit as one transaction. A failure at any
// step leaves no partial account; the session is issued only after the
// transaction commits.
func (s *Service) Signup(ctx context.Context, emojiID, credentialSource string) (*SignupResult, error) {
	if err := s.checker.Check(ctx, credentialSource); err != nil {
		return nil, err
	}

	if emojiID != "" {
		if !ValidEmojiID(emojiID) {
			return nil, oops.Code("EMOJI_ID_INVALID").
				Errorf("emoji id must be exactly %d symbols from the alphabet", EmojiIDLength)
		}
		taken, err := s.alloc.Taken(ctx, emojiID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, oops.Code("EMOJI_ID_TAKEN").Errorf("emoji id is already taken")
		}
	} else {
		allocated, err := s.alloc.AllocateUnique(ctx)
		if err != nil {
			return nil, err
		}
		emojiID = allocated
	}

	credentialHash, credentialSalt, err := s.hasher.Hash(ctx, credentialSource)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash credential").
			Wrap(err)
	}

	account, err := NewAccount(emojiID, credentialHash, credentialSalt)
	if err != nil {
		return nil, err
	}

	plaintext, hashed, err := GenerateRecoveryCodes(ctx, s.hasher)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "generate recovery codes").
			Wrap(err)
	}

	// Account and code batch are an all-or-nothing unit.
	err = s.tx.InTransaction(ctx, func(txCtx context.Context) error {
		if err := s.accounts.Create(txCtx, account); err != nil {
			return err
		}
		return s.codes.CreateBatch(txCtx, account.ID, hashed)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmojiID) {
			// Lost a race with a concurrent signup for the same id.
			return nil, oops.Code("EMOJI_ID_TAKEN").Errorf("emoji id is already taken")
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create account with recovery codes").
			Wrap(err)
	}

	session, token, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, err
	}

	return &SignupResult{
		Account:       account,
		RecoveryCodes: plaintext,
		Session:       session,
		Token:         token,
	}, nil
}

// Signin authenticates an account by Emoji ID and credential source.
// Format validation happens before any store query. An unknown id still
// burns a full hash derivation so its latency is indistinguishable from
// a mismatch, and both cases return the same generic error.
func (s *Service) Signin(ctx context.Context, emojiID, credentialSource string) (*SignupResult, error) {
	if !ValidEmojiID(emojiID) {
		return nil, oops.Code("EMOJI_ID_INVALID").
			Errorf("emoji id must be exactly %d symbols from the alphabet", EmojiIDLength)
	}
	// An empty credential must fail before the lookup: Verify fast-fails
	// an empty candidate while the dummy derivation does not, so falling
	// through would make latency depend on account existence.
	if credentialSource == "" {
		return nil, invalidCredentials()
	}

	account, lookupErr := s.accounts.GetByEmojiID(ctx, emojiID)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			verifyDummy(ctx, s.hasher, credentialSource)
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "get account by emoji id").
			Wrap(lookupErr)
	}

	if !s.hasher.Verify(ctx, credentialSource, account.CredentialHash, account.CredentialSalt) {
		return nil, invalidCredentials()
	}

	session, token, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, err
	}

	// Prior sessions stay valid; sessions are additive (multi-device).
	return &SignupResult{Account: account, Session: session, Token: token}, nil
}

// Signout revokes the presented session. Missing, empty, or already
// revoked tokens are a no-op: signout is idempotent.
func (s *Service) Signout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.sessions.DeleteByTokenHash(ctx, HashSessionToken(token)); err != nil {
		return oops.Code("AUTH_SIGNOUT_FAILED").
			With("operation", "delete session by token hash").
			Wrap(err)
	}
	return nil
}

// Me resolves a session token to its account. Expired and never-existed
// tokens are indistinguishable to the caller.
func (s *Service) Me(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, notAuthenticated()
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notAuthenticated()
		}
		return nil, oops.Code("AUTH_ME_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		return nil, notAuthenticated()
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Account deleted after issue; cascades normally prevent this.
			return nil, notAuthenticated()
		}
		return nil, oops.Code("AUTH_ME_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}

	return account, nil
}

// issueSession generates a token and persists its hashed session row.
func (s *Service) issueSession(ctx context.Context, account *Account) (*Session, string, error) {
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

// invalidCredentials is the single generic authentication failure.
// Unknown id, credential mismatch, and bad recovery codes all collapse
// into it so callers cannot probe for account existence.
func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid credentials")
}

// notAuthenticated covers absent, expired, and unknown session tokens
// identically.
func notAuthenticated() error {
	return oops.Code("SESSION_INVALID").Errorf("not authenticated")
}
