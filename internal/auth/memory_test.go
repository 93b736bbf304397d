// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/dajbelshaw/Scheduler/internal/auth"
)

// fastHasher is a cheap stand-in for PBKDF2 in service tests.
type fastHasher struct{}

func (fastHasher) Hash(_ context.Context, secret string) (string, string, error) {
	if secret == "" {
		return "", "", auth.ErrEmptySecret
	}
	salt := hex.EncodeToString([]byte(secret))
	sum := sha256.Sum256([]byte(secret + salt))
	return hex.EncodeToString(sum[:]), salt, nil
}

func (fastHasher) Verify(_ context.Context, candidate, hashHex, saltHex string) bool {
	sum := sha256.Sum256([]byte(candidate + saltHex))
	return hex.EncodeToString(sum[:]) == hashHex
}

// okChecker accepts every credential source.
type okChecker struct{}

func (okChecker) Check(context.Context, string) error { return nil }

// failChecker rejects every credential source as not live.
type failChecker struct{}

func (failChecker) Check(context.Context, string) error {
	return oops.Code("CREDENTIAL_NOT_LIVE").Errorf("feed unreachable")
}

type memAccounts struct {
	mu        sync.Mutex
	byID      map[ulid.ULID]*auth.Account
	byEmoji   map[string]*auth.Account
	createErr error
	getCalls  int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmoji: make(map[string]*auth.Account),
	}
}

func (m *memAccounts) Create(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byEmoji[account.EmojiID]; ok {
		return oops.Wrap(auth.ErrDuplicateEmojiID)
	}
	clone := *account
	m.byID[account.ID] = &clone
	m.byEmoji[account.EmojiID] = &clone
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (m *memAccounts) GetByEmojiID(_ context.Context, emojiID string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	account, ok := m.byEmoji[emojiID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (m *memAccounts) EmojiIDTaken(_ context.Context, emojiID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byEmoji[emojiID]
	return ok, nil
}

func (m *memAccounts) UpdateCredential(_ context.Context, id ulid.ULID, hash, salt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	account.CredentialHash = hash
	account.CredentialSalt = salt
	return nil
}

func (m *memAccounts) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(m.byEmoji, account.EmojiID)
	delete(m.byID, id)
	return nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memSessions struct {
	mu     sync.Mutex
	byHash map[string]*auth.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byHash: make(map[string]*auth.Session)}
}

func (m *memSessions) Create(_ context.Context, session *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *session
	m.byHash[session.TokenHash] = &clone
	return nil
}

func (m *memSessions) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (m *memSessions) GetByAccount(_ context.Context, accountID ulid.ULID) ([]*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []*auth.Session
	for _, session := range m.byHash {
		if session.AccountID == accountID {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}
	return sessions, nil
}

func (m *memSessions) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byHash, tokenHash)
	return nil
}

func (m *memSessions) DeleteByAccount(_ context.Context, accountID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, session := range m.byHash {
		if session.AccountID == accountID {
			delete(m.byHash, hash)
		}
	}
	return nil
}

func (m *memSessions) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, session := range m.byHash {
		if session.IsExpired() {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

type memCode struct {
	hash string
	salt string
	used bool
}

type memCodes struct {
	mu             sync.Mutex
	byAccount      map[ulid.ULID][]*memCode
	createBatchErr error
}

func newMemCodes() *memCodes {
	return &memCodes{byAccount: make(map[ulid.ULID][]*memCode)}
}

func (m *memCodes) CreateBatch(_ context.Context, accountID ulid.ULID, codes []auth.HashedRecoveryCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createBatchErr != nil {
		return m.createBatchErr
	}
	for _, code := range codes {
		m.byAccount[accountID] = append(m.byAccount[accountID], &memCode{
			hash: code.Hash,
			salt: code.Salt,
		})
	}
	return nil
}

func (m *memCodes) Consume(_ context.Context, accountID ulid.ULID, verify auth.CodeVerifier) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, code := range m.byAccount[accountID] {
		if code.used {
			continue
		}
		if verify(code.hash, code.salt) {
			code.used = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memCodes) CountUnused(_ context.Context, accountID ulid.ULID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, code := range m.byAccount[accountID] {
		if !code.used {
			n++
		}
	}
	return n, nil
}

// memTx emulates transactional semantics over the in-memory fakes by
// snapshotting and restoring state around the callback.
type memTx struct {
	accounts *memAccounts
	codes    *memCodes
}

func (t memTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	accByID, accByEmoji := t.snapshotAccounts()
	codesByAccount := t.snapshotCodes()

	if err := fn(ctx); err != nil {
		t.restore(accByID, accByEmoji, codesByAccount)
		return err
	}
	return nil
}

func (t memTx) snapshotAccounts() (map[ulid.ULID]*auth.Account, map[string]*auth.Account) {
	t.accounts.mu.Lock()
	defer t.accounts.mu.Unlock()
	byID := make(map[ulid.ULID]*auth.Account, len(t.accounts.byID))
	byEmoji := make(map[string]*auth.Account, len(t.accounts.byEmoji))
	for k, v := range t.accounts.byID {
		byID[k] = v
	}
	for k, v := range t.accounts.byEmoji {
		byEmoji[k] = v
	}
	return byID, byEmoji
}

func (t memTx) snapshotCodes() map[ulid.ULID][]*memCode {
	t.codes.mu.Lock()
	defer t.codes.mu.Unlock()
	byAccount := make(map[ulid.ULID][]*memCode, len(t.codes.byAccount))
	for k, v := range t.codes.byAccount {
		byAccount[k] = append([]*memCode(nil), v...)
	}
	return byAccount
}

func (t memTx) restore(byID map[ulid.ULID]*auth.Account, byEmoji map[string]*auth.Account, codes map[ulid.ULID][]*memCode) {
	t.accounts.mu.Lock()
	t.accounts.byID = byID
	t.accounts.byEmoji = byEmoji
	t.accounts.mu.Unlock()

	t.codes.mu.Lock()
	t.codes.byAccount = codes
	t.codes.mu.Unlock()
}

// testEnv bundles a fully wired service over the in-memory fakes.
type testEnv struct {
	accounts *memAccounts
	sessions *memSessions
	codes    *memCodes
	hasher   fastHasher
	service  *auth.Service
	recovery *auth.RecoveryService
}

func newTestEnv(checker auth.CredentialChecker) *testEnv {
	env := &testEnv{
		accounts: newMemAccounts(),
		sessions: newMemSessions(),
		codes:    newMemCodes(),
	}
	alloc := auth.NewAllocator(env.accounts, auth.DefaultAllocatorMaxAttempts)
	tx := memTx{accounts: env.accounts, codes: env.codes}

	env.service = auth.NewService(env.accounts, env.sessions, env.codes, env.hasher, alloc, checker, tx)
	env.recovery = auth.NewRecoveryService(env.accounts, env.sessions, env.codes, env.hasher, checker)
	return env
}
