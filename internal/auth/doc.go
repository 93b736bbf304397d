// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

// Package auth provides the possession-factor authentication core for
// Scheduler. A user is identified by a short public Emoji ID and
// authenticated by proving knowledge of a private calendar feed URL.
//
// # Domain Types
//
// Domain types (Account, Session, RecoveryCode) should be created using
// their respective constructors:
//   - NewAccount - creates an Account with a validated Emoji ID and credential pair
//   - NewSession - creates a Session with a validated account binding and expiry
//   - GenerateRecoveryCodes - mints the fixed one-time code pool for an account
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from
// these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - suggest, signup, signin, signout, session introspection
//   - RecoveryService - one-time-code recovery with optional credential rotation
//
// The store is the single source of truth; no authentication-relevant
// state is cached in process memory.
package auth
