// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmojiID is returned when an insert loses a uniqueness race
// on emoji_id. Repositories wrap it so the orchestrator can map the race
// to the same conflict error as an up-front taken check.
var ErrDuplicateEmojiID = errors.New("emoji id already exists")
