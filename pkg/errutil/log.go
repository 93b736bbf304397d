// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError writes err at error level. An oops error contributes its
// code and context map as structured attributes; any other error logs
// as a plain error string.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, errorAttrs(err)...)
}

// errorAttrs flattens an error into slog key/value pairs.
func errorAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}
