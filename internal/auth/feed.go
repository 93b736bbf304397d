// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Feed checker configuration.
const (
	// DefaultFeedTimeout bounds the liveness fetch so one signup cannot
	// hang its handling slot. A timeout is a validation failure, not a
	// system fault.
	DefaultFeedTimeout = 5 * time.Second

	// feedSniffLimit caps how much of the response body is read when
	// sniffing for calendar content.
	feedSniffLimit = 64 * 1024
)

// CredentialChecker validates that a credential source is plausibly a
// live calendar feed before any account state is created.
type CredentialChecker interface {
	Check(ctx context.Context, source string) error
}

// ValidateFeedURL checks the shape of a credential source without any
// network traffic: absolute http(s) URL with a host.
func ValidateFeedURL(source string) error {
	if source == "" {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").Errorf("credential source cannot be empty")
	}

	u, err := url.Parse(source)
	if err != nil {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").
			With("operation", "parse credential source url").
			Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").
			With("scheme", u.Scheme).
			Errorf("credential source must be an http(s) url")
	}
	if u.Host == "" {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").Errorf("credential source must have a host")
	}
	return nil
}

// FeedChecker implements CredentialChecker with a bounded GET and a
// content sniff. Not a security boundary: it exists to catch typos and
// dead links at signup time, nothing more.
type FeedChecker struct {
	client *http.Client
}

// NewFeedChecker creates a FeedChecker with the given fetch timeout.
// Non-positive timeouts fall back to DefaultFeedTimeout.
func NewFeedChecker(timeout time.Duration) *FeedChecker {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	return &FeedChecker{
		client: &http.Client{Timeout: timeout},
	}
}

// Check validates the URL shape, fetches it, and sniffs the response for
// calendar content. Every failure mode maps to a validation-class error.
func (c *FeedChecker) Check(ctx context.Context, source string) error {
	if err := ValidateFeedURL(source); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").
			With("operation", "build feed request").
			Wrap(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return oops.Code("CREDENTIAL_NOT_LIVE").
			With("operation", "fetch credential source").
			Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return oops.Code("CREDENTIAL_NOT_LIVE").
			With("status", resp.StatusCode).
			Errorf("credential source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, feedSniffLimit))
	if err != nil {
		return oops.Code("CREDENTIAL_NOT_LIVE").
			With("operation", "read credential source body").
			Wrap(err)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/calendar") && !strings.Contains(string(body), "BEGIN:VCALENDAR") {
		return oops.Code("CREDENTIAL_NOT_LIVE").
			With("content_type", contentType).
			Errorf("credential source does not look like a calendar feed")
	}

	return nil
}

// Compile-time interface check.
var _ CredentialChecker = (*FeedChecker)(nil)
