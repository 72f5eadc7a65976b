/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// TransientError marks a tool call failure that is expected to resolve
// on retry, such as a rate limit or a network timeout. Transports wrap
// errors with Transient when they can classify them directly.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so IsTransient reports it retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// FatalError marks a tool call failure that retrying cannot fix:
// auth, permission, not-found, or a transient failure that exhausted
// its retry budget.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err so IsTransient reports it not retryable.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

// fatalMarkers are checked before transientMarkers so that, e.g., a
// permission error mentioning a retry hint stays fatal.
var fatalMarkers = []string{
	"not found",
	"permission",
	"unauthorized",
	"forbidden",
	"bad request",
	"invalid argument",
}

var transientMarkers = []string{
	"429",
	"503",
	"504",
	"529",
	"rate limit",
	"resource exhausted",
	"resource_exhausted",
	"quota",
	"unavailable",
	"overloaded",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"temporarily",
}

// IsTransient reports whether a transport error should be retried.
// Explicit TransientError/FatalError wrappers win; otherwise timeouts
// and well-known rate-limit/availability signals are transient and
// everything else, including unknown errors, is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
