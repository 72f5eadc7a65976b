/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package backoff provides the exponential backoff policy shared by the
// tool bridge and the completion backends. The delay schedule is a pure
// function of the attempt number so call sites can be tested without
// waiting on real clocks.
package backoff

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// Policy describes an exponential backoff schedule: delays double from
// Base and saturate at Cap, with up to Jitter of random slop added on
// top to avoid thundering herds.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Cap is the maximum delay between attempts.
	Cap time.Duration

	// Jitter is the maximum random addition to each delay. It must not
	// exceed Base so that observed delays stay non-decreasing across
	// attempts.
	Jitter time.Duration
}

// DefaultPolicy returns the policy used when callers do not supply one.
func DefaultPolicy() Policy {
	return Policy{
		Base:   500 * time.Millisecond,
		Cap:    30 * time.Second,
		Jitter: 250 * time.Millisecond,
	}
}

// Validate checks that the policy is internally consistent.
func (p Policy) Validate() error {
	switch {
	case p.Base <= 0:
		return errors.New("base delay must be positive")
	case p.Cap < p.Base:
		return errors.New("cap must be at least the base delay")
	case p.Jitter < 0:
		return errors.New("jitter cannot be negative")
	case p.Jitter > p.Base:
		return errors.New("jitter cannot exceed the base delay")
	}
	return nil
}

// Delay returns the backoff before retry number attempt, starting at
// zero: Base, 2*Base, 4*Base, ... capped at Cap. Negative attempts are
// treated as zero.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 0; i < attempt && d < p.Cap; i++ {
		d <<= 1
	}
	return min(d, p.Cap)
}

// Jittered returns Delay(attempt) plus a uniformly random duration in
// [0, Jitter). Randomness comes from crypto/rand; on a read failure the
// un-jittered delay is returned.
func (p Policy) Jittered(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(p.Jitter)))
	if err != nil {
		return d
	}
	return d + time.Duration(n.Int64())
}

// Sleep blocks for the jittered delay of the given attempt, returning
// early with ctx.Err() if the context is cancelled first.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Jittered(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
