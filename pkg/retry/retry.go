// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides bounded-retry helpers: a fixed-attempt Do loop
// with exponential backoff, used by the finish reporter (the
// publish-version engine call has its own fixed-pause loop in pkg/agent),
// plus an ErrorRetry helper that smooths bursts
// of errors into a single growing backoff instead of restarting from zero
// on every call.
package retry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
)

// Do retries fn until it returns a nil error, the context is cancelled, or
// maxTries attempts have been made (per the configured Options).
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	o := newRetryOptions()
	for _, opt := range opts {
		opt(o)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(o.backoffBase) * time.Millisecond
	b.MaxInterval = time.Duration(o.backoffCap) * time.Millisecond
	b.MaxElapsedTime = 0 // bounded by maxTries below, not by elapsed wall time

	var tries float64
	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !o.isRetryable(err) {
			return errors.Trace(err)
		}
		tries++
		if !math.IsInf(o.maxTries, 1) && tries >= o.maxTries {
			return errors.Trace(lastErr)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return errors.Trace(lastErr)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Trace(ctx.Err())
		case <-timer.C:
		}
	}
}

const resetErrIntervalGap = 3 * time.Minute

const maxErrorBackoff = 30 * time.Second

// ErrorRetry smooths a stream of errors observed over time into a single
// growing backoff duration, resetting once errors stop for a while. No
// package in this module calls it at present; the report loops keep their
// fixed interval after an RPC failure.
type ErrorRetry struct {
	mu                 sync.Mutex
	firstRetryTime     time.Time
	lastErrorRetryTime time.Time
}

// NewDefaultErrorRetry returns a zero-valued ErrorRetry ready to use.
func NewDefaultErrorRetry() *ErrorRetry {
	return &ErrorRetry{}
}

// GetRetryBackoff records that `err` just occurred and returns how long to
// wait before retrying. The backoff grows with how long errors have been
// occurring continuously; it resets to the floor once no error has been
// recorded for resetErrIntervalGap.
func (r *ErrorRetry) GetRetryBackoff(err error) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.firstRetryTime.IsZero() {
		r.firstRetryTime = now
	}
	if !r.lastErrorRetryTime.IsZero() && now.Sub(r.lastErrorRetryTime) > resetErrIntervalGap {
		r.firstRetryTime = now
	}
	r.lastErrorRetryTime = now

	elapsed := now.Sub(r.firstRetryTime)
	if elapsed > maxErrorBackoff {
		elapsed = maxErrorBackoff
	}
	return elapsed, nil
}

// Reset clears accumulated backoff state, called once an RPC succeeds.
func (r *ErrorRetry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.firstRetryTime = time.Time{}
	r.lastErrorRetryTime = time.Time{}
}
