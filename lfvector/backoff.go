// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristanetworks/lfvector/monotime"
)

// idleResetAfter bounds how long a retry loop can go quiet before its
// next failure is treated as the start of a fresh contention episode
// rather than a continuation of the last one. Grounded on
// gnmireverse/client/client.go's own retry loop: "If the last error was
// from a while ago, reset the backoff interval."
const idleResetAfter = 1 * time.Second

// casBackoff wraps a cenkalti/backoff/v4 policy with the idle-reset
// behavior above. It backs spec.md §4.4/§4.9's "retries on CAS failure
// with exponential backoff" — purely a performance hint, as spec.md's
// Design Notes insist: every method here is safe to no-op (a retry loop
// that never backs off is still correct, just noisier).
type casBackoff struct {
	policy   backoff.BackOff
	lastFail monotime.Nanotime
	hasFail  bool
}

// newCASBackoff builds the default policy: an uncapped-retry exponential
// backoff (MaxElapsedTime=0 disables cenkalti/backoff's own give-up
// behavior, since spec.md §5 requires retry to remain unbounded).
func newCASBackoff() *casBackoff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return &casBackoff{policy: b}
}

// newCASBackoffFrom wraps a caller-supplied policy (see WithBackoff).
func newCASBackoffFrom(policy backoff.BackOff) *casBackoff {
	return &casBackoff{policy: policy}
}

// wait sleeps for the policy's next interval, resetting the policy first
// if the prior failure was long enough ago that this contention episode
// should be treated as new.
func (c *casBackoff) wait() {
	now := monotime.Now()
	if c.hasFail && monotime.Since(c.lastFail) > idleResetAfter {
		c.policy.Reset()
	}
	c.lastFail = now
	c.hasFail = true

	d := c.policy.NextBackOff()
	if d == backoff.Stop {
		// Only reachable with a caller-supplied policy that has a
		// MaxElapsedTime; treat it as "no delay" rather than giving up,
		// since lfvector's own retry loops never terminate on CAS
		// contention (spec.md §4.9).
		return
	}
	if d > 0 {
		time.Sleep(d)
	}
}
