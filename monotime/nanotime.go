// Copyright (C) 2016  Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package monotime provides a fast monotonic clock source.
package monotime

import "time"

// Nanotime represents a point in time read from the monotonic clock, in
// nanoseconds. Two Nanotime values are meaningfully ordered and subtracted
// only relative to each other, never to a wall-clock epoch.
type Nanotime int64

// processStart anchors every Now() reading. time.Since subtracts two
// time.Time values using Go's monotonic reading, so the resulting duration
// is immune to wall-clock adjustments (NTP steps, leap seconds) the same
// way a raw runtime monotonic clock source would be.
var processStart = time.Now()

// Now returns the current time, as read from the monotonic clock source.
func Now() Nanotime {
	return Nanotime(time.Since(processStart))
}

// Since returns the time elapsed since t, as measured by the monotonic
// clock source.
func Since(t Nanotime) time.Duration {
	return time.Duration(Now() - t)
}
