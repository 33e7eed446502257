// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

import "sync/atomic"

// bucket is a contiguous block of bucketSlotCount(k) atomic 64-bit
// slots (spec.md §2.1, §4.2). make() zero-initializes it, which spec.md
// §4.2 requires: zero is a legal sentinel "old" value for the first
// write into any slot, and the slice's backing array is addressable
// memory the moment make returns, which is all a CAS instruction needs.
type bucket struct {
	slots []atomic.Uint64
}

// bucketArray is the fixed 60-entry array of atomic bucket pointers
// (spec.md §2.1). It always exists in full — only individual buckets are
// lazily installed.
type bucketArray [bucketCount]atomic.Pointer[bucket]

// ensureBucket installs bucket k if it isn't already installed,
// returning the (possibly pre-existing) bucket and whether this call is
// the one that installed it. This is allocateBucket from spec.md §4.2:
// allocate off the CAS-losing path eagerly, then let exactly one racing
// CAS win and everyone else's allocation become garbage for the Go
// runtime to collect — Go has no manual allocator to "deallocate
// immediately" back into, so the loser's bucket is simply dropped
// (spec.md's external "byte allocator" collaborator is replaced end to
// end by Go's own allocator; see DESIGN.md). The installed bool lets
// callers count and log bucket installation exactly once per bucket,
// not once per call.
func (a *bucketArray) ensureBucket(k int) (b *bucket, installed bool) {
	slot := &a[k]
	if b := slot.Load(); b != nil {
		return b, false
	}

	fresh := &bucket{slots: make([]atomic.Uint64, bucketSlotCount(k))}
	if slot.CompareAndSwap(nil, fresh) {
		return fresh, true
	}
	// Lost the race: someone else installed bucket k first. Their
	// bucket is the one every subsequent mapping() call must agree on,
	// so use it, not ours.
	return slot.Load(), false
}
