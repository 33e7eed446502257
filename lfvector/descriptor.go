// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

import (
	"sync/atomic"
	"unsafe"

	"github.com/aristanetworks/lfvector/sync/hazard"
)

// writeDescriptor records a single pending slot mutation (spec.md §3,
// §4.3). Unlike the original Rust source's Option<WriteDescriptor>, a
// pending write is represented as a plain nilable *writeDescriptor — see
// DESIGN.md's "Option<WriteDescriptor> collapsed to a nilable pointer"
// entry for why that's a safe simplification in Go.
type writeDescriptor struct {
	location   *atomic.Uint64
	old, new   uint64
	generation uint64 // bumped each time this struct is recycled; see Vector's descPool/wdPool.
}

// descriptor is the container's published ground truth: the logical
// size, plus whatever single-slot write is still in flight to reach
// that size (spec.md §3, invariants I1-I4).
type descriptor struct {
	size       uint64
	pending    atomic.Pointer[writeDescriptor]
	generation uint64
}

// completeWrite performs (or confirms the prior completion of) the
// pending write on d, per spec.md §4.3. Any thread that reaches here
// either performs the CAS or discovers someone else already did; both
// leave the slot holding w.new, so the CAS result itself is deliberately
// ignored (spec.md: "idempotency of the transition old → new under
// at-most-one successor descriptor guarantees both outcomes").
//
// freeWD is called exactly once, by the one thread whose Swap observed
// the live write-descriptor, after the hazard domain confirms no reader
// still protects it (spec.md I5, I6).
func completeWrite(d *descriptor, domain *hazard.Domain, freeWD func(*writeDescriptor)) {
	hp := domain.Acquire()
	defer hp.Release()

	w := hazard.Protect(hp, &d.pending)
	if w == nil {
		return
	}

	w.location.CompareAndSwap(w.old, w.new)

	// Swap (not CAS) is correct here: whichever thread's Swap call
	// observes the old, non-nil value is the one thread that retires it;
	// a second concurrent Swap will observe nil already and retire
	// nothing, satisfying spec.md I5 for write-descriptors.
	old := d.pending.Swap(nil)
	if old != nil {
		domain.Retire(unsafe.Pointer(old), func() { freeWD(old) })
	}
}
