// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hazard implements hazard pointers: a safe-memory-reclamation
// scheme that lets a reader announce "I am still looking at this address"
// so that a concurrent writer, having swapped the address out, knows not
// to free it until every announcement referencing it is gone.
//
// This is the Go-side implementation of the external collaborator
// spec.md §1 calls out as assumed ("a hazard-pointer domain primitive").
// No published Go package fills that role the way haphazard fills it for
// the original Rust source (see original_source/src/hazptr_practice.rs),
// so this package implements the protocol spec.md §5 describes directly:
// acquire, protect, retire, release.
package hazard

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/aristanetworks/lfvector/hashmap"
	"github.com/aristanetworks/lfvector/logger"
)

// defaultReclaimThreshold is the number of outstanding retirements a
// Domain accumulates before it opportunistically scans for reclaimable
// memory. It is a throughput/latency knob only; correctness does not
// depend on its value (a Domain with a huge backlog is still safe, just
// slower to release memory back to the runtime).
const defaultReclaimThreshold = 64

// record is a single hazard-pointer slot. A goroutine "owns" a record
// between Acquire and Release; ownership is tracked with a CAS on active
// so that Acquire never blocks waiting for another goroutine to release
// one.
type record struct {
	active atomic.Bool
	addr   atomic.Uintptr // 0 means "not currently protecting anything"
}

// retirement is one pointer a writer has swapped out and asked the
// Domain to free once no Pointer protects it.
type retirement struct {
	addr uintptr
	free func()
}

// Domain is a reclamation scope. Retirements made on a Domain are only
// ever checked against Pointers acquired from the same Domain — per
// spec.md §9's "no global mutable state", every lfvector.Vector[T] owns
// exactly one Domain, not a process-wide singleton.
type Domain struct {
	logger logger.Logger

	recordsMu sync.Mutex // guards append-only growth of records
	records   []*record

	retiredMu sync.Mutex
	retired   []retirement
	threshold int

	scanning atomic.Bool // at most one scan in flight at a time

	// live is the working set used while scanning: the set of addresses
	// currently protected by some active record. Rebuilt from scratch
	// every scan via Clear+Set rather than mutated incrementally, so a
	// plain (non-concurrent-safe) map suffices — it is only ever touched
	// by the single goroutine that won the scanning CAS.
	live *hashmap.Hashmap[uintptr, struct{}]
}

// Option configures a Domain constructed by NewDomain.
type Option func(*Domain)

// WithLogger attaches a logger.Logger that receives Infof-level messages
// about reclamation batch sizes. A nil logger (the default) disables
// this entirely.
func WithLogger(l logger.Logger) Option {
	return func(d *Domain) { d.logger = l }
}

// WithReclaimThreshold overrides defaultReclaimThreshold.
func WithReclaimThreshold(n int) Option {
	return func(d *Domain) {
		if n > 0 {
			d.threshold = n
		}
	}
}

// NewDomain creates a new, empty reclamation scope.
func NewDomain(opts ...Option) *Domain {
	d := &Domain{
		threshold: defaultReclaimThreshold,
		live: hashmap.New[uintptr, struct{}](0,
			func(p uintptr) uint64 { return uint64(p) },
			func(x, y uintptr) bool { return x == y }),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Pointer is a single hazard-pointer announcement, acquired from a
// Domain and released back to it when the caller is done reading the
// address it protected.
type Pointer struct {
	domain *Domain
	rec    *record
}

// Acquire returns a hazard pointer slot from d. It never waits for
// another goroutine to release a record: it either finds an
// already-allocated, currently-unused record via CAS, or appends a new
// one. It is not lock-free: recordsMu is taken briefly to snapshot the
// records slice and again to append a new record.
func (d *Domain) Acquire() *Pointer {
	d.recordsMu.Lock()
	records := d.records
	d.recordsMu.Unlock()

	for _, r := range records {
		if r.active.CompareAndSwap(false, true) {
			return &Pointer{domain: d, rec: r}
		}
	}

	r := &record{}
	r.active.Store(true)
	d.recordsMu.Lock()
	d.records = append(d.records, r)
	d.recordsMu.Unlock()
	return &Pointer{domain: d, rec: r}
}

// Release clears p's announcement, making the underlying record
// available for reuse by a future Acquire. p must not be used again
// after Release.
func (p *Pointer) Release() {
	p.rec.addr.Store(0)
	p.rec.active.Store(false)
}

// Protect publishes target's current value into p, re-reads target, and
// keeps retrying until the two reads agree — at which point it is safe
// to say that value was hazarded *before* anyone could have decided to
// retire it, so a concurrent Retire(value, ...) is guaranteed to see p's
// announcement and defer freeing. Returns the stable value read from
// target; returns nil (and clears p's announcement) if target is nil.
//
// Protect is a free function, not a method on Pointer, because Go
// methods cannot introduce additional type parameters: Descriptor and
// WriteDescriptor in lfvector both need this same dance over their own
// atomic.Pointer[T].
func Protect[T any](p *Pointer, target *atomic.Pointer[T]) *T {
	for {
		candidate := target.Load()
		p.rec.addr.Store(uintptr(unsafe.Pointer(candidate)))
		recheck := target.Load()
		if recheck == candidate {
			return candidate
		}
		// target moved between the load and the announcement; the
		// announcement we just made doesn't protect anything real, so
		// loop and try again against the newer value.
	}
}

// Retire asks d to free ptr, via the supplied free func, once no
// Pointer acquired from d protects it. If ptr is nil, free is called
// immediately (there is nothing to protect). Only the goroutine whose
// CAS logically removed ptr from circulation should call Retire on it
// (spec.md I5) — Retire itself does not and cannot enforce single
// ownership; that discipline lives in the caller (lfvector).
func (d *Domain) Retire(ptr unsafe.Pointer, free func()) {
	if ptr == nil {
		free()
		return
	}

	d.retiredMu.Lock()
	d.retired = append(d.retired, retirement{addr: uintptr(ptr), free: free})
	shouldScan := len(d.retired) >= d.threshold
	d.retiredMu.Unlock()

	if shouldScan {
		d.tryScan()
	}
}

// tryScan attempts to reclaim retired pointers that are no longer
// hazarded. At most one scan runs at a time per Domain; a goroutine that
// loses the race simply leaves its retirements for the next scan rather
// than blocking — scanning is an amortized, best-effort side channel,
// never on the critical path a push/pop's own CAS retry loop depends on.
func (d *Domain) tryScan() {
	if !d.scanning.CompareAndSwap(false, true) {
		return
	}
	defer d.scanning.Store(false)

	d.recordsMu.Lock()
	records := d.records
	d.recordsMu.Unlock()

	d.live.Clear()
	for _, r := range records {
		if r.active.Load() {
			if a := r.addr.Load(); a != 0 {
				d.live.Set(a, struct{}{})
			}
		}
	}

	d.retiredMu.Lock()
	retired := d.retired
	d.retiredMu.Unlock()

	remaining := retired[:0]
	var freed []func()
	for _, e := range retired {
		if _, hazarded := d.live.Get(e.addr); hazarded {
			remaining = append(remaining, e)
		} else {
			freed = append(freed, e.free)
		}
	}

	d.retiredMu.Lock()
	// Retirements made concurrently with this scan (after we snapshot
	// `retired` above) were appended to d.retired after our snapshot's
	// length; splice them back in after the ones we decided to keep.
	d.retired = append(append([]retirement{}, remaining...), d.retired[len(retired):]...)
	d.retiredMu.Unlock()

	for _, free := range freed {
		free()
	}
	if d.logger != nil && len(freed) > 0 {
		d.logger.Infof("lfvector: reclaimed %d retired pointer(s), %d still hazarded",
			len(freed), len(remaining))
	}
}

// Pending returns the number of retired pointers not yet reclaimed.
// Exposed for tests; not part of the acquire/protect/retire/release
// protocol itself.
func (d *Domain) Pending() int {
	d.retiredMu.Lock()
	defer d.retiredMu.Unlock()
	return len(d.retired)
}
