// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package lfvector implements a lock-free, dynamically-resizable
// concurrent container supporting push, pop, and size queries on
// fixed-width copyable values, following Dechev, Pirkelbauer &
// Stroustrup's "Lock-free Dynamically Resizable Arrays" (2006),
// combined with hazard-pointer memory reclamation.
package lfvector

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristanetworks/lfvector/logger"
	"github.com/aristanetworks/lfvector/sliceutils"
	"github.com/aristanetworks/lfvector/sync/hazard"
	sema "github.com/aristanetworks/lfvector/sync/semaphore"
)

// maxBucketInstalls bounds how many bucket-installation races Reserve
// lets run concurrently. Grounded on SPEC_FULL.md §3.7: installing
// bucket k is itself CAS-guarded (ensureBucket is safe to call from any
// number of goroutines), so this isn't a correctness requirement — it
// just keeps many concurrent Reserve calls from firing off simultaneous
// make() calls for buckets that are about to lose their CAS anyway.
const maxBucketInstalls = 8

// Vector is a lock-free, growable stack of values of type T. The zero
// value is not usable; construct one with New.
type Vector[T Word] struct {
	buckets bucketArray
	desc    atomic.Pointer[descriptor]

	hz *hazard.Domain

	backoffFactory func() *casBackoff
	installSem     *sema.Weighted

	logger           logger.Logger
	metrics          *Metrics
	reclaimThreshold int

	descPool sync.Pool
	wdPool   sync.Pool
}

// Option configures a Vector constructed by New.
type Option[T Word] func(*Vector[T])

// WithLogger attaches a logger.Logger. lfvector logs bucket
// installation and lost descriptor-publish CAS races at Infof, a
// Fatalf immediately before a capacity-overflow panic (spec.md §4.9,
// §7; allocation failure has no separate hook — see doc.go), and
// forwards the same logger to the internal hazard.Domain for
// reclamation batch reporting. None of this is on lfvector's
// correctness path; a nil logger (the default) is a no-op.
func WithLogger[T Word](l logger.Logger) Option[T] {
	return func(v *Vector[T]) { v.logger = l }
}

// WithMetrics attaches Prometheus counters. A nil (or never-supplied) m
// leaves the Vector uninstrumented.
func WithMetrics[T Word](m *Metrics) Option[T] {
	return func(v *Vector[T]) { v.metrics = m }
}

// WithBackoff overrides the default exponential backoff policy used
// between CAS retries. newPolicy is called once per retry loop (Push or
// Pop), since a backoff.BackOff is stateful and must not be
// shared across concurrent callers.
func WithBackoff[T Word](newPolicy func() backoff.BackOff) Option[T] {
	return func(v *Vector[T]) {
		v.backoffFactory = func() *casBackoff {
			return newCASBackoffFrom(newPolicy())
		}
	}
}

// WithReclaimThreshold overrides how many retired descriptors/
// write-descriptors accumulate before the hazard-pointer domain
// attempts a reclamation scan.
func WithReclaimThreshold[T Word](n int) Option[T] {
	return func(v *Vector[T]) { v.reclaimThreshold = n }
}

func (v *Vector[T]) init() {
	if v.backoffFactory == nil {
		v.backoffFactory = newCASBackoff
	}
	if v.installSem == nil {
		v.installSem = sema.NewWeighted(maxBucketInstalls)
	}
}

// New constructs an empty Vector. The zeroth descriptor (size 0,
// no pending write) is published before New returns, satisfying I1:
// the descriptor pointer is never null once the container exists.
func New[T Word](opts ...Option[T]) *Vector[T] {
	v := &Vector[T]{}
	for _, opt := range opts {
		opt(v)
	}
	hzOpts := []hazard.Option{}
	if v.logger != nil {
		hzOpts = append(hzOpts, hazard.WithLogger(v.logger))
	}
	if v.reclaimThreshold > 0 {
		hzOpts = append(hzOpts, hazard.WithReclaimThreshold(v.reclaimThreshold))
	}
	v.hz = hazard.NewDomain(hzOpts...)
	v.init()

	initial := &descriptor{size: 0}
	v.desc.Store(initial)
	return v
}

func (v *Vector[T]) freeDescriptor(d *descriptor) {
	d.pending.Store(nil)
	v.descPool.Put(d)
	v.metrics.incReclaimedDescriptor()
}

func (v *Vector[T]) freeWriteDescriptor(w *writeDescriptor) {
	v.wdPool.Put(w)
	v.metrics.incReclaimedDescriptor()
}

// newDescriptor returns a descriptor for size, recycling a pooled one
// when available. generation is bumped on every reuse so tests can
// detect a descriptor being handed out before its predecessor use was
// fully retired (it never should be, but the counter makes that
// property observable instead of merely assumed).
func (v *Vector[T]) newDescriptor(size uint64, pending *writeDescriptor) *descriptor {
	if x := v.descPool.Get(); x != nil {
		d := x.(*descriptor)
		d.size = size
		d.generation++
		d.pending.Store(pending)
		return d
	}
	d := &descriptor{size: size}
	d.pending.Store(pending)
	return d
}

func (v *Vector[T]) newWriteDescriptor(location *atomic.Uint64, old, new uint64) *writeDescriptor {
	if x := v.wdPool.Get(); x != nil {
		w := x.(*writeDescriptor)
		w.location, w.old, w.new = location, old, new
		w.generation++
		return w
	}
	return &writeDescriptor{location: location, old: old, new: new}
}

// help completes d's pending write, if any, returning immediately if
// d.pending is already nil. Every push/pop loop iteration helps before
// acting, per spec.md §4.4/§4.5 step 2.
func (v *Vector[T]) help(d *descriptor) {
	if d.pending.Load() == nil {
		return
	}
	completeWrite(d, v.hz, v.freeWriteDescriptor)
}

// loadDescriptor returns the currently published descriptor, protected
// by a hazard pointer for the duration hp is held.
func (v *Vector[T]) loadDescriptor(hp *hazard.Pointer) *descriptor {
	return hazard.Protect(hp, &v.desc)
}

func unsafePointerOf(d *descriptor) unsafe.Pointer {
	return unsafe.Pointer(d)
}

// mapping wraps the package-level mapping function with a Fatalf call
// immediately before a capacity-overflow panic propagates, mirroring
// glog.Fatalf's abort semantics (spec.md §4.9, SPEC_FULL.md §2.1).
// Allocation failure has no equivalent hook here; see doc.go for why.
func (v *Vector[T]) mapping(i uint64) (bucket int, offset uint64) {
	defer func() {
		if r := recover(); r != nil {
			if v.logger != nil {
				if err, ok := r.(*Error); ok {
					v.logger.Fatalf("lfvector: %s", err)
				}
			}
			panic(r)
		}
	}()
	return mapping(i)
}

// ensureBucketInstalled installs bucket k if it isn't already
// installed, counting and logging the installation exactly once per
// bucket regardless of how many goroutines race to call it.
func (v *Vector[T]) ensureBucketInstalled(k int) *bucket {
	b, installed := v.buckets.ensureBucket(k)
	if installed {
		v.metrics.incBucketsAllocated()
		if v.logger != nil {
			v.logger.Infof("lfvector: installed bucket %d (%d slots)", k, bucketSlotCount(k))
		}
	}
	return b
}

// slotAt returns the atomic slot addressed by logical index i,
// installing the bucket that holds it first if necessary. This is the
// original source's get(i) internal indexed accessor (SPEC_FULL.md
// §4) — push and pop address a slot through it rather than inlining
// mapping+ensureBucket separately; Reserve installs whole buckets via
// ensureBucketInstalled directly.
func (v *Vector[T]) slotAt(i uint64) *atomic.Uint64 {
	bucketIdx, offset := v.mapping(i)
	b := v.ensureBucketInstalled(bucketIdx)
	return &b.slots[offset]
}

// Push appends val to the container. It never blocks and never returns
// an error for ordinary contention; only a capacity overflow (mapping
// or bucket-layout arithmetic wrapping the platform's addressable
// range) panics with a *Error of KindCapacityOverflow, per spec.md §4.9.
func (v *Vector[T]) Push(val T) {
	bo := v.backoffFactory()
	bits := bitsOf(val)

	for {
		hp := v.hz.Acquire()
		d := v.loadDescriptor(hp)
		v.help(d)

		slot := v.slotAt(d.size)
		old := slot.Load()

		nextW := v.newWriteDescriptor(slot, old, bits)
		nextD := v.newDescriptor(d.size+1, nextW)

		if v.desc.CompareAndSwap(d, nextD) {
			hp.Release()
			v.help(nextD)
			v.hz.Retire(unsafePointerOf(d), func() { v.freeDescriptor(d) })
			v.metrics.incPushes()
			return
		}

		hp.Release()
		// Lost the race: nextD and nextW were never published or shared,
		// so they're ours to recycle directly rather than route through
		// the hazard domain (spec.md §4.4 step 7, "free synchronously").
		v.descPool.Put(nextD)
		v.wdPool.Put(nextW)
		v.metrics.incCASRetries()
		if v.logger != nil {
			v.logger.Infof("lfvector: lost descriptor-publish CAS at size %d, retrying", d.size)
		}
		bo.wait()
	}
}

// Pop removes and returns the most recently pushed value. It returns
// (zero, false) if the container was empty at the linearization point.
func (v *Vector[T]) Pop() (T, bool) {
	bo := v.backoffFactory()

	for {
		hp := v.hz.Acquire()
		d := v.loadDescriptor(hp)
		v.help(d)

		if d.size == 0 {
			hp.Release()
			v.metrics.incPops()
			var zero T
			return zero, false
		}

		val := v.slotAt(d.size - 1).Load()

		nextD := v.newDescriptor(d.size-1, nil)

		if v.desc.CompareAndSwap(d, nextD) {
			hp.Release()
			v.hz.Retire(unsafePointerOf(d), func() { v.freeDescriptor(d) })
			v.metrics.incPops()
			return valueOf[T](val), true
		}

		hp.Release()
		v.descPool.Put(nextD)
		v.metrics.incCASRetries()
		if v.logger != nil {
			v.logger.Infof("lfvector: lost descriptor-publish CAS at size %d, retrying", d.size)
		}
		bo.wait()
	}
}

// Size returns a linearizable snapshot of the logical length. If the
// published descriptor has a pending write in flight, the element it
// describes is not yet observable, so Size reports one less than
// D.size (spec.md §4.7).
func (v *Vector[T]) Size() uint64 {
	hp := v.hz.Acquire()
	defer hp.Release()

	d := v.loadDescriptor(hp)
	size := d.size

	hpw := v.hz.Acquire()
	defer hpw.Release()
	if hazard.Protect(hpw, &d.pending) != nil {
		return size - 1
	}
	return size
}

// Reserve eagerly installs every bucket needed to hold n logical
// elements, so that the first n subsequent pushes trigger no further
// bucket allocation (spec.md §4.6, P7). Safe to call concurrently with
// Push/Pop and with other Reserve calls.
func (v *Vector[T]) Reserve(n uint64) {
	if n == 0 {
		return
	}
	// mapping(n-1) panics with KindCapacityOverflow on its own if n would
	// overflow the addressable range, which is exactly P8's contract.
	lastBucket, _ := v.mapping(n - 1)

	ctx := context.Background()
	for k := 0; k <= lastBucket; k++ {
		if err := v.installSem.Acquire(ctx, 1); err != nil {
			continue
		}
		v.ensureBucketInstalled(k)
		v.installSem.Release(1)
	}
}

// DebugRetired returns a human-readable snapshot of the hazard domain's
// outstanding retirement count, useful for tests and diagnostics.
// The count is returned as a single-element []any built with
// sliceutils.ToAnySlice.
func (v *Vector[T]) DebugRetired() []any {
	return sliceutils.ToAnySlice([]int{v.hz.Pending()})
}
