// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hazard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"
)

// tagged is a pooled object carrying a generation counter: if it is
// ever freed and reused while a reader still holds a hazard pointer to
// it, the reader will observe a generation it did not expect.
type tagged struct {
	generation atomic.Uint64
}

func TestAcquireReleaseReusesRecords(t *testing.T) {
	d := NewDomain()
	p1 := d.Acquire()
	p1.Release()
	p2 := d.Acquire()
	if p1.rec != p2.rec {
		t.Fatal("Acquire after Release allocated a new record instead of reusing the free one")
	}
	p2.Release()
}

func TestRetireNilFreesImmediately(t *testing.T) {
	d := NewDomain()
	freed := false
	d.Retire(nil, func() { freed = true })
	if !freed {
		t.Fatal("Retire(nil, ...) did not call free immediately")
	}
}

func TestProtectedPointerNotReclaimed(t *testing.T) {
	d := NewDomain(WithReclaimThreshold(1))

	var target atomic.Pointer[tagged]
	obj := &tagged{}
	obj.generation.Store(1)
	target.Store(obj)

	hp := d.Acquire()
	protected := Protect(hp, &target)
	if protected != obj {
		t.Fatal("Protect did not return the stored object")
	}

	freed := false
	target.Store(nil)
	d.Retire(unsafe.Pointer(obj), func() { freed = true })

	if freed {
		t.Fatal("retired object was freed while still protected by a hazard pointer")
	}
	if d.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 while object is still hazarded", d.Pending())
	}

	hp.Release()
	d.tryScan()

	if !freed {
		t.Fatal("object was not freed after the protecting hazard pointer was released")
	}
}

// TestNoUseAfterReclaim is P6: a reader goroutine continuously protects
// the published pointer via a hazard pointer while writers retire and
// recycle objects as fast as possible. The reader must never observe a
// generation counter different from the one it protected (which would
// mean the object was freed and reused while still hazarded).
func TestNoUseAfterReclaim(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping adversarial reclamation test in short mode")
	}
	d := NewDomain(WithReclaimThreshold(4))

	var target atomic.Pointer[tagged]
	first := &tagged{}
	target.Store(first)

	var stop atomic.Bool
	var mismatches atomic.Int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			hp := d.Acquire()
			obj := Protect(hp, &target)
			if obj != nil {
				gen := obj.generation.Load()
				// Hold the reference for a moment, simulating real work a
				// reader would do while the pointer is hazarded.
				time.Sleep(time.Microsecond)
				if obj.generation.Load() != gen {
					mismatches.Add(1)
				}
			}
			hp.Release()
		}
	}()

	var writeWG sync.WaitGroup
	const writers = 8
	writeWG.Add(writers)
	for w := 0; w < writers; w++ {
		go func(seed uint64) {
			defer writeWG.Done()
			for i := 0; i < 2000; i++ {
				next := &tagged{}
				next.generation.Store(seed*100000 + uint64(i))
				old := target.Swap(next)
				d.Retire(unsafe.Pointer(old), func() {
					old.generation.Store(^uint64(0))
				})
			}
		}(uint64(w))
	}
	writeWG.Wait()
	stop.Store(true)
	wg.Wait()

	if mismatches.Load() != 0 {
		t.Fatalf("detected %d generation mismatches: a hazarded object was mutated/reused", mismatches.Load())
	}
}
