// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

import (
	"sync"
	"testing"

	"github.com/aristanetworks/lfvector/glog"
)

// TestWithGlogLogger exercises WithLogger with the real glog-backed
// logger.Logger implementation, the same way netns/nswatcher's tests in
// the teacher wire *glog.Glog{} into a component that accepts a
// logger.Logger. Push/Pop must work identically whether or not a
// logger is attached; logging here is purely observational.
func TestWithGlogLogger(t *testing.T) {
	v := New[int](WithLogger[int](&glog.Glog{}))

	v.Push(1)
	v.Push(2)

	got, ok := v.Pop()
	if !ok || got != 2 {
		t.Fatalf("Pop() = (%d, %v), want (2, true)", got, ok)
	}
	got, ok = v.Pop()
	if !ok || got != 1 {
		t.Fatalf("Pop() = (%d, %v), want (1, true)", got, ok)
	}
}

// recordingLogger is a fake logger.Logger that records Infof formats.
// Asserting against glog's own global output would be fragile; this
// just confirms the promised log lines (SPEC_FULL.md §2.1) actually
// fire, without caring where they're ultimately written. Guarded by a
// mutex since multiple goroutines may log concurrently.
type recordingLogger struct {
	mu    sync.Mutex
	infof []string
}

func (r *recordingLogger) Info(args ...interface{}) {}
func (r *recordingLogger) Infof(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infof = append(r.infof, format)
}
func (r *recordingLogger) Error(args ...interface{})                {}
func (r *recordingLogger) Errorf(format string, args ...interface{}) {}
func (r *recordingLogger) Fatal(args ...interface{})                {}
func (r *recordingLogger) Fatalf(format string, args ...interface{}) {}

func (r *recordingLogger) sawFormat(format string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.infof {
		if f == format {
			return true
		}
	}
	return false
}

func TestLoggerSeesBucketInstall(t *testing.T) {
	rl := &recordingLogger{}
	v := New[int](WithLogger[int](rl))

	for i := 0; i < firstBucketSize*4; i++ {
		v.Push(i)
	}

	if !rl.sawFormat("lfvector: installed bucket %d (%d slots)") {
		t.Fatal("expected at least one bucket-installation Infof log line")
	}
}

// TestLoggerSeesCASRetry races enough concurrent pushers against a tiny
// container that losing the descriptor-publish CAS is all but certain,
// then confirms the lost-race Infof line (SPEC_FULL.md §2.1) actually
// fired. The race detector covers correctness under this same
// contention elsewhere (TestConcurrentPushCount); this test only cares
// that the logging side effect happened.
func TestLoggerSeesCASRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping contention test in short mode")
	}
	rl := &recordingLogger{}
	v := New[int](WithLogger[int](rl))

	const goroutines = 32
	const perGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				v.Push(i)
			}
		}()
	}
	wg.Wait()

	if !rl.sawFormat("lfvector: lost descriptor-publish CAS at size %d, retrying") {
		t.Fatal("expected at least one CAS-retry Infof log line under contention")
	}
}
