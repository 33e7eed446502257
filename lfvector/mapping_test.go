// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

import (
	"testing"

	"golang.org/x/exp/slices"
)

func TestMapping(t *testing.T) {
	tests := []struct {
		index  uint64
		bucket int
		offset uint64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{7, 0, 7},
		{8, 1, 0},
		{15, 1, 7},
		{16, 1, 8},
		{23, 1, 15},
		{24, 2, 0},
		{31, 2, 7},
		{32, 2, 8},
		{39, 2, 15},
		{40, 2, 16},
		{47, 2, 23},
	}
	for _, tcase := range tests {
		bucket, offset := mapping(tcase.index)
		if bucket != tcase.bucket || offset != tcase.offset {
			t.Errorf("mapping(%d) = (%d, %d), want (%d, %d)",
				tcase.index, bucket, offset, tcase.bucket, tcase.offset)
		}
	}
}

// TestMappingBucketSlotCounts checks that every offset mapping() returns
// for a bucket actually fits within that bucket's slot count.
func TestMappingBucketSlotCounts(t *testing.T) {
	var seen []int
	for i := uint64(0); i < 1000; i++ {
		bucket, offset := mapping(i)
		if offset >= bucketSlotCount(bucket) {
			t.Fatalf("mapping(%d) = bucket %d offset %d, but bucket %d only has %d slots",
				i, bucket, offset, bucket, bucketSlotCount(bucket))
		}
		if !slices.Contains(seen, bucket) {
			seen = append(seen, bucket)
		}
	}
	if len(seen) < 2 {
		t.Fatalf("expected indices 0..1000 to span multiple buckets, only saw %v", seen)
	}
}

func TestMappingOverflowPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("mapping(MaxUint64) did not panic")
		}
		err, ok := r.(*Error)
		if !ok || err.Kind != KindCapacityOverflow {
			t.Fatalf("recovered %v, want *Error{Kind: KindCapacityOverflow}", r)
		}
	}()
	mapping(^uint64(0))
}

func TestHighestBit(t *testing.T) {
	tests := []struct {
		n    uint64
		want uint
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{8, 3},
		{15, 3},
		{16, 4},
	}
	for _, tcase := range tests {
		if got := highestBit(tcase.n); got != tcase.want {
			t.Errorf("highestBit(%d) = %d, want %d", tcase.n, got, tcase.want)
		}
	}
}

func TestBitsOfRoundTrip(t *testing.T) {
	if got := valueOf[int32](bitsOf(int32(-7))); got != -7 {
		t.Errorf("round trip of int32(-7) = %d", got)
	}
	if got := valueOf[uint8](bitsOf(uint8(200))); got != 200 {
		t.Errorf("round trip of uint8(200) = %d", got)
	}
	if got := valueOf[bool](bitsOf(true)); got != true {
		t.Errorf("round trip of bool(true) = %v", got)
	}
	if got := valueOf[float64](bitsOf(float64(3.25))); got != 3.25 {
		t.Errorf("round trip of float64(3.25) = %v", got)
	}
}
