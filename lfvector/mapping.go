// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

import (
	"math"
	"math/bits"
	"unsafe"
)

// firstBucketSize is FIRST_BUCKET_SIZE from spec.md: bucket k, once
// allocated, holds firstBucketSize * 2^k slots. Taken directly from
// original_source/src/secvec.rs's FIRST_BUCKET_SIZE constant (spec.md
// itself only requires "a positive power of two").
const firstBucketSize = 8

// bucketCount is the fixed length of the bucket array (spec.md §2.1).
// firstBucketSize doubling 60 times exceeds any addressable capacity on
// every platform this module targets, so bucket 59 is never actually
// reached in practice.
const bucketCount = 60

// firstBucketHighBit is highestBit(firstBucketSize), precomputed since
// firstBucketSize is a compile-time constant.
const firstBucketHighBit = 3 // bits.Len64(8) - 1

// Word bounds the value types a Vector[T] may hold: anything whose
// underlying representation is a built-in numeric or boolean kind of at
// most 8 bytes. spec.md's non-goal "wider than 8 bytes" is enforced here
// at compile time by the type system itself, rather than by a runtime
// assertion — the idiomatic Go rendition of the original's "compile-time
// assert on size" design note, since Go lacks C++-style static_assert
// but does have generic constraints.
type Word interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr |
		~float32 | ~float64 | ~bool
}

// highestBit returns the 0-based index of the highest set bit in n, and
// 0 for n == 0 — the branchless highest_bit from
// original_source/src/lib.rs, translated from hand-rolled
// leading-zero-count arithmetic into math/bits.
func highestBit(n uint64) uint {
	if n == 0 {
		return 0
	}
	return uint(bits.Len64(n) - 1)
}

// mapping implements spec.md §4.1: map a logical element index to a
// (bucket, offset) pair in constant time.
func mapping(i uint64) (bucket int, offset uint64) {
	pos, overflowed := addOverflows(i, firstBucketSize)
	if overflowed {
		panic(&Error{Kind: KindCapacityOverflow, Op: "mapping"})
	}
	hi := highestBit(pos)
	bucket = int(hi) - firstBucketHighBit
	offset = pos ^ (uint64(1) << hi)

	// Bound on pointer arithmetic: offset*sizeof(slot) must stay well
	// under the platform's addressable range. On 64-bit this can never
	// trip; on 32-bit it guards against a caller-constructed index that
	// would otherwise overflow when used to compute a slice offset, and
	// against a bucket (2^hi slots) whose byte size would not fit.
	const slotSize = uint64(unsafe.Sizeof(uint64(0)))
	if bits.UintSize == 32 {
		if offset > uint64(math.MaxInt32)/slotSize {
			panic(&Error{Kind: KindCapacityOverflow, Op: "mapping"})
		}
		if uint64(1)<<hi > uint64(math.MaxInt32)/slotSize {
			panic(&Error{Kind: KindCapacityOverflow, Op: "mapping"})
		}
	}
	return bucket, offset
}

// addOverflows reports whether a+b overflows a uint64.
func addOverflows(a, b uint64) (sum uint64, overflowed bool) {
	sum = a + b
	return sum, sum < a
}

// bucketSlotCount returns the number of slots bucket k holds once
// allocated.
func bucketSlotCount(k int) uint64 {
	return uint64(firstBucketSize) << uint(k)
}

// bitsOf reinterprets v's underlying bytes as an unsigned integer,
// zero-extended to 64 bits. T is constrained to Word, so v's size in
// memory is always 1, 2, 4, or 8 bytes and this read never reaches past
// v's own storage.
func bitsOf[T Word](v T) uint64 {
	switch unsafe.Sizeof(v) {
	case 1:
		return uint64(*(*uint8)(unsafe.Pointer(&v)))
	case 2:
		return uint64(*(*uint16)(unsafe.Pointer(&v)))
	case 4:
		return uint64(*(*uint32)(unsafe.Pointer(&v)))
	default:
		return *(*uint64)(unsafe.Pointer(&v))
	}
}

// valueOf is the inverse of bitsOf: it truncates a 64-bit pattern down
// to T's actual width and reinterprets it as T.
func valueOf[T Word](bitPattern uint64) T {
	var v T
	switch unsafe.Sizeof(v) {
	case 1:
		b := uint8(bitPattern)
		v = *(*T)(unsafe.Pointer(&b))
	case 2:
		b := uint16(bitPattern)
		v = *(*T)(unsafe.Pointer(&b))
	case 4:
		b := uint32(bitPattern)
		v = *(*T)(unsafe.Pointer(&b))
	default:
		v = *(*T)(unsafe.Pointer(&bitPattern))
	}
	return v
}
