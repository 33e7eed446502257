// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

// Allocation failure semantics.
//
// Go's runtime allocator has no recoverable failure path of its own:
// make() either succeeds or the runtime terminates the process with an
// unrecoverable "out of memory" fatal error, which cannot be caught by
// recover(). That matches the abort semantics KindAllocationFailure
// describes, so there is no separate error path for it to report
// through — bucket installation (bucket.go's ensureBucket) relies on
// the runtime's own fatal-on-OOM behavior rather than reimplementing
// it. KindAllocationFailure is kept as a documented Kind because a
// caller-supplied allocator hook is a plausible future extension point,
// not because any code path constructs one today.
//
// KindCapacityOverflow is the Kind actually produced, by mapping (see
// mapping.go) when an index or layout computation would overflow the
// platform's addressable range.
