package solist

import (
	"math/bits"
	"sync/atomic"
)

// The bucket directory maps a bucket index to the atomic slot holding that
// bucket's sentinel node. It grows lock-free and in place: a fixed first
// level of segment pointers covers every index expressible in a 64-bit
// word, and each segment, once installed, never moves. A slot reference
// returned by get is therefore stable for the map's lifetime.
//
// Segment sizing is progressive: segment 0 holds index 0 alone, segment s
// holds the 1<<(s-1) indices of bit length s. Doubling the bucket count
// touches exactly one new segment.

const directoryLevels = 64

type directorySegment[V any] struct {
	slots []atomic.Pointer[node[V]]
}

type bucketDirectory[V any] struct {
	segments [directoryLevels]atomic.Pointer[directorySegment[V]]
}

func segmentOf(index uint64) (level int, offset uint64) {
	level = bits.Len64(index)
	if level == 0 {
		return 0, 0
	}
	return level, index - 1<<(level-1)
}

func segmentLen(level int) int {
	if level == 0 {
		return 1
	}
	return 1 << (level - 1)
}

// get returns the slot for index, installing the missing segment on demand.
// Allocation races cost the loser exactly one discarded candidate and one
// extra load; no retries, no blocking. Cannot fail short of allocator
// exhaustion, which has no recovery path in a lock-free structure anyway.
func (d *bucketDirectory[V]) get(index uint64) *atomic.Pointer[node[V]] {
	level, offset := segmentOf(index)
	seg := d.segments[level].Load()
	if seg == nil {
		candidate := &directorySegment[V]{
			slots: make([]atomic.Pointer[node[V]], segmentLen(level)),
		}
		if d.segments[level].CompareAndSwap(nil, candidate) {
			seg = candidate
		} else {
			seg = d.segments[level].Load()
		}
	}
	return &seg.slots[offset]
}
