package solist

import "math/bits"

// Split ordering sorts every node in the shared list by the bit-reversal of
// its key. Reversal turns "key mod 2^i" prefixes into list-order prefixes, so
// doubling the bucket count never reorders existing nodes relative to the
// sentinels inserted for the new buckets.
//
// The low bit of an order key is a tag: data keys end in 1, bucket keys end
// in 0. A sentinel and a data entry derived from the same integer therefore
// never collide in the order-key space. This is why user keys must keep their
// top bit clear; after reversal that bit becomes the tag bit.

// maxKey is the largest user key the map accepts; the top bit is reserved
// for the sentinel tag encoding.
const maxKey = 1<<63 - 1

// dataOrderKey maps a user key to its position in the shared list.
func dataOrderKey(key uint64) uint64 {
	return bits.Reverse64(key) | 1
}

// bucketOrderKey maps a bucket index to the order key of its sentinel.
// Always even.
func bucketOrderKey(bucket uint64) uint64 {
	return bits.Reverse64(bucket)
}

// originKey recovers the user key a data order key was derived from.
func originKey(orderKey uint64) uint64 {
	return bits.Reverse64(orderKey &^ 1)
}

// isSentinelKey reports whether an order key belongs to a bucket sentinel.
func isSentinelKey(orderKey uint64) bool {
	return orderKey&1 == 0
}

// parentBucket clears the topmost set bit of bucket, yielding the unique
// ancestor that already existed when the table was half its current size.
// Buckets 0 and 1 are installed at construction and are never derived.
func parentBucket(bucket uint64) uint64 {
	return bucket &^ (1 << (bits.Len64(bucket) - 1))
}

// checkKey validates a user key. A set top bit is caller misuse, not a
// runtime race, so it is fatal rather than a recoverable error.
func checkKey(key uint64) {
	if key > maxKey {
		panic("solist: key has reserved top bit set")
	}
}
