package solist

import "math/bits"

// ============================================================================
// Configuration
// ============================================================================

const (
	// minBuckets is the bucket count a map starts with. Buckets 0 and 1
	// anchor every recursively derived bucket, so the count never drops
	// below two.
	minBuckets = 2

	// defaultLoadFactor doubles the bucket count once the live entry count
	// exceeds twice the bucket count.
	defaultLoadFactor = 2
)

// MapConfig defines configurable options for Map initialization.
type MapConfig struct {
	// initialBuckets is the bucket count to materialize at construction,
	// rounded up to a power of two and never below minBuckets. Useful when
	// the expected entry count is known up front, to skip the early
	// doublings.
	initialBuckets uint64

	// loadFactor is the count/size ratio past which the bucket count
	// doubles. Raising it trades longer bucket segments for fewer
	// sentinels.
	loadFactor uint64

	// collector is the epoch collector reclaiming removed nodes. If nil,
	// a package-wide collector shared by all maps is used.
	collector *Collector
}

func (c *MapConfig) normalize() {
	if c.initialBuckets < minBuckets {
		c.initialBuckets = minBuckets
	}
	if bits.OnesCount64(c.initialBuckets) != 1 {
		c.initialBuckets = 1 << bits.Len64(c.initialBuckets)
	}
	if c.loadFactor < 1 {
		c.loadFactor = defaultLoadFactor
	}
}

// WithInitialBuckets configures a new Map instance to start with at least
// n buckets. The value is rounded up to the next power of two. If n is
// zero or negative, the value is ignored.
func WithInitialBuckets(n int) func(*MapConfig) {
	return func(c *MapConfig) {
		if n > 0 {
			c.initialBuckets = uint64(n)
		}
	}
}

// WithLoadFactor configures the count/size ratio past which the bucket
// count doubles. If f is zero or negative, the value is ignored.
func WithLoadFactor(f int) func(*MapConfig) {
	return func(c *MapConfig) {
		if f > 0 {
			c.loadFactor = uint64(f)
		}
	}
}

// WithCollector configures the epoch collector the map retires removed
// nodes to. Maps sharing a collector also share its reclamation cadence.
func WithCollector(collector *Collector) func(*MapConfig) {
	return func(c *MapConfig) {
		c.collector = collector
	}
}
