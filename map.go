package solist

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/ArshiAAkhavan/solist/internal/opt"
)

var (
	// ErrExists is returned by Insert when the key is already present.
	ErrExists = errors.New("solist: key already present")
	// ErrNotFound is returned by Delete when the key is absent.
	ErrNotFound = errors.New("solist: key not found")
)

// Map is a non-blocking hash map from integer keys in [0, 2^63) to V,
// built on recursive split ordering: a single sorted lock-free list holds
// both bucket sentinels and data entries, interleaved so that doubling the
// bucket count never moves an existing node. Growing only installs new
// sentinels lazily, on first access to a new bucket.
//
// Core properties:
//   - Lookup, Insert and Delete never block; at least one operation in the
//     system always completes (lock freedom).
//   - The bucket count only ever grows, by doubling, and a bucket valid at
//     some size stays valid and correctly chained at every larger size.
//   - Keys must keep their top bit clear; it is reserved for the sentinel
//     tag encoding, and violating that panics.
//
// Notes:
//   - Map must not be copied after first use.
//   - Use NewMap; the zero value is not ready.
type Map[V any] struct {
	_         noCopy
	list      *List[V]
	collector *Collector
	// loadFactor is the count/size ratio past which the bucket count
	// doubles.
	loadFactor uint64
	buckets    bucketDirectory[V]

	// size and count sit on separate cache lines: size is read on every
	// operation while count is written on every successful update.
	size atomic.Uint64
	_    [(opt.CacheLineSize_ - unsafe.Sizeof(atomic.Uint64{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
	// count is advisory: races around the resize threshold merely shift
	// the moment of doubling, never correctness.
	count atomic.Int64
}

// NewMap returns an empty map. Buckets 0 and 1 (and any extra initial
// buckets requested via WithInitialBuckets) are materialized eagerly here,
// under the unprotected guard, before the map is visible to any other
// goroutine; every later bucket derives from them.
func NewMap[V any](options ...func(*MapConfig)) *Map[V] {
	cfg := MapConfig{
		initialBuckets: minBuckets,
		loadFactor:     defaultLoadFactor,
	}
	for _, apply := range options {
		apply(&cfg)
	}
	cfg.normalize()

	m := &Map[V]{
		list:       NewList[V](),
		collector:  cfg.collector,
		loadFactor: cfg.loadFactor,
	}
	if m.collector == nil {
		m.collector = defaultCollector
	}
	m.size.Store(cfg.initialBuckets)

	g := Unprotected()
	for b := uint64(0); b < cfg.initialBuckets; b++ {
		sentinel := &node[V]{orderKey: bucketOrderKey(b)}
		c := m.list.Head(g)
		if _, err := c.FindHarrisMichael(sentinel.orderKey, g); err != nil {
			panic("solist: unreachable: construction is exclusive")
		}
		if err := c.Insert(sentinel, g); err != nil {
			panic("solist: unreachable: construction is exclusive")
		}
		m.buckets.get(b).Store(sentinel)
	}
	return m
}

// Lookup returns the value stored under key, if any. Read-only: it uses the
// snapshot-consistent traversal and never repairs the list.
func (m *Map[V]) Lookup(key uint64) (V, bool) {
	checkKey(key)
	g := m.collector.Pin()
	defer g.Release()

	c := m.lookupBucket(key, g)
	found, _ := c.FindHarrisHerlihyShavit(dataOrderKey(key), g)
	if !found {
		var zero V
		return zero, false
	}
	return c.Lookup()
}

// Insert stores value under key if the key is absent, or returns ErrExists
// without touching the map. A successful insert that pushes the live count
// past size*loadFactor makes exactly one attempt to double the bucket
// count; losing that race means another goroutine already grew it.
func (m *Map[V]) Insert(key uint64, value V) error {
	checkKey(key)
	g := m.collector.Pin()
	defer g.Release()

	n := &node[V]{orderKey: dataOrderKey(key), value: value}
	for {
		// Every retry re-derives the bucket cursor from the directory, so
		// no stale position survives a lost CAS.
		c := m.lookupBucket(key, g)
		found, err := c.FindHarrisMichael(n.orderKey, g)
		if err != nil {
			continue
		}
		if found {
			return ErrExists
		}
		if c.Insert(n, g) == nil {
			break
		}
	}

	count := uint64(m.count.Add(1))
	size := m.size.Load()
	if count > size*m.loadFactor {
		m.size.CompareAndSwap(size, size<<1)
	}
	return nil
}

// Delete removes the entry under key and returns its value, or ErrNotFound
// if the key is absent. A lost removal race retries until the outcome is
// definitive: either this call removed the entry or the key is observably
// absent.
func (m *Map[V]) Delete(key uint64) (V, error) {
	checkKey(key)
	g := m.collector.Pin()
	defer g.Release()

	orderKey := dataOrderKey(key)
	for {
		c := m.lookupBucket(key, g)
		found, err := c.FindHarris(orderKey, g)
		if err != nil {
			continue
		}
		if !found {
			var zero V
			return zero, ErrNotFound
		}
		value, err := c.Delete(g)
		if err != nil {
			// Another delete claimed the node between find and mark;
			// re-find to see whether a fresh entry took its place.
			continue
		}
		m.count.Add(-1)
		return value, nil
	}
}

// Len returns the advisory number of live entries. It converges to the
// exact count once concurrent operations settle.
func (m *Map[V]) Len() int {
	return int(m.count.Load())
}

// Buckets returns the current bucket count. Always a power of two,
// monotonically non-decreasing. Diagnostic.
func (m *Map[V]) Buckets() uint64 {
	return m.size.Load()
}

// Range calls fn for every live entry in split order, stopping early if fn
// returns false. The traversal is reachability-consistent: it observes
// every entry present for the whole call and never observes an entry
// twice.
func (m *Map[V]) Range(fn func(key uint64, value V) bool) {
	g := m.collector.Pin()
	defer g.Release()

	for n := m.list.head.link.Load().next; n != nil; {
		l := n.link.Load()
		if !l.deleted && !isSentinelKey(n.orderKey) {
			if !fn(originKey(n.orderKey), n.value) {
				return
			}
		}
		n = l.next
	}
}

// lookupBucket returns a cursor positioned at the start of key's bucket
// segment, materializing the bucket's sentinel chain first if needed.
//
// Ordering: size is read before the slot. A goroutine observing a grown
// size finds either the sentinels published under that size or null slots
// it can repopulate idempotently, so the mod-new-size segment boundaries
// are always reconstructible.
func (m *Map[V]) lookupBucket(key uint64, g *Guard) Cursor[V] {
	size := m.size.Load()
	bucket := key & (size - 1)
	sentinel := m.buckets.get(bucket).Load()
	if sentinel == nil {
		sentinel = m.makeBucket(bucket, g)
	}
	// Sentinels are never deleted, so the cursor's prev link is live.
	return cursorAt(sentinel)
}

// makeBucket materializes bucket's sentinel along with any missing
// ancestors. The recursion of the textbook construction is unrolled into
// two passes over an explicit ancestor chain, whose length is bounded by
// the bit width of the bucket index.
func (m *Map[V]) makeBucket(bucket uint64, g *Guard) *node[V] {
	// Walk up the ancestor chain to the nearest materialized bucket.
	// Terminates because buckets 0 and 1 always exist.
	var missing []uint64
	var anchor *node[V]
	for b := bucket; ; b = parentBucket(b) {
		if n := m.buckets.get(b).Load(); n != nil {
			anchor = n
			break
		}
		missing = append(missing, b)
	}
	// Materialize top-down so every sentinel's list position is bounded by
	// its parent's before any descendant searches from it.
	for i := len(missing) - 1; i >= 0; i-- {
		anchor = m.initBucket(missing[i], anchor, g)
	}
	return anchor
}

// initBucket find-or-inserts the sentinel for bucket into the list segment
// owned by its parent, then publishes it in the directory. Creation is
// idempotent: concurrent initializers converge on whichever sentinel got
// linked first, and the slot CAS never overwrites an existing publication.
func (m *Map[V]) initBucket(bucket uint64, parent *node[V], g *Guard) *node[V] {
	key := bucketOrderKey(bucket)
	sentinel := &node[V]{orderKey: key}
	for {
		c := cursorAt(parent)
		found, err := c.FindHarrisMichael(key, g)
		if err != nil {
			continue
		}
		if found {
			sentinel = c.curr
			break
		}
		if c.Insert(sentinel, g) == nil {
			break
		}
	}
	slot := m.buckets.get(bucket)
	slot.CompareAndSwap(nil, sentinel)
	return slot.Load()
}
