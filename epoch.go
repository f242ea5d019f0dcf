package solist

import (
	"sync/atomic"

	"github.com/ArshiAAkhavan/solist/internal/opt"
)

// Epoch-based reclamation.
//
// Nodes unlinked from the shared list may still be referenced by concurrent
// traversals, so their cleanup must wait until no such traversal can exist.
// Every operation pins a Guard before touching the list; retired cleanup
// callbacks run only after the global epoch has advanced twice past the
// retiring epoch, which implies every guard that could have observed the
// node has been released.
//
// The scheme is the classic three-epoch design: the global epoch can only
// advance when all pinned guards sit in the current epoch, so pinned guards
// always span at most two adjacent epochs. Retired items are binned by the
// retiring guard's epoch; the thread that advances the epoch drains the bin
// that just fell out of the reachable window.

const (
	// pinSlots bounds the number of concurrently pinned guards served
	// lock-free. Excess guards fall back to a shared counter that simply
	// holds the epoch still while they are active.
	pinSlots = 128

	// retireBins must exceed the reachable epoch window by at least two so
	// that a drain of an old bin can never race with pushes for the epoch
	// the drainer just installed.
	retireBins = 4

	// advancePending is the number of buffered callbacks that triggers an
	// advance attempt.
	advancePending = 64

	pinnedBit = uint64(1) << 63
)

// retired is one deferred cleanup callback, tagged with the epoch of the
// guard that retired it.
type retired struct {
	fn    func()
	epoch uint64
	next  *retired
}

// retireBin is a lock-free stack of retired callbacks.
type retireBin struct {
	head atomic.Pointer[retired]
}

func (b *retireBin) push(r *retired) {
	for {
		head := b.head.Load()
		r.next = head
		if b.head.CompareAndSwap(head, r) {
			return
		}
	}
}

// Collector tracks pinned guards and runs retired callbacks once they are
// unobservable. The zero value is ready to use.
//
// Notes:
//   - Collector must not be copied after first use.
//   - One collector may serve any number of structures; reclamation is
//     simply deferred by the union of their pinned guards.
type Collector struct {
	_         noCopy
	global    atomic.Uint64
	overflow  atomic.Int64
	pending   atomic.Int64
	reclaimed atomic.Uint64
	slots     [pinSlots]opt.PinSlot_
	bins      [retireBins]retireBin
}

// NewCollector returns a fresh collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Pin registers the caller in the current epoch and returns a guard.
// References read from a guarded structure stay valid until Release.
func (c *Collector) Pin() *Guard {
	epoch := c.global.Load()
	for i := range c.slots {
		s := &c.slots[i].State
		if s.Load() == 0 && s.CompareAndSwap(0, pinnedBit|epoch) {
			// The recorded epoch may lag the global one by the time the
			// CAS lands; that only delays advancement, never unpins early.
			return &Guard{c: c, slot: s, epoch: epoch}
		}
	}
	c.overflow.Add(1)
	return &Guard{c: c, epoch: epoch}
}

// Epoch returns the current global epoch. Diagnostic.
func (c *Collector) Epoch() uint64 {
	return c.global.Load()
}

// Reclaimed returns the number of retired callbacks that have run.
func (c *Collector) Reclaimed() uint64 {
	return c.reclaimed.Load()
}

// Advance attempts one epoch advancement, draining any bin that fell out of
// the reachable window. It fails silently when a pinned guard still sits in
// an older epoch. Exposed for tests and for callers that want to bound
// reclamation lag; normal operation triggers it from Retire and Release.
func (c *Collector) Advance() {
	c.tryAdvance()
}

func (c *Collector) tryAdvance() {
	epoch := c.global.Load()
	if c.overflow.Load() != 0 {
		return
	}
	for i := range c.slots {
		s := c.slots[i].State.Load()
		if s&pinnedBit != 0 && s&^pinnedBit != epoch {
			return
		}
	}
	if !c.global.CompareAndSwap(epoch, epoch+1) {
		return
	}
	if epoch < 2 {
		return
	}
	// All guards pinned before epoch-1 are gone and anything retired at
	// epoch-2 was unreachable before they pinned, so its bin is dead.
	c.drain(epoch - 2)
}

// drain runs every callback retired at or before limit in limit's bin.
// The atomic swap hands the whole stack to exactly one drainer; entries from
// a later epoch that alias the same bin are pushed back for a future pass.
func (c *Collector) drain(limit uint64) {
	bin := &c.bins[limit%retireBins]
	r := bin.head.Swap(nil)
	for r != nil {
		next := r.next
		if r.epoch <= limit {
			r.fn()
			c.reclaimed.Add(1)
			c.pending.Add(-1)
		} else {
			bin.push(r)
		}
		r = next
	}
}

// Guard bounds the lifetime of references read from a guarded structure.
// A nil guard is the unprotected escape hatch (see Unprotected).
type Guard struct {
	c        *Collector
	slot     *atomic.Uint64
	epoch    uint64
	released bool
}

// Unprotected returns a guard usable only during exclusive construction or
// teardown, before the structure is visible to any other goroutine. Retired
// callbacks run immediately.
func Unprotected() *Guard {
	return nil
}

// Release unpins the guard. References obtained under it must not be used
// afterwards. Release is idempotent; releasing a nil guard is a no-op.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if g.slot != nil {
		g.slot.Store(0)
	} else {
		g.c.overflow.Add(-1)
	}
	if g.c.pending.Load() >= advancePending {
		g.c.tryAdvance()
	}
}

// Retire schedules fn to run once no guard pinned now or later can still
// observe whatever fn cleans up. On a nil (unprotected) guard fn runs
// immediately.
func (g *Guard) Retire(fn func()) {
	if g == nil {
		fn()
		return
	}
	c := g.c
	c.bins[g.epoch%retireBins].push(&retired{fn: fn, epoch: g.epoch})
	if c.pending.Add(1) >= advancePending {
		c.tryAdvance()
	}
}

// defaultCollector serves maps that were not given their own collector.
var defaultCollector = NewCollector()
