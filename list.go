package solist

import (
	"errors"
	"sync/atomic"
)

// ErrRetry reports that a cursor's position was invalidated by a concurrent
// structural change. The caller re-derives its position from scratch and
// tries again; stale cursor state is never resumed.
var ErrRetry = errors.New("solist: cursor position invalidated by concurrent update")

// link is one generation of a node's successor pointer together with the
// Harris deletion mark. Go's garbage collector does not tolerate low-bit
// pointer tagging in heap words, so the (next, mark) pair travels in an
// immutable record swapped wholesale by CAS instead. Once a link with
// deleted=true is installed the node's link never changes again, which
// freezes the successor of every logically deleted node.
type link[V any] struct {
	next    *node[V]
	deleted bool
}

// node is a list node. Sentinels carry an even order key and no payload;
// data nodes carry an odd order key and a value.
type node[V any] struct {
	orderKey uint64
	value    V
	link     atomic.Pointer[link[V]]
}

// poison clears a reclaimed node's payload so it stops pinning user data.
// Runs only after the grace period, when no traversal can hold the node.
func (n *node[V]) poison() {
	var zero V
	n.value = zero
}

// List is a lock-free linked list sorted by order key. It stores both the
// map's bucket sentinels and its data entries; the split-order key space
// keeps each bucket's entries contiguous behind its sentinel.
//
// Notes:
//   - List must not be copied after first use.
//   - Every method takes the caller's epoch guard; references derived from
//     a cursor are valid only until that guard is released.
type List[V any] struct {
	_    noCopy
	head node[V] // order key unused, only its link anchors the list
}

// NewList returns an empty list.
func NewList[V any]() *List[V] {
	l := &List[V]{}
	l.head.link.Store(&link[V]{})
	return l
}

// Head returns a cursor positioned before the first node.
func (l *List[V]) Head(_ *Guard) Cursor[V] {
	return cursorAt(&l.head)
}

// cursorAt builds a cursor whose prev is n. n must be a node that can never
// be logically deleted (the list head or a bucket sentinel), so the loaded
// link is always unmarked.
func cursorAt[V any](n *node[V]) Cursor[V] {
	pl := n.link.Load()
	return Cursor[V]{prev: n, prevLink: pl, curr: pl.next}
}

// Cursor is a position in the list: prev is the last known live node,
// prevLink the link record read from it, and curr its successor at read
// time (nil at the end of the list). Insert and Delete CAS against
// prevLink, so any structural change at this position since the find is
// detected as ErrRetry.
type Cursor[V any] struct {
	prev     *node[V]
	prevLink *link[V]
	curr     *node[V]
}

// FindHarris positions the cursor at the first node with order key >= key,
// unlinking any run of logically deleted nodes it passes with a single CAS
// on the last live predecessor (Harris's original scheme). Reports whether
// a live node with exactly key was found. Returns ErrRetry when the unlink
// CAS is lost.
func (c *Cursor[V]) FindHarris(key uint64, g *Guard) (bool, error) {
	// left is the last node seen with an unmarked link; the run of marked
	// nodes between left and curr, if any, is excised in one step.
	left, leftLink := c.prev, c.prevLink
	if leftLink.deleted {
		return false, ErrRetry
	}
	curr := leftLink.next
	for curr != nil {
		cl := curr.link.Load()
		if cl.deleted {
			curr = cl.next
			continue
		}
		if curr.orderKey >= key {
			break
		}
		left, leftLink = curr, cl
		curr = cl.next
	}
	if leftLink.next != curr {
		fresh := &link[V]{next: curr}
		if !left.link.CompareAndSwap(leftLink, fresh) {
			return false, ErrRetry
		}
		// Marked links are immutable, so the excised run is frozen and
		// walking it revisits exactly the nodes the CAS removed.
		for n := leftLink.next; n != curr; {
			next := n.link.Load().next
			g.Retire(n.poison)
			n = next
		}
		leftLink = fresh
	}
	c.prev, c.prevLink, c.curr = left, leftLink, curr
	return curr != nil && curr.orderKey == key, nil
}

// FindHarrisMichael positions the cursor at the first live node with order
// key >= key, eagerly unlinking each logically deleted node it encounters
// (one CAS per node, Michael's variant). Returns ErrRetry when an unlink
// CAS is lost.
func (c *Cursor[V]) FindHarrisMichael(key uint64, g *Guard) (bool, error) {
	prev, prevLink := c.prev, c.prevLink
	if prevLink.deleted {
		return false, ErrRetry
	}
	for {
		curr := prevLink.next
		if curr == nil {
			c.prev, c.prevLink, c.curr = prev, prevLink, nil
			return false, nil
		}
		cl := curr.link.Load()
		if cl.deleted {
			fresh := &link[V]{next: cl.next}
			if !prev.link.CompareAndSwap(prevLink, fresh) {
				return false, ErrRetry
			}
			g.Retire(curr.poison)
			prevLink = fresh
			continue
		}
		if curr.orderKey >= key {
			c.prev, c.prevLink, c.curr = prev, prevLink, curr
			return curr.orderKey == key, nil
		}
		prev, prevLink = curr, cl
	}
}

// FindHarrisHerlihyShavit positions the cursor at the first live node with
// order key >= key without ever writing to the list: logically deleted
// nodes are skipped in place (Herlihy & Shavit's wait-free traversal). The
// resulting cursor is valid for Lookup but not for Insert or Delete, since
// prev is not guaranteed to directly precede curr. Never fails.
func (c *Cursor[V]) FindHarrisHerlihyShavit(key uint64, _ *Guard) (bool, error) {
	prev, prevLink := c.prev, c.prevLink
	curr := prevLink.next
	for curr != nil {
		cl := curr.link.Load()
		if cl.deleted {
			curr = cl.next
			continue
		}
		if curr.orderKey >= key {
			c.prev, c.prevLink, c.curr = prev, prevLink, curr
			return curr.orderKey == key, nil
		}
		prev, prevLink = curr, cl
		curr = cl.next
	}
	c.prev, c.prevLink, c.curr = prev, prevLink, nil
	return false, nil
}

// Insert links n between prev and curr with a single CAS. On success the
// cursor ends up positioned at n. On ErrRetry the node is untouched by the
// list and may be reused for the next attempt after a fresh find.
func (c *Cursor[V]) Insert(n *node[V], _ *Guard) error {
	n.link.Store(&link[V]{next: c.curr})
	fresh := &link[V]{next: n}
	if !c.prev.link.CompareAndSwap(c.prevLink, fresh) {
		return ErrRetry
	}
	c.prevLink, c.curr = fresh, n
	return nil
}

// Delete logically deletes the node under the cursor by marking its link,
// then makes one attempt to unlink it physically; a failed unlink is left
// for a later find to repair. Returns the removed value, or ErrRetry if a
// concurrent delete claimed the node first.
func (c *Cursor[V]) Delete(g *Guard) (V, error) {
	curr := c.curr
	for {
		cl := curr.link.Load()
		if cl.deleted {
			var zero V
			return zero, ErrRetry
		}
		if curr.link.CompareAndSwap(cl, &link[V]{next: cl.next, deleted: true}) {
			// The mark is ours, so the value is ours to return. The guard
			// keeps the node alive past its retirement.
			value := curr.value
			if c.prev.link.CompareAndSwap(c.prevLink, &link[V]{next: cl.next}) {
				g.Retire(curr.poison)
			}
			return value, nil
		}
		// Lost a CAS against an insert after curr or a competing delete;
		// reload the link to tell the two apart.
	}
}

// Lookup returns the value under the cursor. The value is only meaningful
// while the guard that produced the cursor remains pinned.
func (c *Cursor[V]) Lookup() (V, bool) {
	if c.curr == nil {
		var zero V
		return zero, false
	}
	return c.curr.value, true
}
