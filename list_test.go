package solist

import (
	"errors"
	"math/rand/v2"
	"testing"

	"golang.org/x/sync/errgroup"
)

// listInsert links a fresh node with the given order key, retrying lost
// races the way the map does.
func listInsert[V any](t *testing.T, l *List[V], c *Collector, key uint64, value V) {
	t.Helper()
	g := c.Pin()
	defer g.Release()
	n := &node[V]{orderKey: key, value: value}
	for {
		cur := l.Head(g)
		found, err := cur.FindHarrisMichael(key, g)
		if err != nil {
			continue
		}
		if found {
			t.Fatalf("key %#x already present", key)
		}
		if cur.Insert(n, g) == nil {
			return
		}
	}
}

func listDelete[V any](l *List[V], c *Collector, key uint64) (V, bool) {
	g := c.Pin()
	defer g.Release()
	for {
		cur := l.Head(g)
		found, err := cur.FindHarris(key, g)
		if err != nil {
			continue
		}
		if !found {
			var zero V
			return zero, false
		}
		if v, err := cur.Delete(g); err == nil {
			return v, true
		}
	}
}

func listKeys[V any](l *List[V]) []uint64 {
	var keys []uint64
	for n := l.head.link.Load().next; n != nil; {
		ln := n.link.Load()
		if !ln.deleted {
			keys = append(keys, n.orderKey)
		}
		n = ln.next
	}
	return keys
}

func TestListSequential(t *testing.T) {
	l := NewList[string]()
	c := NewCollector()

	for _, k := range []uint64{30, 10, 50, 20, 40} {
		listInsert(t, l, c, k, "v")
	}
	if got := listKeys(l); len(got) != 5 {
		t.Fatalf("list holds %d keys, want 5", len(got))
	}
	for i, k := range listKeys(l) {
		if want := uint64(10 * (i + 1)); k != want {
			t.Fatalf("position %d holds %d, want %d (sorted order)", i, k, want)
		}
	}

	g := c.Pin()
	for _, k := range []uint64{10, 20, 30, 40, 50} {
		cur := l.Head(g)
		if found, err := cur.FindHarrisMichael(k, g); err != nil || !found {
			t.Fatalf("FindHarrisMichael(%d) = %v, %v, want found", k, found, err)
		}
		cur = l.Head(g)
		if found, err := cur.FindHarris(k, g); err != nil || !found {
			t.Fatalf("FindHarris(%d) = %v, %v, want found", k, found, err)
		}
		cur = l.Head(g)
		if found, err := cur.FindHarrisHerlihyShavit(k, g); err != nil || !found {
			t.Fatalf("FindHarrisHerlihyShavit(%d) = %v, %v, want found", k, found, err)
		}
	}
	cur := l.Head(g)
	if found, _ := cur.FindHarrisMichael(25, g); found {
		t.Fatalf("found absent key 25")
	}
	if cur.curr == nil || cur.curr.orderKey != 30 {
		t.Fatalf("cursor for absent key not positioned at successor 30")
	}
	g.Release()

	if v, ok := listDelete(l, c, 30); !ok || v != "v" {
		t.Fatalf("delete(30) = %q, %v", v, ok)
	}
	if _, ok := listDelete(l, c, 30); ok {
		t.Fatalf("second delete(30) succeeded")
	}
	g = c.Pin()
	cur = l.Head(g)
	if found, _ := cur.FindHarrisHerlihyShavit(30, g); found {
		t.Fatalf("deleted key still visible to read-only find")
	}
	g.Release()
}

func TestListDeleteRace(t *testing.T) {
	// Two cursors on the same node; only one Delete may win.
	l := NewList[int]()
	c := NewCollector()
	listInsert(t, l, c, 7, 70)

	g := c.Pin()
	defer g.Release()
	c1 := l.Head(g)
	c2 := l.Head(g)
	if found, _ := c1.FindHarrisMichael(7, g); !found {
		t.Fatalf("key 7 missing")
	}
	if found, _ := c2.FindHarrisMichael(7, g); !found {
		t.Fatalf("key 7 missing")
	}
	if v, err := c1.Delete(g); err != nil || v != 70 {
		t.Fatalf("first delete = %v, %v", v, err)
	}
	if _, err := c2.Delete(g); !errors.Is(err, ErrRetry) {
		t.Fatalf("second delete = %v, want ErrRetry", err)
	}
}

func TestListConcurrentInserts(t *testing.T) {
	const (
		goroutines = 8
		perG       = 2000
	)
	l := NewList[uint64]()
	c := NewCollector()
	var g errgroup.Group
	for w := range uint64(goroutines) {
		g.Go(func() error {
			guard := c.Pin()
			defer guard.Release()
			for i := uint64(0); i < perG; i++ {
				key := w*perG + i + 1
				n := &node[uint64]{orderKey: key, value: key}
				for {
					cur := l.Head(guard)
					found, err := cur.FindHarrisMichael(key, guard)
					if err != nil {
						continue
					}
					if found {
						return errFatalf("key %d inserted twice", key)
					}
					if cur.Insert(n, guard) == nil {
						break
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	keys := listKeys(l)
	if len(keys) != goroutines*perG {
		t.Fatalf("list holds %d keys, want %d", len(keys), goroutines*perG)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			t.Fatalf("order violated at %d: %d after %d", i, keys[i], keys[i-1])
		}
	}
}

func TestListConcurrentMixed(t *testing.T) {
	const (
		goroutines = 8
		perG       = 2000
		keyRange   = 512
	)
	l := NewList[uint64]()
	c := NewCollector()
	var g errgroup.Group
	for w := range uint64(goroutines) {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(w, ^w))
			for i := 0; i < perG; i++ {
				key := rng.Uint64N(keyRange) + 1
				guard := c.Pin()
				if rng.IntN(2) == 0 {
					n := &node[uint64]{orderKey: key, value: key}
					for {
						cur := l.Head(guard)
						found, err := cur.FindHarrisMichael(key, guard)
						if err != nil {
							continue
						}
						if found || cur.Insert(n, guard) == nil {
							break
						}
					}
				} else {
					for {
						cur := l.Head(guard)
						found, err := cur.FindHarris(key, guard)
						if err != nil {
							continue
						}
						if !found {
							break
						}
						if _, err := cur.Delete(guard); err == nil {
							break
						}
					}
				}
				guard.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	keys := listKeys(l)
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			t.Fatalf("order violated at %d: %d after %d", i, keys[i], keys[i-1])
		}
	}
}
