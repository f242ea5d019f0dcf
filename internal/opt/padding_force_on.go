//go:build solist_enable_padding

package opt

import (
	"sync/atomic"
	"unsafe"
)

// PinSlot_ is one participant record of the epoch collector.
// Padding is force-enabled via the solist_enable_padding build tag.
// Use: go build -tags=solist_enable_padding
type PinSlot_ struct {
	State atomic.Uint64 // bit 63: pinned flag, low bits: pinned epoch
	_     [(CacheLineSize_ - unsafe.Sizeof(struct {
		S atomic.Uint64
	}{})%CacheLineSize_) % CacheLineSize_]byte
}
