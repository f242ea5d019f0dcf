//go:build solist_disable_padding

package opt

import "sync/atomic"

// PinSlot_ is one participant record of the epoch collector.
// Padding is force-disabled via the solist_disable_padding build tag.
// Use: go build -tags=solist_disable_padding
type PinSlot_ struct {
	State atomic.Uint64 // bit 63: pinned flag, low bits: pinned epoch
}
