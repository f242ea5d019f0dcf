//go:build (amd64 || 386 || arm || mips || mipsle || wasm) && !solist_disable_padding && !solist_enable_padding

package opt

import "sync/atomic"

// PinSlot_ is one participant record of the epoch collector.
// Padding is disabled by default for:
// - amd64
// - 32-bit architectures (386, arm, mips, mipsle, wasm)
type PinSlot_ struct {
	State atomic.Uint64 // bit 63: pinned flag, low bits: pinned epoch
}
