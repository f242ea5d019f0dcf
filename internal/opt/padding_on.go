//go:build !(amd64 || 386 || arm || mips || mipsle || wasm) && !solist_disable_padding && !solist_enable_padding

package opt

import (
	"sync/atomic"
	"unsafe"
)

// PinSlot_ is one participant record of the epoch collector.
// Padding is automatically enabled for architectures that are NOT:
// - amd64 (x86_64): Hardware optimizations often make padding less critical
// - 32-bit architectures (386, arm, mips, mipsle, wasm): Smaller cache lines/memory constraints
//
// Enabled for: arm64, s390x, ppc64, ppc64le, riscv64, loong64, mips64, mips64le, etc.
type PinSlot_ struct {
	State atomic.Uint64 // bit 63: pinned flag, low bits: pinned epoch
	_     [(CacheLineSize_ - unsafe.Sizeof(struct {
		S atomic.Uint64
	}{})%CacheLineSize_) % CacheLineSize_]byte
}
