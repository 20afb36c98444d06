package memalloc

import (
	"unsafe"

	"github.com/flier/memalloc/pkg/xunsafe"
)

// block is the header every allocation, regular or oversized, carries
// immediately before its user payload. Headers live inside arena regions or
// inside standalone oversized mappings; they are never moved once placed,
// only their free-list links and free flag change.
//
// Fields are addressed only through [headerOf]/[payloadOf]; callers never
// subtract headerSize by hand.
type block struct {
	size uint32 // payload capacity in bytes
	free bool
	_    [3]byte // padding, keeps next/prev/prevPhys word-aligned

	next     xunsafe.Addr[block] // free-list successor, valid only while free
	prev     xunsafe.Addr[block] // free-list predecessor, valid only while free
	prevPhys xunsafe.Addr[block] // physically previous block in the same arena, 0 if first
}

// headerSize is the fixed size of a block header, already a multiple of
// Align on every platform this package targets.
const headerSize = int(unsafe.Sizeof(block{}))

// headerOf recovers the header preceding a user pointer.
func headerOf(p unsafe.Pointer) *block {
	return (*block)(unsafe.Pointer(uintptr(p) - uintptr(headerSize)))
}

// payloadOf returns the user pointer for a header.
func payloadOf(h *block) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + uintptr(headerSize))
}

// addrOf returns h's address as an [xunsafe.Addr].
func addrOf(h *block) xunsafe.Addr[block] {
	return xunsafe.AddrOf(h)
}

// nextPhys returns the address of the block physically following h, which
// occupies h's payload plus its header. The caller must check this address
// against the arena's end before dereferencing it.
func nextPhys(h *block) xunsafe.Addr[block] {
	return addrOf(h).ByteAdd(headerSize + int(h.size))
}
