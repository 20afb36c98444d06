package memalloc

import (
	"sync"
	"unsafe"

	"github.com/flier/memalloc/internal/debug"
	"github.com/flier/memalloc/pkg/xunsafe"
)

// defaultArenaPages is the number of platform pages backing one arena
// region, used unless an Allocator is built with [WithArenaPages].
const defaultArenaPages = 16

// Arena owns one contiguous, page-mapped memory region, a set of per-size-
// class free lists covering it, and the splitting/coalescing policy for
// blocks carved out of it. All arena-local state is serialized by mu; at
// most one arena's lock is ever held by a goroutine at a time.
type Arena struct {
	_ xunsafe.NoCopy

	mu sync.Mutex

	region    []byte
	base, end xunsafe.Addr[block]
	heads     [ClassCount + 1]xunsafe.Addr[block]
	next      *Arena // global arena chain link
}

// newArena maps a fresh region of pages platform pages from the page
// provider and carves it into a single free block spanning the whole
// region.
func newArena(pages int) (*Arena, error) {
	size := roundToPage(pages * pageSize)

	region, err := mapPages(size)
	if err != nil {
		return nil, err
	}

	a := &Arena{region: region}
	a.base = xunsafe.Addr[block](uintptr(unsafe.Pointer(&region[0])))
	a.end = a.base.ByteAdd(len(region))

	h := a.base.AssertValid()
	*h = block{size: uint32(len(region) - headerSize), free: true}
	a.insertFree(h)

	debug.Log(nil, "arena", "created %v:%v (%d bytes)", a.base, a.end, len(region))

	return a, nil
}

// findBestFit scans the free lists starting at the class owning size and
// upward through the in-arena-oversized sentinel, returning the first block
// whose payload is large enough. Because each list is ordered ascending by
// size, the first block found in a class is also the smallest one that
// fits there. The returned block has already been unlinked from its free
// list; callers must either [Arena.split] it into an allocation or
// reinsert it.
//
// Must be called with mu held.
func (a *Arena) findBestFit(size int) *block {
	for class := arenaClassOf(size); class <= ClassCount; class++ {
		cur := a.heads[class]
		for cur != 0 {
			b := cur.AssertValid()
			if int(b.size) >= size {
				a.unlink(class, b)
				return b
			}
			cur = b.next
		}
	}
	return nil
}

// split carves b down to exactly size bytes of payload when the remainder
// is large enough to form a free block of its own, reinserting that
// remainder; otherwise b keeps its whole payload. b must have already
// been removed from its free list (as returned by [Arena.findBestFit]) and
// must satisfy int(b.size) >= size.
//
// Must be called with mu held.
func (a *Arena) split(b *block, size int) {
	if int(b.size) > size+headerSize+Align {
		remPayload := int(b.size) - size - headerSize

		rem := offsetAddr(b, headerSize+size).AssertValid()
		*rem = block{
			size:     uint32(remPayload),
			free:     true,
			prevPhys: addrOf(b),
		}

		if na := nextPhys(rem); na < a.end {
			na.AssertValid().prevPhys = addrOf(rem)
		}

		b.size = uint32(size)
		a.insertFree(rem)

		debug.Log(nil, "split", "%v", debug.Dict("block", "addr", b, "requested", size, "remainder", remPayload))
	}

	b.free = false
	b.next = 0
	b.prev = 0
}

// release marks b free and coalesces it with any physically adjacent free
// neighbors before reinserting it into the appropriate free list. This is
// the arena-side half of [Release]; the façade calls it only after a
// thread-cache push was rejected.
//
// Must be called with mu held.
func (a *Arena) release(b *block) {
	// 1. Forward neighbor.
	if na := nextPhys(b); na < a.end {
		nb := na.AssertValid()
		if nb.free {
			a.unlink(arenaClassOf(int(nb.size)), nb)
			b.size += uint32(headerSize) + nb.size

			if na2 := nextPhys(b); na2 < a.end {
				na2.AssertValid().prevPhys = addrOf(b)
			}
		}
	}

	// 2. Backward neighbor, using the auxiliary prevPhys link to make this
	// O(1) rather than walking the region from its base.
	if b.prevPhys != 0 {
		pb := b.prevPhys.AssertValid()
		if pb.free {
			a.unlink(arenaClassOf(int(pb.size)), pb)
			pb.size += uint32(headerSize) + b.size
			b = pb

			if na := nextPhys(b); na < a.end {
				na.AssertValid().prevPhys = addrOf(b)
			}
		}
	}

	// 3. Reinsert the (possibly merged) block.
	b.free = true
	a.insertFree(b)

	debug.Log(nil, "coalesce", "%v", debug.Dict("block", "addr", b, "size", b.size))
}

// offsetAddr returns the address offset bytes past h, as a convenience for
// computing a remainder block's header location during split.
func offsetAddr(h *block, offset int) xunsafe.Addr[block] {
	return addrOf(h).ByteAdd(offset)
}
