package memalloc

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/timandy/routine"

	"github.com/flier/memalloc/internal/debug"
	"github.com/flier/memalloc/pkg/xunsafe"
)

// Allocator is the global mutable state a running instance of this package
// needs: the arena chain, the tracker, and the locks protecting them, all
// held in one explicit struct so tests can create isolated instances
// instead of sharing process-wide state.
//
// Construct one with [New], not a bare struct literal; it owns a
// thread-local registry that must be created alongside it. [Default] is the
// package-level instance backing the free functions [Allocate], [Release],
// and [CheckLeaks]; call [New] to get an isolated instance for tests.
type Allocator struct {
	arenasMu sync.RWMutex // guards arenas; write-held only while linking
	arenas   *Arena

	trackerMu sync.Mutex // guards tracker; never held across a page-provider call
	tracker   tracker

	tcLocal routine.ThreadLocal[*threadCache] // per-(Allocator, goroutine) cache registry

	arenaPages int // 0 means defaultArenaPages
	tcCap      int // 0 means defaultThreadCacheCap
}

// Option configures tuning parameters an Allocator is built with. Every
// regular-class Allocator works with the zero value of these options; they
// exist for callers (the benchmark harness, in particular) that want to
// trade thread-cache hit rate against memory held idle per thread.
type Option func(*Allocator)

// WithArenaPages overrides the number of platform pages mapped per arena.
// Larger arenas amortize the cost of a page-provider call over more
// allocations; smaller ones map less memory per arena. Arena regions are
// never returned to the OS. An arena too small to hold a class's payload
// plus one header makes [Allocator.Allocate] return nil for that class.
func WithArenaPages(pages int) Option {
	return func(al *Allocator) { al.arenaPages = pages }
}

// WithThreadCacheCap overrides how many blocks a thread cache holds per
// size class before pushes are rejected back to the owning arena.
func WithThreadCacheCap(n int) Option {
	return func(al *Allocator) { al.tcCap = n }
}

// New returns a fresh, isolated Allocator.
func New(opts ...Option) *Allocator {
	al := &Allocator{tcLocal: routine.NewThreadLocal[*threadCache]()}
	for _, opt := range opts {
		opt(al)
	}
	return al
}

// arenaPageCount returns the number of pages a new arena should map.
func (al *Allocator) arenaPageCount() int {
	if al.arenaPages > 0 {
		return al.arenaPages
	}
	return defaultArenaPages
}

// threadCacheCapacity returns the per-class cap a newly created thread
// cache should enforce.
func (al *Allocator) threadCacheCapacity() int {
	if al.tcCap > 0 {
		return al.tcCap
	}
	return defaultThreadCacheCap
}

// Default is the package-level Allocator backing [Allocate], [Release], and
// [CheckLeaks].
var Default = New()

// Allocate requests size bytes and returns a pointer to them, or nil if
// size is zero or the page provider refuses the underlying mapping.
func Allocate(size int) unsafe.Pointer { return Default.Allocate(size) }

// Release returns a pointer previously obtained from [Allocate]. A nil
// pointer is a no-op; an unrecognized pointer is a no-op with a diagnostic
// on stderr.
func Release(p unsafe.Pointer) { Default.Release(p) }

// CheckLeaks writes one line per still-live allocation to stderr and
// returns how many it found.
func CheckLeaks() int { return Default.CheckLeaks() }

// Allocate is the instance form of the package-level [Allocate].
func (al *Allocator) Allocate(size int) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	size = alignUp(size)
	class := ClassOf(size)

	var p unsafe.Pointer
	if class == Oversized {
		p = al.allocateOversized(size)
	} else {
		p = al.allocateRegular(size, class)
	}

	if p == nil {
		return nil
	}

	al.trackerMu.Lock()
	al.tracker.insert(p, int(headerOf(p).size))
	al.trackerMu.Unlock()

	return p
}

// allocateOversized maps a standalone region for a request too large for
// any regular size class.
func (al *Allocator) allocateOversized(size int) unsafe.Pointer {
	total := roundToPage(headerSize + size)

	region, err := mapPages(total)
	if err != nil {
		return nil
	}

	h := xunsafe.Cast[block](&region[0])
	*h = block{size: uint32(size)}

	// Oversized regions are never touched by an Arena, so the payload is
	// just headerSize bytes into the mapping.
	return payloadOf(h)
}

// allocateRegular serves a regular-class request: thread-cache pop first,
// then the owning arena's free lists, creating or growing the arena chain
// as needed. An exhausted arena grows the chain rather than failing the
// request outright.
//
// The arena is always asked for the class's nominal payload (classPayload),
// not the raw requested size. Blocks the thread cache hands back are never
// size-checked by [threadCache.pop], so the only way pop can stay safe is
// if every block ever pushed under a class is big enough for any request
// that maps to it, which holds only when split actually carves the block
// down to the class's fixed size. Passing the raw size through instead
// would let an upward-borrowed, unsplit block get cached under a class it
// can't fully serve.
func (al *Allocator) allocateRegular(size, class int) unsafe.Pointer {
	tc := al.currentThreadCache()

	if b := tc.pop(class); b != nil {
		b.free = false
		return payloadOf(b)
	}

	grant := classPayload(class)

	arena := tc.arena
	if arena == nil {
		a, err := al.linkNewArena()
		if err != nil {
			return nil
		}
		arena = a
		tc.arena = a
	}

	if b := al.allocFromArena(arena, grant); b != nil {
		return payloadOf(b)
	}

	// No free block anywhere in the current arena: grow the chain rather
	// than failing the request outright.
	a, err := al.linkNewArena()
	if err != nil {
		return nil
	}
	tc.arena = a

	b := al.allocFromArena(a, grant)
	if b == nil {
		debug.Log(nil, "allocate", "fresh arena could not satisfy size %d; region too small", grant)
		return nil
	}
	return payloadOf(b)
}

func (al *Allocator) allocFromArena(a *Arena, size int) *block {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.findBestFit(size)
	if b == nil {
		return nil
	}
	a.split(b, size)
	return b
}

// linkNewArena creates a new arena and links it into the global chain under
// the write side of arenasMu, the one global lock held only while linking
// a newly created arena.
func (al *Allocator) linkNewArena() (*Arena, error) {
	a, err := newArena(al.arenaPageCount())
	if err != nil {
		return nil, err
	}

	al.arenasMu.Lock()
	a.next = al.arenas
	al.arenas = a
	al.arenasMu.Unlock()

	return a, nil
}

// ownerOf returns the arena whose region contains h's address, or nil if h
// belongs to no known arena (e.g. it is an oversized block's header).
func (al *Allocator) ownerOf(h *block) *Arena {
	addr := addrOf(h)

	al.arenasMu.RLock()
	defer al.arenasMu.RUnlock()

	for a := al.arenas; a != nil; a = a.next {
		if addr >= a.base && addr < a.end {
			return a
		}
	}
	return nil
}

// Release is the instance form of the package-level [Release].
func (al *Allocator) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}

	// An untracked pointer is only reported (by tracker.remove); its header
	// is never read or acted on.
	al.trackerMu.Lock()
	tracked := false
	for n := al.tracker.head; n != nil; n = n.next {
		if n.ptr == p {
			tracked = true
			break
		}
	}
	al.tracker.remove(p)
	al.trackerMu.Unlock()
	if !tracked {
		return
	}

	h := headerOf(p)

	// Dispatch on which arena (if any) owns this header, not on the stored
	// size: a regular block handed out unsplit can carry a payload size
	// past MaxClassSize even though it was never a standalone oversized
	// mapping, so size alone cannot tell the two apart reliably.
	owner := al.ownerOf(h)
	if owner == nil {
		// The mapping was page-rounded at allocation; unmap all of it.
		region := unsafe.Slice(xunsafe.Cast[byte](h), roundToPage(headerSize+int(h.size)))
		_ = unmapPages(region)
		return
	}

	al.releaseRegular(owner, h)
}

// releaseRegular returns h, owned by owner, to the thread cache if there is
// room for its class, or to owner's free lists otherwise.
//
// A block only goes to the thread cache if its payload is exactly its
// class's nominal size. [Arena.findBestFit] can hand out a block borrowed
// from a higher class without splitting it (when the leftover slack is too
// small to carve a separate remainder); such a block is bigger than its
// apparent class needs, but [threadCache.pop] never re-checks size before
// handing a cached block back out, so caching it under the smaller class
// would risk satisfying a later, larger request with too little room.
// Blocks like that, along with anything past MaxClassSize (arenaClassOf
// yields the in-arena-oversized sentinel, which the thread cache never
// holds), go straight back to owner's free lists instead.
func (al *Allocator) releaseRegular(owner *Arena, h *block) {
	class := arenaClassOf(int(h.size))

	if class != ClassCount && int(h.size) == classPayload(class) {
		tc := al.currentThreadCache()
		if tc.push(class, h) {
			return
		}
	}

	owner.mu.Lock()
	owner.release(h)
	owner.mu.Unlock()
}

// CheckLeaks is the instance form of the package-level [CheckLeaks].
func (al *Allocator) CheckLeaks() int {
	al.trackerMu.Lock()
	defer al.trackerMu.Unlock()

	n := 0
	al.tracker.scan(func(ptr unsafe.Pointer, size uint32) {
		fmt.Fprintf(os.Stderr, "Memory leak detected: pointer %p of size %d bytes\n", ptr, size)
		n++
	})
	return n
}
