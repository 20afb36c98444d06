package memalloc

import (
	"github.com/timandy/routine"

	"github.com/flier/memalloc/internal/debug"
	"github.com/flier/memalloc/pkg/xunsafe"
)

// defaultThreadCacheCap is the maximum number of blocks held per size class
// in a thread cache before pushes are rejected, unless an Allocator was
// built with [WithThreadCacheCap].
const defaultThreadCacheCap = 64

// threadCache is per-thread state, reached without any lock. It never spans
// size classes, never coalesces, and never talks to the page provider: all
// it does is thread a singly-linked list of already-carved blocks per
// class, bounded at cap.
type threadCache struct {
	free  [ClassCount]xunsafe.Addr[block]
	count [ClassCount]int
	cap   int
	arena *Arena // the arena this thread's slow path allocates from
}

// pop removes and returns the head of class's list, or nil if empty.
func (t *threadCache) pop(class int) *block {
	head := t.free[class]
	if head == 0 {
		return nil
	}
	b := head.AssertValid()
	t.free[class] = b.next
	t.count[class]--
	b.next = 0
	return b
}

// push links b at the head of class's list and reports whether it was
// accepted. A full cache rejects the push, leaving b for the arena path to
// handle.
func (t *threadCache) push(class int, b *block) bool {
	if t.count[class] >= t.cap {
		return false
	}
	b.next = t.free[class]
	t.free[class] = addrOf(b)
	t.count[class]++
	return true
}

// currentThreadCache returns (creating if necessary) the calling thread's
// cache for this particular Allocator. The registry lives on al, not as a
// package-level global: two isolated Allocators (e.g. [New] instances used
// by separate tests) running on the same OS thread must not see each
// other's cached blocks or arena pointer.
func (al *Allocator) currentThreadCache() *threadCache {
	tc := al.tcLocal.Get()
	if tc == nil {
		tc = &threadCache{cap: al.threadCacheCapacity()}
		al.tcLocal.Set(tc)
		debug.Log(nil, "threadcache", "created for goroutine %d", routine.Goid())
	}
	return tc
}

// DrainCurrentThread returns every block held in the calling thread's cache
// back to its owning arena, under that arena's lock, and forgets the
// thread's cache.
//
// A naive port of the classic per-thread-cache design loses cached blocks
// when a thread exits; a correct implementation should drain on thread
// exit instead. Go gives user code no portable thread-exit hook, so this
// package cannot run the drain automatically. The cache is keyed by
// goroutine (routine's thread-local storage), so callers that know the
// calling goroutine is about to stop should call this explicitly. See
// internal/bench for an example at worker shutdown.
func DrainCurrentThread() {
	Default.drainCurrentThread()
}

// DrainCurrentThread is the instance form of the package-level
// [DrainCurrentThread], for callers (such as a worker pool built on an
// isolated [Allocator] from [New]) that know a goroutine pinned to an OS
// thread is about to stop.
func (al *Allocator) DrainCurrentThread() {
	al.drainCurrentThread()
}

func (al *Allocator) drainCurrentThread() {
	tc := al.tcLocal.Get()
	if tc == nil {
		return
	}

	for class := 0; class < ClassCount; class++ {
		for {
			b := tc.pop(class)
			if b == nil {
				break
			}
			owner := al.ownerOf(b)
			if owner == nil {
				continue
			}
			owner.mu.Lock()
			owner.release(b)
			owner.mu.Unlock()
		}
	}

	al.tcLocal.Remove()
	debug.Log(nil, "threadcache", "drained goroutine %d", routine.Goid())
}
