package memalloc

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/flier/memalloc/internal/xsync"
)

// trackerNode is one entry in the allocation tracker's singly-linked list.
// Nodes are drawn from a [xsync.Pool], which is itself backed by the Go
// runtime's own allocator, never from [Allocate], so that tracking an
// allocation can never recurse into the allocator it is tracking.
type trackerNode struct {
	ptr  unsafe.Pointer
	size uint32
	next *trackerNode
}

var trackerNodes = xsync.Pool[trackerNode]{
	Reset: func(n *trackerNode) { *n = trackerNode{} },
}

// tracker is the global record of live user pointers. Every field is only
// ever touched while the owning [Allocator]'s lock is held.
type tracker struct {
	head *trackerNode
}

// insert records ptr as a live allocation of size bytes.
func (t *tracker) insert(ptr unsafe.Pointer, size int) {
	n := trackerNodes.Get()
	n.ptr = ptr
	n.size = uint32(size)
	n.next = t.head
	t.head = n
}

// remove forgets ptr. If ptr was never recorded (or was already removed),
// it logs a diagnostic to stderr and otherwise does nothing.
func (t *tracker) remove(ptr unsafe.Pointer) {
	cur := &t.head
	for *cur != nil {
		if (*cur).ptr == ptr {
			n := *cur
			*cur = n.next
			trackerNodes.Put(n)
			return
		}
		cur = &(*cur).next
	}
	fmt.Fprintf(os.Stderr, "memalloc: warning: attempt to free untracked pointer %p\n", ptr)
}

// scan calls visit once per surviving entry, in most-recently-inserted
// order.
func (t *tracker) scan(visit func(ptr unsafe.Pointer, size uint32)) {
	for n := t.head; n != nil; n = n.next {
		visit(n.ptr, n.size)
	}
}
