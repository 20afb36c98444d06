package memalloc

import "github.com/flier/memalloc/pkg/xunsafe"

// arenaClassOf returns the free-list index a block of the given payload size
// belongs to within an arena: a regular size class if it fits one, or the
// sentinel index ClassCount for anything larger that still lives inside the
// arena's own region after a split.
func arenaClassOf(size int) int {
	if size <= MaxClassSize {
		return ClassOf(size)
	}
	return ClassCount
}

// unlink removes b from free list class, which must currently contain it.
// O(1).
func (a *Arena) unlink(class int, b *block) {
	if b.prev != 0 {
		b.prev.AssertValid().next = b.next
	} else {
		a.heads[class] = b.next
	}
	if b.next != 0 {
		b.next.AssertValid().prev = b.prev
	}
	b.next = 0
	b.prev = 0
}

// insertFree inserts a free block b into the free list matching its size,
// preserving ascending order by size.
func (a *Arena) insertFree(b *block) {
	class := arenaClassOf(int(b.size))

	var prev xunsafe.Addr[block]
	cur := a.heads[class]
	for cur != 0 {
		cb := cur.AssertValid()
		if cb.size >= b.size {
			break
		}
		prev = cur
		cur = cb.next
	}

	b.prev = prev
	b.next = cur

	if prev != 0 {
		prev.AssertValid().next = addrOf(b)
	} else {
		a.heads[class] = addrOf(b)
	}
	if cur != 0 {
		cur.AssertValid().prev = addrOf(b)
	}
}
