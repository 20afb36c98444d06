// Package memalloc implements a general-purpose dynamic memory allocator
// built directly on top of anonymous page mappings: size-class segregated
// arenas, a per-thread fast-path cache, and a global allocation tracker used
// for leak reporting.
//
// Memory obtained by [Allocate] comes from the operating system via
// [golang.org/x/sys/unix.Mmap], not from Go's own heap; the returned
// pointers are therefore opaque to the Go garbage collector and must be
// released explicitly with [Release]. This package is meant to be used the
// way a C allocator is used, not as a replacement for ordinary Go
// allocation.
package memalloc

import "github.com/flier/memalloc/internal/debug"

// Align is the alignment, in bytes, of every payload this package hands
// out. It doubles as the machine-word alignment boundary used when rounding
// requested sizes up.
const Align = 16

// classSizes are the fixed payload sizes backing the regular (non-oversized)
// size classes, smallest first.
var classSizes = [...]int{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// ClassCount is the number of regular size classes, N in the terminology of
// the design: 10 fixed classes; the oversized sentinel is not counted.
const ClassCount = len(classSizes)

// MaxClassSize is the payload size of the largest regular size class. Any
// request larger than this is served by the oversized path.
const MaxClassSize = 4096

// Oversized is the sentinel class index returned by [ClassOf] for requests
// that exceed [MaxClassSize].
const Oversized = -1

// ClassOf returns the smallest size class whose payload can hold size bytes,
// or [Oversized] if no regular class is large enough.
//
// size must already be aligned and non-zero; callers forward size == 0
// elsewhere (see [Allocate]).
func ClassOf(size int) int {
	for i, s := range classSizes {
		if size <= s {
			return i
		}
	}
	return Oversized
}

// classPayload returns the fixed payload size of the given regular class.
func classPayload(class int) int {
	debug.Assert(class >= 0 && class < ClassCount, "class out of range: %d", class)
	return classSizes[class]
}

// alignUp rounds size up to the next multiple of Align.
func alignUp(size int) int {
	return (size + Align - 1) &^ (Align - 1)
}
