//go:build !unix

package memalloc

import "github.com/flier/memalloc/internal/debug"

// pageSize is a conservative fallback for platforms without unix.Getpagesize.
var pageSize = 4096

func roundToPage(nbytes int) int {
	return (nbytes + pageSize - 1) &^ (pageSize - 1)
}

// mapPages is unsupported outside the unix build: this allocator obtains
// memory from the OS through mmap, which has no portable non-unix
// equivalent in this package.
func mapPages(int) ([]byte, error) {
	return nil, debug.Unsupported()
}

func unmapPages([]byte) error {
	return debug.Unsupported()
}
