//go:build unix

package memalloc

import (
	"golang.org/x/sys/unix"

	"github.com/flier/memalloc/internal/debug"
)

// pageSize is the platform page size, read once at init.
var pageSize = unix.Getpagesize()

// roundToPage rounds nbytes up to the next multiple of the platform page
// size. Callers are responsible for this rounding; [mapPages] itself never
// rounds.
func roundToPage(nbytes int) int {
	if pageSize <= 0 {
		return nbytes
	}
	return (nbytes + pageSize - 1) &^ (pageSize - 1)
}

// mapPages requests a private, anonymous, read-write region of exactly
// nbytes from the operating system. nbytes must already be page-aligned.
//
// Returns [ErrOutOfMemory] if the kernel refuses the mapping.
func mapPages(nbytes int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, nbytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		debug.Log(nil, "mmap", "failed to map %d bytes: %v", nbytes, err)
		return nil, ErrOutOfMemory
	}
	debug.Log(nil, "mmap", "mapped %d bytes at %p", nbytes, &region[0])
	return region, nil
}

// unmapPages releases a region previously obtained from [mapPages]. The
// slice's length is used verbatim as the unmap size: it must be the size
// actually recorded for the block, not a fixed constant, otherwise
// oversized releases under-unmap their mapping.
func unmapPages(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	if err := unix.Munmap(region); err != nil {
		debug.Log(nil, "munmap", "failed to unmap %d bytes at %p: %v", len(region), &region[0], err)
		return err
	}
	debug.Log(nil, "munmap", "unmapped %d bytes", len(region))
	return nil
}
