package memalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestTrackerInsertRemove(t *testing.T) {
	var tr tracker

	var x, y byte
	px, py := unsafe.Pointer(&x), unsafe.Pointer(&y)

	tr.insert(px, 8)
	tr.insert(py, 16)

	var seen []unsafe.Pointer
	tr.scan(func(ptr unsafe.Pointer, size uint32) {
		seen = append(seen, ptr)
	})
	require.ElementsMatch(t, []unsafe.Pointer{px, py}, seen)

	tr.remove(px)

	seen = nil
	tr.scan(func(ptr unsafe.Pointer, size uint32) {
		seen = append(seen, ptr)
	})
	require.Equal(t, []unsafe.Pointer{py}, seen)
}

func TestTrackerRemoveUnknownPointerIsNoop(t *testing.T) {
	var tr tracker
	var x byte

	// Removing something never inserted must not panic; it only logs.
	tr.remove(unsafe.Pointer(&x))

	count := 0
	tr.scan(func(unsafe.Pointer, uint32) { count++ })
	require.Zero(t, count)
}

func TestTrackerRecordsSize(t *testing.T) {
	var tr tracker
	var x byte
	px := unsafe.Pointer(&x)

	tr.insert(px, 42)

	var gotSize uint32
	tr.scan(func(ptr unsafe.Pointer, size uint32) {
		if ptr == px {
			gotSize = size
		}
	})
	require.EqualValues(t, 42, gotSize)
}
