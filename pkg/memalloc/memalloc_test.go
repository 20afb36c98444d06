package memalloc_test

import (
	"testing"
	"unsafe"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"

	. "github.com/flier/memalloc/pkg/memalloc"
)

func TestAllocateZeroSize(t *testing.T) {
	Convey("Given a fresh Allocator", t, func() {
		al := New()

		Convey("When allocating zero bytes", func() {
			p := al.Allocate(0)

			Convey("Then it returns nil", func() {
				So(p, ShouldBeNil)
			})
		})
	})
}

func TestAllocateRegularRoundTrip(t *testing.T) {
	Convey("Given a fresh Allocator", t, func() {
		al := New()

		Convey("When allocating and writing to a regular-class request", func() {
			p := al.Allocate(100)
			So(p, ShouldNotBeNil)

			b := (*[100]byte)(p)
			for i := range b {
				b[i] = byte(i)
			}

			Convey("Then the bytes read back unchanged", func() {
				for i := range b {
					So(b[i], ShouldEqual, byte(i))
				}
			})

			Convey("And releasing it clears it from the leak tracker", func() {
				al.Release(p)
				So(al.CheckLeaks(), ShouldEqual, 0)
			})
		})
	})
}

func TestAllocateOversizedRoundTrip(t *testing.T) {
	Convey("Given a fresh Allocator", t, func() {
		al := New()

		Convey("When allocating more than the largest regular class", func() {
			const size = 8192
			p := al.Allocate(size)
			So(p, ShouldNotBeNil)

			b := unsafe.Slice((*byte)(p), size)
			for i := range b {
				b[i] = byte(i)
			}

			Convey("Then the full region is writable and readable", func() {
				So(b[0], ShouldEqual, byte(0))
				So(b[size-1], ShouldEqual, byte((size-1)&0xFF))
			})

			Convey("And releasing it removes it from the tracker", func() {
				al.Release(p)
				So(al.CheckLeaks(), ShouldEqual, 0)
			})
		})
	})
}

func TestCheckLeaksReportsLiveAllocations(t *testing.T) {
	Convey("Given a fresh Allocator with one live allocation", t, func() {
		al := New()
		p := al.Allocate(1024)
		So(p, ShouldNotBeNil)

		Convey("Then CheckLeaks reports exactly one leak", func() {
			So(al.CheckLeaks(), ShouldEqual, 1)
		})

		Convey("And releasing it makes the leak go away", func() {
			al.Release(p)
			So(al.CheckLeaks(), ShouldEqual, 0)
		})
	})
}

func TestReleaseNilIsNoop(t *testing.T) {
	Convey("Given a fresh Allocator", t, func() {
		al := New()

		Convey("Releasing nil does nothing", func() {
			So(func() { al.Release(nil) }, ShouldNotPanic)
		})
	})
}

func TestFixedClassBlockIsReusedViaThreadCache(t *testing.T) {
	al := New()

	p1 := al.Allocate(64)
	require.NotNil(t, p1)
	al.Release(p1)

	// The freed block should come straight back out of the thread cache
	// rather than requiring a fresh arena split.
	p2 := al.Allocate(64)
	require.NotNil(t, p2)
	require.Equal(t, p1, p2)
}

func TestManySizesDoNotOverlap(t *testing.T) {
	al := New()

	sizes := []int{1, 8, 17, 64, 100, 256, 1000, 4096, 5000}
	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, sz := range sizes {
		p := al.Allocate(sz)
		require.NotNil(t, p)
		ptrs[i] = p
		unsafe.Slice((*byte)(p), sz)[0] = byte(i + 1)
	}

	for i, sz := range sizes {
		got := unsafe.Slice((*byte)(ptrs[i]), sz)[0]
		require.Equal(t, byte(i+1), got, "allocation %d (size %d) was clobbered", i, sz)
	}

	for _, p := range ptrs {
		al.Release(p)
	}
	require.Equal(t, 0, al.CheckLeaks())
}

func TestConcurrentAllocateRelease(t *testing.T) {
	al := New()

	const goroutines = 8
	const perGoroutine = 200

	// require.NotNil must not be called off the test's own goroutine, so
	// failures are reported back over a channel instead.
	failures := make(chan int, goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			nilCount := 0
			for i := 0; i < perGoroutine; i++ {
				p := al.Allocate(32 + (i % 5 * 64))
				if p == nil {
					nilCount++
					continue
				}
				al.Release(p)
			}
			failures <- nilCount
		}()
	}
	for g := 0; g < goroutines; g++ {
		require.Zero(t, <-failures)
	}

	require.Equal(t, 0, al.CheckLeaks())
}

func TestAllocatorOptionsAreHonored(t *testing.T) {
	// A cache of one forces every release of the same class after the
	// first past the thread cache and into the arena's free lists; a
	// one-page arena holds about forty 64-byte blocks, so 100 allocations
	// force linkNewArena to grow the chain well before the defaults would.
	al := New(WithThreadCacheCap(1), WithArenaPages(1))

	var ptrs []unsafe.Pointer
	for i := 0; i < 100; i++ {
		p := al.Allocate(64)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		al.Release(p)
	}

	require.Equal(t, 0, al.CheckLeaks())
}
