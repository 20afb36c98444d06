package memalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadCachePushPop(t *testing.T) {
	tc := &threadCache{cap: defaultThreadCacheCap}

	a, err := newArena(defaultArenaPages)
	require.NoError(t, err)

	class := ClassOf(64)
	grant := classPayload(class)

	b := a.findBestFit(grant)
	a.split(b, grant)

	require.True(t, tc.push(class, b))
	require.Equal(t, 1, tc.count[class])

	got := tc.pop(class)
	require.Same(t, b, got)
	require.Equal(t, 0, tc.count[class])
	require.Nil(t, tc.pop(class))
}

func TestThreadCacheRejectsPastCapacity(t *testing.T) {
	tc := &threadCache{cap: defaultThreadCacheCap}
	a, err := newArena(defaultArenaPages)
	require.NoError(t, err)

	class := ClassOf(8)
	grant := classPayload(class)

	for i := 0; i < defaultThreadCacheCap; i++ {
		b := a.findBestFit(grant)
		require.NotNil(t, b)
		a.split(b, grant)
		require.True(t, tc.push(class, b))
	}

	b := a.findBestFit(grant)
	require.NotNil(t, b)
	a.split(b, grant)
	require.False(t, tc.push(class, b))
	require.Equal(t, defaultThreadCacheCap, tc.count[class])
}

func TestDrainCurrentThreadReturnsBlocksToArena(t *testing.T) {
	al := New()

	p := al.Allocate(64)
	require.NotNil(t, p)
	al.Release(p)

	// The freed block now lives in this goroutine's thread cache, not the
	// arena's free list.
	tc := al.tcLocal.Get()
	require.NotNil(t, tc)
	class := ClassOf(64)
	require.Equal(t, 1, tc.count[class])

	al.drainCurrentThread()

	require.Nil(t, al.tcLocal.Get())
}

func TestThreadCacheIsolatedAcrossAllocators(t *testing.T) {
	al1 := New()
	al2 := New()

	p1 := al1.Allocate(64)
	require.NotNil(t, p1)

	// al2 must not see al1's arena through a shared thread-local slot.
	require.Nil(t, al2.tcLocal.Get())

	p2 := al2.Allocate(64)
	require.NotNil(t, p2)
	require.NotSame(t, al1.tcLocal.Get().arena, al2.tcLocal.Get().arena)
}
