// Package bench runs side-by-side allocation throughput comparisons between
// [memalloc] and Go's own runtime allocator, the closest stand-in this
// platform has for the "platform allocator" half of a malloc benchmark.
package bench

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flier/memalloc/internal/xsync"
	"github.com/flier/memalloc/pkg/memalloc"
	"github.com/flier/memalloc/pkg/xerrors"
)

// Config describes one comparison run.
type Config struct {
	// Size is the fixed allocation size used whenever Min and Max do not
	// select random-size mode.
	Size int

	// Min and Max bound a uniformly random allocation size per iteration
	// when both are positive and Max > Min. Otherwise every iteration uses
	// Size.
	Min, Max int

	Iterations int
	Threads    int

	// ArenaPages and ThreadCacheCap, when positive, are forwarded to
	// [memalloc.New] as [memalloc.WithArenaPages] /
	// [memalloc.WithThreadCacheCap]; zero keeps memalloc's own defaults.
	ArenaPages     int
	ThreadCacheCap int
}

// AllocationFailureError reports that a comparator returned nil/failed to
// allocate at the given size, which for memalloc means the page provider
// itself refused a mapping, or an arena configured too small (ArenaPages)
// cannot hold the size class at all (the arena chain grows rather than
// failing for any ordinary exhaustion).
type AllocationFailureError struct {
	Comparator string
	Size       int
}

func (e *AllocationFailureError) Error() string {
	return fmt.Sprintf("%s: allocation of %d bytes failed", e.Comparator, e.Size)
}

// Result is the wall-clock outcome of running both comparators under a
// [Config].
type Result struct {
	Memalloc Timing
	Platform Timing
}

// Timing is one comparator's wall-clock outcome: elapsed time of the whole
// parallel phase, and how many allocate/release pairs each worker completed.
type Timing struct {
	Elapsed     time.Duration
	PerWorker   map[int]int64 // worker index -> completed iterations
	Allocations int64

	// Utilization is the sum of every worker's own goroutine-local elapsed
	// time divided by the phase's wall-clock elapsed time: close to
	// Threads when workers ran concurrently without contending, closer to 1
	// when they serialized against each other (e.g. one shared Arena's
	// mutex under heavy contention).
	Utilization float64
}

// SpeedupRatio returns how many times faster memalloc ran than the
// platform comparator; values above 1 mean memalloc won.
func (r Result) SpeedupRatio() float64 {
	if r.Memalloc.Elapsed == 0 {
		return 0
	}
	return float64(r.Platform.Elapsed) / float64(r.Memalloc.Elapsed)
}

// Run executes both comparators under cfg and returns their timings, or an
// *AllocationFailureError if either comparator could not keep up with the
// requested sizes at all.
func Run(cfg Config) (Result, error) {
	al := memalloc.New(allocatorOptions(cfg)...)

	memTiming, err := runComparator(cfg, func(n int) func() {
		p := al.Allocate(n)
		if p == nil {
			return nil
		}
		return func() { al.Release(p) }
	}, al.DrainCurrentThread)
	if err != nil {
		return Result{}, annotateComparator(err, "memalloc")
	}

	platTiming, err := runComparator(cfg, func(n int) func() {
		buf := make([]byte, n)
		return func() { _ = buf }
	}, nil)
	if err != nil {
		return Result{}, annotateComparator(err, "platform")
	}

	al.CheckLeaks()

	return Result{Memalloc: memTiming, Platform: platTiming}, nil
}

// annotateComparator fills in which comparator produced err, using
// [xerrors.AsA] (the generic wrapper over [errors.As]) to reach into it
// without a type switch, then returns err unchanged for the caller to
// propagate.
func annotateComparator(err error, name string) error {
	if fail, ok := xerrors.AsA[*AllocationFailureError](err); ok {
		fail.Comparator = name
	}
	return err
}

func allocatorOptions(cfg Config) []memalloc.Option {
	var opts []memalloc.Option
	if cfg.ArenaPages > 0 {
		opts = append(opts, memalloc.WithArenaPages(cfg.ArenaPages))
	}
	if cfg.ThreadCacheCap > 0 {
		opts = append(opts, memalloc.WithThreadCacheCap(cfg.ThreadCacheCap))
	}
	return opts
}

// runComparator spawns cfg.Threads workers, each performing cfg.Iterations
// allocate/release pairs through alloc, and reports the wall-clock elapsed
// across the whole parallel phase plus per-worker completion counts.
//
// onWorkerDone, if non-nil, runs at the end of each worker's goroutine,
// before it exits; this is where a caller pinned to an isolated Allocator
// drains its thread cache back to the arena it borrowed from.
func runComparator(cfg Config, alloc func(size int) func(), onWorkerDone func()) (Timing, error) {
	var (
		wg         sync.WaitGroup
		completed  xsync.Map[int, int64]
		failed     xsync.Set[int]
		failedSize atomic.Int64        // size of a failed allocation, if any
		workerSecs xsync.AtomicFloat64 // sum of each worker's own elapsed time
	)

	start := time.Now()

	for w := 0; w < cfg.Threads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if onWorkerDone != nil {
				defer onWorkerDone()
			}

			workerStart := time.Now()
			rnd := rand.New(rand.NewSource(int64(worker) + 1))
			var n int64
			for i := 0; i < cfg.Iterations; i++ {
				size := pickSize(cfg, rnd)
				release := alloc(size)
				if release == nil {
					failedSize.Store(int64(size))
					failed.Store(worker)
					return
				}
				release()
				n++
			}
			completed.Store(worker, n)
			workerSecs.Add(time.Since(workerStart).Seconds())
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)

	for range failed.All() {
		return Timing{}, &AllocationFailureError{Size: int(failedSize.Load())}
	}

	perWorker := make(map[int]int64, cfg.Threads)
	var sum int64
	for w, n := range completed.All() {
		perWorker[w] = n
		sum += n
	}

	var utilization float64
	if elapsed > 0 {
		utilization = workerSecs.Load() / elapsed.Seconds()
	}

	return Timing{
		Elapsed:     elapsed,
		PerWorker:   perWorker,
		Allocations: sum,
		Utilization: utilization,
	}, nil
}

func pickSize(cfg Config, rnd *rand.Rand) int {
	if cfg.Min > 0 && cfg.Max > cfg.Min {
		return cfg.Min + rnd.Intn(cfg.Max-cfg.Min)
	}
	return cfg.Size
}
