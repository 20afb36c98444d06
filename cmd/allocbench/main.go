// Command allocbench runs a side-by-side allocation throughput comparison
// between memalloc and Go's own runtime allocator.
//
// Usage:
//
//	allocbench [-config file.yaml] size iterations minSize maxSize threads
//
// minSize and maxSize select random-size mode when both are positive and
// maxSize > minSize; otherwise every iteration allocates exactly size bytes.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/flier/memalloc/internal/bench"
	"github.com/flier/memalloc/internal/xflag"
	"github.com/flier/memalloc/pkg/memalloc"
)

// tuning overrides memalloc's own arena size and thread-cache defaults, read
// from an optional YAML file so the same tuning can be reused across runs
// without retyping flags.
type tuning struct {
	ArenaPages     int `yaml:"arena_pages"`
	ThreadCacheCap int `yaml:"thread_cache_cap"`
}

func loadTuning(path string) (tuning, error) {
	var t tuning
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return t, nil
}

// tuningFlag is populated via flag.Func (through xflag.Func, which avoids a
// package-level assignment target declared separately from the flag that
// fills it in).
var tuningFlag = xflag.Func("config", "path to a YAML file overriding arena_pages/thread_cache_cap", loadTuning)

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}
	cfg.ArenaPages = tuningFlag.ArenaPages
	cfg.ThreadCacheCap = tuningFlag.ThreadCacheCap

	result, err := bench.Run(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	report(cfg, result)

	memalloc.CheckLeaks()
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config file.yaml] size iterations minSize maxSize threads\n", os.Args[0])
	flag.PrintDefaults()
}

func parseArgs(args []string) (bench.Config, error) {
	if len(args) != 5 {
		return bench.Config{}, fmt.Errorf("expected 5 positional arguments, got %d", len(args))
	}

	fields := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return bench.Config{}, fmt.Errorf("argument %d (%q) is not an integer", i+1, a)
		}
		fields[i] = n
	}

	return bench.Config{
		Size:       fields[0],
		Iterations: fields[1],
		Min:        fields[2],
		Max:        fields[3],
		Threads:    fields[4],
	}, nil
}

func report(cfg bench.Config, result bench.Result) {
	fmt.Printf("memalloc: %v across %d allocations (%d threads, utilization %.2fx)\n",
		result.Memalloc.Elapsed, result.Memalloc.Allocations, cfg.Threads, result.Memalloc.Utilization)
	fmt.Printf("platform: %v across %d allocations (%d threads, utilization %.2fx)\n",
		result.Platform.Elapsed, result.Platform.Allocations, cfg.Threads, result.Platform.Utilization)
	fmt.Printf("speedup: %.2fx\n", result.SpeedupRatio())
}
