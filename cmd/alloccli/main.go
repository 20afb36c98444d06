// Command alloccli is a thin wrapper around the allocbench harness: flags
// instead of positional arguments, a fixed report format, and the exit-code
// convention used across this module's commands (0 success, 2 usage error,
// 1 reserved for "ran but failed").
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/flier/memalloc/internal/bench"
	"github.com/flier/memalloc/internal/xflag"
	"github.com/flier/memalloc/pkg/memalloc"
)

func numericFlag(name, usage string) *int {
	return xflag.Func(name, usage, func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("-%s: %w", name, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("-%s: must not be negative", name)
		}
		return n, nil
	})
}

var (
	sizeFlag       = numericFlag("size", "size (required)")
	iterationsFlag = numericFlag("iterations", "iterations (required)")
	minFlag        = numericFlag("min", "min (optional)")
	maxFlag        = numericFlag("max", "max (optional)")
	threadsFlag    = numericFlag("threads", "threads (required)")
)

func main() {
	flag.Parse()

	for _, required := range []string{"size", "iterations", "threads"} {
		if !xflag.Parsed(required) {
			fmt.Fprintf(os.Stderr, "missing required flag -%s\n", required)
			flag.Usage()
			os.Exit(2)
		}
	}

	cfg := bench.Config{
		Size:       *sizeFlag,
		Iterations: *iterationsFlag,
		Min:        *minFlag,
		Max:        *maxFlag,
		Threads:    *threadsFlag,
	}

	result, err := bench.Run(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("%.2fx speedup over the platform allocator (%d allocations each)\n",
		result.SpeedupRatio(), result.Memalloc.Allocations)

	memalloc.CheckLeaks()
}
