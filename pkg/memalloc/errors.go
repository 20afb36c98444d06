package memalloc

import "errors"

// ErrOutOfMemory is returned internally when the page provider refuses a
// mapping request. It never crosses the public API: [Allocate] surfaces it
// as a nil return, per the no-exceptional-control-flow contract.
var ErrOutOfMemory = errors.New("memalloc: out of memory")
