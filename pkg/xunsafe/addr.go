package xunsafe

import (
	"fmt"
	"unsafe"

	"github.com/flier/memalloc/pkg/xunsafe/layout"
)

// Addr is an untyped address, equivalent to a *T that does not keep its
// referent alive and does not participate in the garbage collector's
// write barriers.
//
// Unlike uintptr, an Addr is only ever meant to name a location; arithmetic
// on it is always expressed in units of T, matching pointer arithmetic in
// C. Use [Addr.ByteAdd] for raw byte-offset arithmetic.
type Addr[T any] uintptr

// AddrOf returns the address of the value p points to.
func AddrOf[T any](p *T) Addr[T] {
	return Addr[T](unsafe.Pointer(p))
}

// EndOf returns the address one past the end of the given slice.
func EndOf[S ~[]E, E any](s S) Addr[E] {
	size := layout.Size[E]()
	return Addr[E](uintptr(unsafe.Pointer(unsafe.SliceData(s))) + uintptr(len(s))*uintptr(size))
}

// AssertValid converts this address back into a pointer.
//
// This is named AssertValid, rather than some unchecked name, to call out
// that the caller is responsible for knowing that this address refers to
// live memory of the correct type; this package cannot check that for you.
func (a Addr[T]) AssertValid() *T {
	return (*T)(unsafe.Pointer(uintptr(a)))
}

// Add adds n elements of T's size to this address.
func (a Addr[T]) Add(n int) Addr[T] {
	return a + Addr[T](n*layout.Size[T]())
}

// ByteAdd adds n raw bytes to this address, without scaling by T's size.
func (a Addr[T]) ByteAdd(n int) Addr[T] {
	return a + Addr[T](n)
}

// Sub returns the number of T-sized elements between a and b.
func (a Addr[T]) Sub(b Addr[T]) int {
	return int(a-b) / layout.Size[T]()
}

// ByteSub returns the raw byte distance between a and b.
func (a Addr[T]) ByteSub(b Addr[T]) int {
	return int(a - b)
}

// Padding returns the number of bytes needed to round a up to align, which
// must be a power of two.
func (a Addr[T]) Padding(align int) int {
	return layout.Padding(int(a), align)
}

// RoundUpTo rounds this address up to the given power-of-two alignment.
func (a Addr[T]) RoundUpTo(align int) Addr[T] {
	return Addr[T](layout.RoundUp(int(a), align))
}

// SignBit returns whether this address's highest bit is set.
func (a Addr[T]) SignBit() bool {
	return a>>(unsafe.Sizeof(a)*8-1) != 0
}

// SignBitMask returns all-ones if [Addr.SignBit] is set, and all-zeroes
// otherwise.
func (a Addr[T]) SignBitMask() Addr[T] {
	return Addr[T](int(a) >> (unsafe.Sizeof(a)*8 - 1))
}

// ClearSignBit returns a with its sign bit cleared.
func (a Addr[T]) ClearSignBit() Addr[T] {
	return a &^ (Addr[T](1) << (unsafe.Sizeof(a)*8 - 1))
}

// String implements [fmt.Stringer], formatting the address in hexadecimal.
func (a Addr[T]) String() string {
	return fmt.Sprintf("%#x", uintptr(a))
}

// Format implements [fmt.Formatter] for %v and %x.
func (a Addr[T]) Format(s fmt.State, verb rune) {
	switch verb {
	case 'x':
		_, _ = fmt.Fprintf(s, "%x", uintptr(a))
	default:
		_, _ = fmt.Fprintf(s, "%#x", uintptr(a))
	}
}
