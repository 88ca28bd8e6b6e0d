// Package cmem allocates buffers and pointer arrays on the C heap.
//
// The foreign-call ABI hands kernels raw buffer pointers, and cgo forbids
// passing Go memory that itself contains Go pointers. Host runtimes supply
// C-side buffers already; this package gives the CLI driver and tests the
// same kind of storage.
package cmem

// #include <stdlib.h>
import "C"

import "unsafe"

// Alloc returns n bytes of zeroed C memory. Free it with Free.
func Alloc(n int64) unsafe.Pointer {
	return C.calloc(1, C.size_t(n))
}

// Free releases memory obtained from Alloc or PointerArray.
func Free(p unsafe.Pointer) {
	C.free(p)
}

// PointerArray allocates a C array of void* holding ptrs, in order. The
// result can be handed to a kernel as its outputs or inputs array.
func PointerArray(ptrs ...unsafe.Pointer) *unsafe.Pointer {
	n := len(ptrs)
	if n == 0 {
		n = 1
	}
	arr := (*unsafe.Pointer)(C.calloc(C.size_t(n), C.size_t(unsafe.Sizeof(unsafe.Pointer(nil)))))
	slice := unsafe.Slice(arr, n)
	copy(slice, ptrs)
	return arr
}

// Float64s views p as a []float64 of length n. The slice aliases the C
// memory; it stays valid until the memory is freed.
func Float64s(p unsafe.Pointer, n int64) []float64 {
	return unsafe.Slice((*float64)(p), n)
}

// Float32s views p as a []float32 of length n.
func Float32s(p unsafe.Pointer, n int64) []float32 {
	return unsafe.Slice((*float32)(p), n)
}

// Int64s views p as an []int64 of length n.
func Int64s(p unsafe.Pointer, n int64) []int64 {
	return unsafe.Slice((*int64)(p), n)
}

// Int32s views p as an []int32 of length n.
func Int32s(p unsafe.Pointer, n int64) []int32 {
	return unsafe.Slice((*int32)(p), n)
}

// Bytes views p as a []byte of length n.
func Bytes(p unsafe.Pointer, n int64) []byte {
	return unsafe.Slice((*byte)(p), n)
}
