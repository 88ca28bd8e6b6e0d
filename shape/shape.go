// Package shape defines the Descriptor value type describing a single tensor
// argument of a kernel: its element type name and its dimension extents.
//
// Element types are named by their C++ spelling ("double", "float", "int32_t",
// ...) because that is the form the source synthesizer splices into the
// generated translation unit.
package shape

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Descriptor is immutable once constructed. Make copies the dimensions it is
// given, so a Descriptor never aliases caller-owned storage.
type Descriptor struct {
	Elem string
	Dims []int64
}

// Make returns a Descriptor for the given element type name and dimensions.
// A zero-dimension axis is allowed (an empty tensor); negative extents panic.
func Make(elem string, dims ...int64) Descriptor {
	for _, dim := range dims {
		if dim < 0 {
			panic(fmt.Sprintf("shape.Make(%s): negative dimension %d", elem, dim))
		}
	}
	return Descriptor{Elem: elem, Dims: slices.Clone(dims)}
}

// Rank returns the number of axes. A scalar has rank 0.
func (d Descriptor) Rank() int { return len(d.Dims) }

// Size returns the total number of elements: the product of all dimensions.
// A scalar has size 1.
func (d Descriptor) Size() int64 {
	size := int64(1)
	for _, dim := range d.Dims {
		size *= dim
	}
	return size
}

func (d Descriptor) Equal(o Descriptor) bool {
	return d.Elem == o.Elem && slices.Equal(d.Dims, o.Dims)
}

// String returns a compact representation, e.g. "(double)[4 2]".
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(d.Elem)
	b.WriteString(")[")
	for i, dim := range d.Dims {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(dim, 10))
	}
	b.WriteByte(']')
	return b.String()
}

// elemBytes maps the supported element type names to their size in bytes.
var elemBytes = map[string]int64{
	"float":    4,
	"double":   8,
	"int8_t":   1,
	"uint8_t":  1,
	"int16_t":  2,
	"uint16_t": 2,
	"int32_t":  4,
	"uint32_t": 4,
	"int64_t":  8,
	"uint64_t": 8,
}

// SizeOf returns the byte size of a known element type name. The second
// result is false for element types the buffer tooling cannot size; such
// types still compile and dispatch fine, the host just has to size its own
// buffers.
func SizeOf(elem string) (int64, bool) {
	n, ok := elemBytes[elem]
	return n, ok
}

// Bytes returns the total byte size of a tensor with this descriptor, or
// false if the element type is not sizable.
func (d Descriptor) Bytes() (int64, bool) {
	n, ok := SizeOf(d.Elem)
	if !ok {
		return 0, false
	}
	return n * d.Size(), true
}
