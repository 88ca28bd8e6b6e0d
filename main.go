// Command kernjit registers a kernel from a C++ source file and invokes it
// once over freshly allocated buffers — a smoke runner for kernels outside a
// host runtime.
//
// The source file must define the kernel function the entry point calls:
//
//	void kernel(kjit::tensor<double, 4>& out0, const kjit::tensor<double, 4>& in0) { ... }
//
// Shapes are declared on the command line, outputs then inputs:
//
//	kernjit -out double:4 -in double:4 copy.cc
//
// Inputs are filled with the sequence 1, 2, 3, ...; outputs are printed
// after the call.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"k8s.io/klog/v2"

	"github.com/kernjit/kernjit/cmem"
	"github.com/kernjit/kernjit/dispatch"
	"github.com/kernjit/kernjit/registry"
	"github.com/kernjit/kernjit/shape"
)

// parseShape parses a descriptor spec of the form "elem", "elem:4", or
// "elem:2x3". A bare element type is a scalar.
func parseShape(spec string) (shape.Descriptor, error) {
	elem, dims, found := strings.Cut(spec, ":")
	if elem == "" {
		return shape.Descriptor{}, fmt.Errorf("shape spec %q: missing element type", spec)
	}
	if !found || dims == "" {
		return shape.Make(elem), nil
	}
	var extents []int64
	for _, part := range strings.Split(dims, "x") {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return shape.Descriptor{}, fmt.Errorf("shape spec %q: bad dimension %q", spec, part)
		}
		extents = append(extents, n)
	}
	return shape.Make(elem, extents...), nil
}

// shapeList collects repeated -out/-in flags in declaration order.
type shapeList []shape.Descriptor

func (s *shapeList) String() string {
	parts := make([]string, len(*s))
	for i, d := range *s {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

func (s *shapeList) Set(v string) error {
	d, err := parseShape(v)
	if err != nil {
		return err
	}
	*s = append(*s, d)
	return nil
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, " ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// fillSequential writes 1, 2, 3, ... into the buffer, in the element type's
// representation. Unknown element types are left zeroed.
func fillSequential(p unsafe.Pointer, d shape.Descriptor) {
	n := d.Size()
	switch d.Elem {
	case "double":
		for i, s := 0, cmem.Float64s(p, n); i < int(n); i++ {
			s[i] = float64(i + 1)
		}
	case "float":
		for i, s := 0, cmem.Float32s(p, n); i < int(n); i++ {
			s[i] = float32(i + 1)
		}
	case "int64_t", "uint64_t":
		for i, s := 0, cmem.Int64s(p, n); i < int(n); i++ {
			s[i] = int64(i + 1)
		}
	case "int32_t", "uint32_t":
		for i, s := 0, cmem.Int32s(p, n); i < int(n); i++ {
			s[i] = int32(i + 1)
		}
	}
}

// formatBuffer renders a buffer's values for printing. Falls back to hex for
// element types without a decoder.
func formatBuffer(p unsafe.Pointer, d shape.Descriptor) string {
	n := d.Size()
	switch d.Elem {
	case "double":
		return fmt.Sprint(cmem.Float64s(p, n))
	case "float":
		return fmt.Sprint(cmem.Float32s(p, n))
	case "int64_t", "uint64_t":
		return fmt.Sprint(cmem.Int64s(p, n))
	case "int32_t", "uint32_t":
		return fmt.Sprint(cmem.Int32s(p, n))
	default:
		bytes, _ := d.Bytes()
		return fmt.Sprintf("% x", cmem.Bytes(p, bytes))
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	var outs, ins shapeList
	var ccArgs stringList
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Var(&outs, "out", "output descriptor, elem[:d1xd2...] (repeatable, declaration order)")
	flag.Var(&ins, "in", "input descriptor, elem[:d1xd2...] (repeatable, declaration order)")
	flag.Var(&ccArgs, "ccarg", "extra compiler argument (repeatable)")
	klog.InitFlags(nil)
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}
	if flag.NArg() != 1 {
		fail("usage: kernjit [flags] kernel.cc")
	}
	if len(outs) == 0 {
		fail("at least one -out descriptor is required")
	}

	srcFile := flag.Arg(0)
	source, err := os.ReadFile(srcFile)
	if err != nil {
		fail("error reading %s: %v", srcFile, err)
	}

	reg, err := registry.Default()
	if err != nil {
		fail("error initializing registry: %v", err)
	}
	id, err := reg.Create(string(source), outs, ins, ccArgs)
	if err != nil {
		fail("error creating kernel from %s: %v", srcFile, err)
	}
	fmt.Printf("registered kernel %d from %s\n", id, srcFile)

	k, ok := reg.Get(id)
	if !ok {
		fail("kernel %d vanished after creation", id)
	}

	alloc := func(ds []shape.Descriptor, kind string) []unsafe.Pointer {
		ptrs := make([]unsafe.Pointer, len(ds))
		for i, d := range ds {
			bytes, sizable := d.Bytes()
			if !sizable {
				fail("%s %d: cannot size element type %q; run this kernel from a host runtime instead", kind, i, d.Elem)
			}
			ptrs[i] = cmem.Alloc(bytes)
		}
		return ptrs
	}
	outPtrs := alloc(outs, "output")
	inPtrs := alloc(ins, "input")
	for i, d := range ins {
		fillSequential(inPtrs[i], d)
	}

	var out unsafe.Pointer
	if len(outs) == 1 {
		out = outPtrs[0]
	} else {
		out = unsafe.Pointer(cmem.PointerArray(outPtrs...))
	}
	dispatch.Invoke(k, out, cmem.PointerArray(inPtrs...))

	for i, d := range outs {
		fmt.Printf("out_%d %s = %s\n", i, d, formatBuffer(outPtrs[i], d))
	}
}
