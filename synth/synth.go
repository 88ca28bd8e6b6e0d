// Package synth builds the compilable C++ translation unit around a
// user-supplied kernel body.
//
// The synthesized unit embeds the body verbatim and defines an extern "C"
// entry function that unpacks two raw pointer arrays (output buffers, input
// buffers) into shaped tensor references before calling the user's function.
// No validation of the body happens here; a malformed body fails later in the
// compiler adapter.
package synth

import (
	"fmt"
	"strings"

	"github.com/kernjit/kernjit/shape"
)

// EntrySymbol is the externally-linkable name of the generated entry
// function. The execution engine resolves exactly this symbol in every
// compiled module.
const EntrySymbol = "entry"

// KernelFunc is the name the user body must define. The entry function calls
// it with all outputs first, then all inputs, each in declaration order.
const KernelFunc = "kernel"

// tensorType renders the C++ reference target type for a descriptor, e.g.
// "const kjit::tensor<double, 4>" for a read-only shape (double)[4].
func tensorType(d shape.Descriptor, readonly bool) string {
	var b strings.Builder
	if readonly {
		b.WriteString("const ")
	}
	b.WriteString("kjit::tensor<")
	b.WriteString(d.Elem)
	for _, dim := range d.Dims {
		fmt.Fprintf(&b, ", %d", dim)
	}
	b.WriteString(">")
	return b.String()
}

// Unit synthesizes the full translation unit text. The generated entry
// function has the fixed signature
//
//	extern "C" void entry(void** outs, void** ins)
//
// and produces exactly len(outs)+len(ins) reinterpretation statements, one
// per declared argument, preserving declaration order. Outputs are mutable
// references, inputs are const references.
func Unit(source string, outs, ins []shape.Descriptor) string {
	var b strings.Builder
	b.WriteString("#include <cstdint>\n")
	b.WriteString("#include <kjit/tensor.h>\n")
	b.WriteString(source)
	b.WriteString("\n")
	fmt.Fprintf(&b, "extern \"C\" void %s(void** __restrict__ outs, void** __restrict__ ins) {\n", EntrySymbol)
	for i, d := range outs {
		t := tensorType(d, false)
		fmt.Fprintf(&b, " %s& out_%d = *(%s*)outs[%d];\n", t, i, t, i)
	}
	for i, d := range ins {
		t := tensorType(d, true)
		fmt.Fprintf(&b, " %s& in_%d = *(%s*)ins[%d];\n", t, i, t, i)
	}
	fmt.Fprintf(&b, "  %s(", KernelFunc)
	comma := false
	for i := range outs {
		if comma {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "out_%d", i)
		comma = true
	}
	for i := range ins {
		if comma {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "in_%d", i)
		comma = true
	}
	b.WriteString(");\n")
	b.WriteString("}\n")
	return b.String()
}
