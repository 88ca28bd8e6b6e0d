package dispatch

import (
	"errors"
	"os/exec"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/kernjit/kernjit/cmem"
	"github.com/kernjit/kernjit/compile"
	"github.com/kernjit/kernjit/registry"
	"github.com/kernjit/kernjit/shape"
)

const copyKernelSrc = `void kernel(kjit::tensor<double, 4>& out0, const kjit::tensor<double, 4>& in0) {
  for (size_t i = 0; i < 4; i++) out0[i] = in0[i];
}`

// TestEndToEndCopyKernel exercises the full pipeline against the real
// toolchain: synthesize, compile with clang++, link, register, invoke.
func TestEndToEndCopyKernel(t *testing.T) {
	if _, err := exec.LookPath(compile.CC); err != nil {
		t.Skipf("%s not found in PATH", compile.CC)
	}

	cc, err := compile.NewClangAt(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(cc)

	d := shape.Make("double", 4)
	id, err := reg.Create(copyKernelSrc, []shape.Descriptor{d}, []shape.Descriptor{d}, nil)
	require.NoError(t, err)

	k, ok := reg.Get(id)
	require.True(t, ok)

	in := cmem.Alloc(32)
	defer cmem.Free(in)
	copy(cmem.Float64s(in, 4), []float64{1.0, 2.0, 3.0, 4.0})
	out := cmem.Alloc(32)
	defer cmem.Free(out)
	ins := cmem.PointerArray(in)
	defer cmem.Free(unsafe.Pointer(ins))

	Invoke(k, out, ins)

	require.Equal(t, []float64{1.0, 2.0, 3.0, 4.0}, cmem.Float64s(out, 4))
}

// TestEndToEndSyntaxError verifies a failed compilation leaves the registry
// unchanged and that creation keeps handing out fresh identifiers afterward.
func TestEndToEndSyntaxError(t *testing.T) {
	if _, err := exec.LookPath(compile.CC); err != nil {
		t.Skipf("%s not found in PATH", compile.CC)
	}

	cc, err := compile.NewClangAt(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(cc)

	d := shape.Make("double", 4)
	_, err = reg.Create("void kernel( {", []shape.Descriptor{d}, nil, nil)
	require.Error(t, err)

	var cerr *compile.Error
	require.True(t, errors.As(err, &cerr))

	_, ok := reg.Get(1)
	require.False(t, ok, "failed creation must not register a kernel")

	// The failed attempt consumed identifier 1.
	id, err := reg.Create(copyKernelSrc, []shape.Descriptor{d}, []shape.Descriptor{d}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), id)

	_, ok = reg.Get(id)
	require.True(t, ok)
}
