package compile

import (
	"errors"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/go-llvm"

	"github.com/kernjit/kernjit/shape"
	"github.com/kernjit/kernjit/synth"
)

func containsPrefix(values []string, prefix string) bool {
	for _, value := range values {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func TestBaseFlagsDefaultPortable(t *testing.T) {
	t.Setenv(marchEnv, "")

	flags := baseFlags()

	if !slices.Contains(flags, OPT_LEVEL) {
		t.Fatalf("missing optimize flag %q in %v", OPT_LEVEL, flags)
	}
	if !slices.Contains(flags, CXX_STD) {
		t.Fatalf("missing C++ standard flag %q in %v", CXX_STD, flags)
	}
	if containsPrefix(flags, "-march=") {
		t.Fatalf("expected portable default without -march, got %v", flags)
	}

	if runtime.GOOS == OS_WINDOWS {
		if slices.Contains(flags, FPIC) {
			t.Fatalf("did not expect %q on windows, got %v", FPIC, flags)
		}
		return
	}
	if !slices.Contains(flags, FPIC) {
		t.Fatalf("expected %q on non-windows, got %v", FPIC, flags)
	}
}

func TestBaseFlagsMarchOverride(t *testing.T) {
	t.Setenv(marchEnv, "x86-64")

	flags := baseFlags()

	if !slices.Contains(flags, "-march=x86-64") {
		t.Fatalf("expected -march override in flags, got %v", flags)
	}
}

func TestBaseFlagsMarchFlagPassthrough(t *testing.T) {
	t.Setenv(marchEnv, "-march=native")

	flags := baseFlags()

	if !slices.Contains(flags, "-march=native") {
		t.Fatalf("expected explicit -march flag passthrough, got %v", flags)
	}
}

func TestErrorFormat(t *testing.T) {
	base := errors.New("exit status 1")
	err := &Error{Path: "/kernjit/kernel.cc", Output: "kernel.cc:3: error: expected ';'", Err: base}

	require.Contains(t, err.Error(), "/kernjit/kernel.cc")
	require.Contains(t, err.Error(), "expected ';'")
	require.True(t, errors.Is(err, base))

	bare := &Error{Path: "/kernjit/kernel.cc", Err: base}
	require.NotContains(t, bare.Error(), "\n")
}

// requireClang skips tests that need the real toolchain.
func requireClang(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(CC); err != nil {
		t.Skipf("%s not found in PATH", CC)
	}
}

const copyBody = `void kernel(kjit::tensor<double, 4>& out0, const kjit::tensor<double, 4>& in0) {
  for (size_t i = 0; i < 4; i++) out0[i] = in0[i];
}`

func TestClangCompileCopyKernel(t *testing.T) {
	requireClang(t)

	cc, err := NewClangAt(t.TempDir())
	require.NoError(t, err)

	unit := synth.Unit(copyBody,
		[]shape.Descriptor{shape.Make("double", 4)},
		[]shape.Descriptor{shape.Make("double", 4)})

	ctx := llvm.NewContext()
	defer ctx.Dispose()
	mod, err := cc.Compile(ctx, "/kernjit/kernel.cc", unit, nil)
	require.NoError(t, err)

	entry := mod.NamedFunction(synth.EntrySymbol)
	require.False(t, entry.IsNil(), "compiled module must define the entry symbol")
	require.NotEmpty(t, mod.DataLayout())
}

func TestClangCompileSyntaxError(t *testing.T) {
	requireClang(t)

	cc, err := NewClangAt(t.TempDir())
	require.NoError(t, err)

	ctx := llvm.NewContext()
	defer ctx.Dispose()
	_, err = cc.Compile(ctx, "/kernjit/kernel.cc", "void kernel( {", nil)
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	require.NotEmpty(t, cerr.Output)
}
