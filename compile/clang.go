package compile

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"tinygo.org/x/go-llvm"
)

const (
	CC        = "clang++"
	CXX_STD   = "-std=c++17"
	OPT_LEVEL = "-O2"
	FPIC      = "-fPIC"

	OS_WINDOWS = "windows"

	marchEnv = "KJIT_MARCH"

	srcName = "kernel.cc"
	irName  = "kernel.ll"
)

// baseFlags returns the default compiler flags. KJIT_MARCH overrides the
// target microarchitecture; a bare value ("x86-64") and a full flag
// ("-march=native") are both accepted.
func baseFlags() []string {
	flags := []string{CXX_STD, OPT_LEVEL}
	if runtime.GOOS != OS_WINDOWS {
		flags = append(flags, FPIC)
	}
	if march := os.Getenv(marchEnv); march != "" {
		if march[0] == '-' {
			flags = append(flags, march)
		} else {
			flags = append(flags, "-march="+march)
		}
	}
	return flags
}

// Clang compiles synthesized translation units by invoking the system
// clang++ with -emit-llvm and parsing the textual IR it produces. The
// support header directory is prepared once at construction and shared by
// all compilations.
type Clang struct {
	cc      string
	include string
	scratch string
}

// NewClang locates clang++ and prepares the support-header cache under the
// default cache directory.
func NewClang() (*Clang, error) {
	return NewClangAt(DefaultCacheDir())
}

// NewClangAt is NewClang with an explicit cache root.
func NewClangAt(cacheDir string) (*Clang, error) {
	cc, err := exec.LookPath(CC)
	if err != nil {
		return nil, errors.Wrapf(err, "%s not found in PATH", CC)
	}
	include, err := EnsureSupport(cacheDir)
	if err != nil {
		return nil, err
	}
	scratch := filepath.Join(cacheDir, "src")
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return nil, errors.Wrap(err, "create scratch dir")
	}
	return &Clang{cc: cc, include: include, scratch: scratch}, nil
}

// Compile writes source to a private scratch directory, runs clang++ on it,
// and parses the emitted IR into ctx. The scratch directory is removed
// whether or not the compilation succeeds.
func (c *Clang) Compile(ctx llvm.Context, path, source string, args []string) (llvm.Module, error) {
	dir := filepath.Join(c.scratch, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return llvm.Module{}, errors.Wrap(err, "create kernel scratch dir")
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, srcName)
	ir := filepath.Join(dir, irName)
	if err := os.WriteFile(src, []byte(source), 0644); err != nil {
		return llvm.Module{}, errors.Wrap(err, "write kernel source")
	}

	ccArgs := append(baseFlags(), "-I", c.include, "-x", "c++", "-S", "-emit-llvm")
	ccArgs = append(ccArgs, args...)
	ccArgs = append(ccArgs, src, "-o", ir)
	klog.V(2).Infof("compiling %s: %s %v", path, c.cc, ccArgs)
	if out, err := exec.Command(c.cc, ccArgs...).CombinedOutput(); err != nil {
		return llvm.Module{}, &Error{Path: path, Output: string(out), Err: err}
	}

	buf, err := llvm.NewMemoryBufferFromFile(ir)
	if err != nil {
		return llvm.Module{}, &Error{Path: path, Err: errors.Wrap(err, "read emitted IR")}
	}
	mod, err := ctx.ParseIR(buf)
	if err != nil {
		return llvm.Module{}, &Error{Path: path, Err: errors.Wrap(err, "parse emitted IR")}
	}
	return mod, nil
}
