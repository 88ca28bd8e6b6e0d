// Package registry maintains the process-wide mapping from opaque 64-bit
// identifiers to compiled kernels.
//
// Creation is deliberately coarse-grained: Create holds the registry write
// lock across synthesis, external compilation, linking, and insertion. Kernel
// creation is rare compared to invocation, and serializing it keeps the
// shared JIT environment free of concurrent mutation. Lookup takes only the
// read lock, so any number of threads can resolve and run kernels
// concurrently.
package registry

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"tinygo.org/x/go-llvm"

	"github.com/kernjit/kernjit/compile"
	"github.com/kernjit/kernjit/engine"
	"github.com/kernjit/kernjit/shape"
	"github.com/kernjit/kernjit/synth"
)

// sourcePath is the virtual file label attached to every synthesized
// translation unit in compiler diagnostics.
const sourcePath = "/kernjit/kernel.cc"

// Kernel is a compiled kernel record. All fields are set at creation and
// never mutated; the record stays valid until process exit.
type Kernel struct {
	ID        int64
	OutShapes []shape.Descriptor
	Addr      uintptr
}

// Registry maps identifiers to kernels. Use New; the zero value has no
// compiler. A Registry owns its LLVM context and execution engine, so tests
// can run isolated instances side by side while production uses Default.
type Registry struct {
	mu       sync.RWMutex
	kernels  map[int64]*Kernel
	next     int64
	compiler compile.Compiler

	ctx      llvm.Context
	ctxReady bool
	engine   engine.Engine
}

// New returns an empty registry that compiles kernels with c. Identifiers
// start at 1.
func New(c compile.Compiler) *Registry {
	return &Registry{
		kernels:  make(map[int64]*Kernel),
		next:     1,
		compiler: c,
	}
}

// Create synthesizes a translation unit from source and the declared output
// and input descriptors, compiles and links it, and registers the resulting
// kernel. It returns the new kernel's identifier.
//
// The write lock spans the whole operation. The identifier is allocated
// before compilation and is consumed even if creation fails; a failed
// creation never inserts a record, and the identifier value is never reused.
// ccArgs are passed through to the compiler after its default flags.
func (r *Registry) Create(source string, outs, ins []shape.Descriptor, ccArgs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++

	unit := synth.Unit(source, outs, ins)
	if !r.ctxReady {
		r.ctx = llvm.NewContext()
		r.ctxReady = true
	}
	mod, err := r.compiler.Compile(r.ctx, sourcePath, unit, ccArgs)
	if err != nil {
		return 0, errors.WithMessagef(err, "create kernel %d", id)
	}
	addr, err := r.engine.Load(mod)
	if err != nil {
		return 0, errors.WithMessagef(err, "create kernel %d", id)
	}

	k := &Kernel{
		ID:        id,
		OutShapes: slices.Clone(outs),
		Addr:      addr,
	}
	r.kernels[id] = k
	klog.V(1).Infof("registered kernel %d: %d outputs, %d inputs, entry %#x", id, len(outs), len(ins), addr)
	return id, nil
}

// Get returns the kernel registered under id. Concurrent Gets do not block
// each other; a returned record is fully initialized and permanently valid.
func (r *Registry) Get(id int64) (*Kernel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[id]
	return k, ok
}

// Default is the process-wide registry backed by the system clang++,
// constructed on first use. The host-facing callback dispatches against it.
var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		cc, err := compile.NewClang()
		if err != nil {
			defaultErr = err
			return
		}
		defaultReg = New(cc)
	})
	return defaultReg, defaultErr
}
