// Package engine owns the just-in-time linking environment that turns
// compiled modules into callable native addresses.
//
// An Engine is constructed lazily on the first Load and is keyed to that
// first module's data layout. Each loaded module gets its own isolated
// linkage scope, so the fixed entry symbol defined by every kernel module
// never collides across kernels. Scopes live until process exit; the
// addresses they produce stay valid for the lifetime of the engine.
//
// Engine methods are not self-locking: the registry serializes all Load
// calls under its write lock.
package engine

import (
	"fmt"
	"sync"

	"k8s.io/klog/v2"
	"tinygo.org/x/go-llvm"

	"github.com/kernjit/kernjit/synth"
)

// InitError reports that the linking environment could not be constructed.
// It is fatal for the process: the engine latches it and every subsequent
// Load fails with the same error.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return fmt.Sprintf("jit init: %v", e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// LinkError reports that a compiled module could not be added to a linkage
// scope. Previously loaded kernels are unaffected.
type LinkError struct {
	Err error
}

func (e *LinkError) Error() string { return fmt.Sprintf("jit link: %v", e.Err) }
func (e *LinkError) Unwrap() error { return e.Err }

// SymbolError reports that a loaded module does not define the entry symbol.
type SymbolError struct {
	Name string
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("jit: symbol %q not found in loaded module", e.Name)
}

// Native target setup happens once per process, on the first Load in any
// engine.
var (
	nativeOnce sync.Once
	nativeErr  error
)

func initNative() error {
	nativeOnce.Do(func() {
		llvm.LinkInMCJIT()
		if err := llvm.InitializeNativeTarget(); err != nil {
			nativeErr = err
			return
		}
		if err := llvm.InitializeNativeAsmPrinter(); err != nil {
			nativeErr = err
			return
		}
	})
	return nativeErr
}

// Engine is the per-process execution environment. The zero value is ready
// to use; the first successful Load initializes it.
type Engine struct {
	dataLayout string
	triple     string
	ready      bool
	initErr    error

	// One MCJIT instance per loaded kernel module. Kept so the jitted code
	// and its addresses outlive the Load call; never disposed individually.
	scopes []llvm.ExecutionEngine
}

// Loaded returns the number of modules this engine has loaded.
func (e *Engine) Loaded() int { return len(e.scopes) }

// DataLayout returns the data layout recorded from the first loaded module,
// or "" before initialization.
func (e *Engine) DataLayout() string { return e.dataLayout }

// Load adds mod to a fresh, isolated linkage scope and resolves the entry
// symbol to an executable address. The engine takes ownership of mod.
//
// The first Load records the module's data layout; a later module reporting
// a different non-empty layout is rejected with a LinkError rather than
// silently sharing the first-observed layout.
func (e *Engine) Load(mod llvm.Module) (uintptr, error) {
	if e.initErr != nil {
		return 0, e.initErr
	}
	if !e.ready {
		if err := initNative(); err != nil {
			e.initErr = &InitError{Err: err}
			return 0, e.initErr
		}
		e.dataLayout = mod.DataLayout()
		e.triple = mod.Target()
		e.ready = true
		klog.V(1).Infof("jit engine initialized: layout=%q triple=%q", e.dataLayout, e.triple)
	} else if dl := mod.DataLayout(); dl != "" && dl != e.dataLayout {
		return 0, &LinkError{Err: fmt.Errorf("module data layout %q does not match engine layout %q", dl, e.dataLayout)}
	}

	opts := llvm.NewMCJITCompilerOptions()
	opts.SetMCJITOptimizationLevel(2)
	scope, err := llvm.NewMCJITCompiler(mod, opts)
	if err != nil {
		return 0, &LinkError{Err: err}
	}

	fn := scope.FindFunction(synth.EntrySymbol)
	if fn.IsNil() {
		scope.Dispose()
		return 0, &SymbolError{Name: synth.EntrySymbol}
	}
	addr := uintptr(scope.PointerToGlobal(fn))
	if addr == 0 {
		scope.Dispose()
		return 0, &SymbolError{Name: synth.EntrySymbol}
	}

	e.scopes = append(e.scopes, scope)
	klog.V(2).Infof("loaded kernel module %d at %#x", len(e.scopes), addr)
	return addr, nil
}
