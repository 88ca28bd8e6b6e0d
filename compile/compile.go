// Package compile drives the external source-to-native toolchain. The core
// only depends on the Compiler interface; Clang is the production
// implementation, tests substitute their own.
package compile

import (
	"fmt"

	"tinygo.org/x/go-llvm"
)

// Compiler translates a synthesized translation unit into an in-memory LLVM
// module, or reports failure. path is a virtual label used in diagnostics;
// args are pass-through toolchain arguments appended after the defaults.
//
// Compile is a single synchronous call with no side effects beyond
// constructing the module in ctx.
type Compiler interface {
	Compile(ctx llvm.Context, path, source string, args []string) (llvm.Module, error)
}

// Error reports a failed translation. It wraps the underlying toolchain
// failure and carries the compiler diagnostics verbatim.
type Error struct {
	Path   string
	Output string
	Err    error
}

func (e *Error) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("compile %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("compile %s: %v\n%s", e.Path, e.Err, e.Output)
}

func (e *Error) Unwrap() error { return e.Err }
