// Package dispatch invokes registered kernels through the fixed foreign-call
// ABI: an outputs pointer area and an inputs pointer array, with the first
// input slot carrying the 64-bit kernel identifier.
//
// This is the unsafe boundary of the system. Raw host pointers are converted
// to the kernel's (outs, ins) arrays here and nowhere else; everything behind
// the entry address is strongly shaped by the synthesized translation unit.
package dispatch

/*
#include <stdint.h>

typedef void (*kernjit_entry)(void **, void **);

// The JIT hands back a raw code address; Go cannot call it directly, so the
// call goes through a typed C function pointer.
static void kernjit_call(uintptr_t fn, void **outs, void **ins) {
	((kernjit_entry)fn)(outs, ins);
}

extern void kernjit_cpu_callback(void *out, void **ins);

static void *kernjit_callback_addr(void) {
	return (void *)kernjit_cpu_callback;
}
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/kernjit/kernjit/registry"
)

// ErrUnknownKernel reports an invocation with an identifier that was never
// registered. At the host boundary this is unrecoverable: the callback
// aborts the process rather than call through an undefined address.
var ErrUnknownKernel = errors.New("unknown kernel identifier")

// Invoke calls k's entry address with the host-supplied pointer areas.
//
// If k declares exactly one output, out is the sole output buffer pointer.
// If it declares more than one, out is itself an array of per-output buffer
// pointers. ins points at the first input buffer pointer; its length is
// implied by the kernel's declaration. The call is synchronous and returns
// nothing; all effects happen through the referenced buffers.
func Invoke(k *registry.Kernel, out unsafe.Pointer, ins *unsafe.Pointer) {
	outs := &out
	if len(k.OutShapes) > 1 {
		outs = (*unsafe.Pointer)(out)
	}
	klog.V(2).Infof("invoking kernel %d (%d outputs)", k.ID, len(k.OutShapes))
	C.kernjit_call(C.uintptr_t(k.Addr), outs, ins)
}

// dispatchTo decodes the identifier from ins[0], resolves the kernel in reg,
// and invokes it with the remaining input slots.
func dispatchTo(reg *registry.Registry, out unsafe.Pointer, ins *unsafe.Pointer) error {
	id := *(*int64)(*ins)
	k, ok := reg.Get(id)
	if !ok {
		return errors.WithMessagef(ErrUnknownKernel, "id %d", id)
	}
	rest := (*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(ins), unsafe.Sizeof(uintptr(0))))
	Invoke(k, out, rest)
	return nil
}

// CallbackAddress returns the address of the exported dispatch symbol, for
// handing to a host runtime as its call target.
func CallbackAddress() unsafe.Pointer {
	return C.kernjit_callback_addr()
}
