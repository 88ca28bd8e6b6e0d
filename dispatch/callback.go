package dispatch

import "C"

import (
	"unsafe"

	"k8s.io/klog/v2"

	"github.com/kernjit/kernjit/registry"
)

// kernjit_cpu_callback is the single exported native symbol the host runtime
// calls for every registered kernel. ins[0] always carries the 64-bit kernel
// identifier; the remaining input slots and the out area are raw buffer
// pointers whose count and shapes are implied by the identifier's record.
//
// An identifier that was never registered means the host and the registry
// have desynchronized; continuing would call through an undefined address,
// so the process aborts.
//
//export kernjit_cpu_callback
func kernjit_cpu_callback(out unsafe.Pointer, ins *unsafe.Pointer) {
	reg, err := registry.Default()
	if err != nil {
		klog.Fatalf("kernel dispatch without a usable registry: %v", err)
	}
	if err := dispatchTo(reg, out, ins); err != nil {
		klog.Fatalf("kernel dispatch failed: %v", err)
	}
}
