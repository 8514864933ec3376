package kfmt

import (
	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/cpu"
	"github.com/romac/dante/kernel/sbi"
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	panicResetFn = sbi.PanicReset
	cpuHaltFn    = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic prints the supplied error to the console and asks the firmware to
// power the system off. If the firmware refuses, the hart is halted. Panic
// never returns and is the redirect target for the runtime's panic entry
// point.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	if resetErr := panicResetFn(); resetErr != sbi.Success {
		Printf("system reset failed: %s\n", resetErr.Error())
	}
	cpuHaltFn()
}

// panicString is the redirect target for runtime.throw.
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
