//go:build !riscv64

package cpu

import "github.com/romac/dante/kernel"

// The kernel only runs on riscv64. Other architectures get these stand-ins so
// that the packages depending on cpu can be built and unit tested on a
// development host; tests replace every call site through a package-level
// function variable before any of them is reached.

var errPrivileged = &kernel.Error{Module: "cpu", Message: "privileged instruction invoked on a hosted build"}

// Halt panics on hosted builds.
func Halt() { panic(errPrivileged) }

// WaitForInterrupt panics on hosted builds.
func WaitForInterrupt() { panic(errPrivileged) }

// SwitchPageTable panics on hosted builds.
func SwitchPageTable(_ uint64) { panic(errPrivileged) }

// ActivePageTable panics on hosted builds.
func ActivePageTable() uint64 { panic(errPrivileged) }

// FlushTLB panics on hosted builds.
func FlushTLB() { panic(errPrivileged) }

// ECall panics on hosted builds.
func ECall(_, _, _, _, _ uintptr) (int64, uintptr) { panic(errPrivileged) }
