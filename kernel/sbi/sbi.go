// Package sbi implements the subset of the RISC-V Supervisor Binary Interface
// used by the kernel: system reset and the debug console.
package sbi

import "github.com/romac/dante/kernel/cpu"

// Extension ids.
const (
	eidLegacyPutchar = 0x01
	eidBase          = 0x10
	eidDebugConsole  = 0x4442434E // "DBCN"
	eidSystemReset   = 0x53525354 // "SRST"
)

// Function ids of the base extension.
const (
	fidProbeExtension = 3
)

var (
	// ecallFn is mocked by tests and is automatically inlined by the compiler.
	ecallFn = cpu.ECall
)

// Call invokes function fid of extension eid with up to three arguments and
// returns the value and status reported by the firmware. The value is only
// meaningful when the status is Success.
func Call(eid, fid, a0, a1, a2 uintptr) (uintptr, Error) {
	status, value := ecallFn(eid, fid, a0, a1, a2)
	if err := NewError(status); err != Success {
		return 0, err
	}

	return value, Success
}

// ProbeExtension returns true if the firmware implements the extension with
// the supplied id.
func ProbeExtension(eid uintptr) bool {
	value, err := Call(eidBase, fidProbeExtension, eid, 0, 0)
	return err == Success && value != 0
}
