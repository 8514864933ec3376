// Package cpu exposes the privileged RISC-V instructions used by the kernel.
// All functions must be invoked from S-mode.
package cpu

// Halt disables supervisor interrupts and parks the hart in a wfi loop. Halt
// never returns.
func Halt()

// WaitForInterrupt stalls the hart until an interrupt becomes pending. It
// allows the hart to enter a low-power state.
func WaitForInterrupt()

// SwitchPageTable writes the supplied value to the satp register and flushes
// all TLB entries. The value encodes the paging mode in bits 63:60 and the
// physical frame of the root page table in bits 43:0.
func SwitchPageTable(satp uint64)

// ActivePageTable returns the current value of the satp register.
func ActivePageTable() uint64

// FlushTLB flushes all TLB entries for all address spaces.
func FlushTLB()

// ECall traps into the SBI firmware. The extension and function ids are
// passed in a7 and a6 and the arguments in a0-a2. The firmware returns a
// status code in a0 and a value in a1.
func ECall(eid, fid, a0, a1, a2 uintptr) (status int64, value uintptr)
