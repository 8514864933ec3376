package sbi

import (
	"unsafe"

	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/mm"
)

// Function ids of the debug console extension.
const (
	fidConsoleWrite = 0
)

// maxStalledWrites bounds the number of consecutive console writes that may
// complete without consuming any bytes.
const maxStalledWrites = 16

type consoleMode uint8

const (
	consoleUndetected consoleMode = iota
	consoleDBCN
	consoleLegacy
)

var (
	// bufPhysAddrFn returns the physical address of a buffer byte. It is
	// mocked by tests as host buffers are not part of the kernel layout.
	bufPhysAddrFn = func(b *byte) (mm.PhysAddr, *kernel.Error) {
		return mm.VirtAddr(uintptr(unsafe.Pointer(b))).TryToPhys()
	}
)

// DebugConsole is an io.Writer that sends its output to the firmware console.
// The zero value is ready to use; the first Write checks whether the firmware
// implements the debug console extension and falls back to the legacy
// putchar call otherwise.
type DebugConsole struct {
	mode consoleMode
}

// Write writes p to the firmware console. The DBCN extension may accept only
// part of the buffer, in which case the remaining bytes are re-issued. If the
// firmware rejects DBCN writes as unsupported the console switches to the
// legacy call for good.
func (c *DebugConsole) Write(p []byte) (int, error) {
	if c.mode == consoleUndetected {
		c.mode = consoleLegacy
		if ProbeExtension(eidDebugConsole) {
			c.mode = consoleDBCN
		}
	}

	if c.mode == consoleLegacy {
		return writeLegacy(p)
	}

	var written, stalled int
	for written < len(p) {
		physAddr, err := bufPhysAddrFn(&p[written])
		if err != nil {
			// The firmware needs a physical address; buffers that
			// the kernel layout cannot translate are sent one
			// byte at a time instead.
			n, err := writeLegacy(p[written:])
			return written + n, err
		}

		n, callErr := Call(eidDebugConsole, fidConsoleWrite, uintptr(len(p)-written), uintptr(physAddr), 0)
		if callErr == ErrNotSupported {
			c.mode = consoleLegacy
			n, err := writeLegacy(p[written:])
			return written + n, err
		}
		if callErr != Success {
			return written, callErr.asError()
		}

		if n == 0 {
			if stalled++; stalled == maxStalledWrites {
				return written, ErrFailed
			}
			continue
		}

		stalled = 0
		written += int(n)
	}

	return written, nil
}

// writeLegacy writes p using the legacy console putchar call.
func writeLegacy(p []byte) (int, error) {
	for i, b := range p {
		if _, err := Call(eidLegacyPutchar, 0, uintptr(b), 0, 0); err != Success {
			return i, err.asError()
		}
	}

	return len(p), nil
}
