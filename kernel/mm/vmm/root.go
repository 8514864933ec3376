package vmm

import (
	"unsafe"

	"github.com/romac/dante/kernel/sync"
)

// RootPageTable is the top-level table whose frame is written to satp.
type RootPageTable struct {
	PageTable
}

// RootGuard serializes access to the kernel root page table. The static
// lower-level tables are only modified while the guard is held.
type RootGuard struct {
	lock sync.Spinlock
}

var kernelPageTable RootGuard

// KernelPageTable returns the guard for the kernel root page table.
func KernelPageTable() *RootGuard {
	return &kernelPageTable
}

// Lock acquires the guard and returns the root table. Callers must invoke
// Unlock once they are done with the table.
func (g *RootGuard) Lock() *RootPageTable {
	g.lock.Acquire()
	return rootTable()
}

// TryLock behaves like Lock but returns nil instead of spinning when the
// guard is held elsewhere.
func (g *RootGuard) TryLock() *RootPageTable {
	if !g.lock.TryToAcquire() {
		return nil
	}
	return rootTable()
}

// Unlock releases the guard.
func (g *RootGuard) Unlock() {
	g.lock.Release()
}

func rootTable() *RootPageTable {
	return (*RootPageTable)(unsafe.Pointer(staticTable(rootTableIndex)))
}

// highTable returns the level-2 table shared by the code and stack regions.
func highTable() *PageTable {
	return staticTable(highTableIndex)
}

// stackTable returns the level-1 table that maps the stack.
func stackTable() *PageTable {
	return staticTable(stackTableIndex)
}
