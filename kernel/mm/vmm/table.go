package vmm

import (
	"io"
	"unsafe"

	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/kfmt"
	"github.com/romac/dante/kernel/mm"
)

var (
	// ErrAlreadyMappedLeaf is returned by Set when the target slot already
	// holds a leaf mapping.
	ErrAlreadyMappedLeaf = &kernel.Error{Module: "vmm", Message: "page table entry already mapped as a leaf"}

	// ErrAlreadyMappedIntermediate is returned by Set when the target slot
	// already points to a lower-level table.
	ErrAlreadyMappedIntermediate = &kernel.Error{Module: "vmm", Message: "page table entry already points to a lower-level table"}

	// ErrInvalidIndex is returned by Set when the index does not select one
	// of the table's entries.
	ErrInvalidIndex = &kernel.Error{Module: "vmm", Message: "page table index out of range"}

	// tableVirtAddrFn returns the virtual address of a page table. Tests
	// replace it as host addresses do not belong to the kernel layout.
	tableVirtAddrFn = func(pt *PageTable) mm.VirtAddr {
		return mm.VirtAddr(uintptr(unsafe.Pointer(pt)))
	}
)

// PageTable is one level of the translation tree. Page tables must be
// aligned to mm.PageSize.
type PageTable [entriesPerTable]PageTableEntry

// Set installs entry at index. Indices past the last entry fail with
// ErrInvalidIndex. Entries are single-assignment: if the slot is
// already valid, Set fails with ErrAlreadyMappedLeaf or
// ErrAlreadyMappedIntermediate depending on the existing entry and leaves the
// slot untouched. Otherwise the entry is merged into the slot, preserving the
// static marker.
func (pt *PageTable) Set(index uint16, entry PageTableEntry) *kernel.Error {
	if index >= entriesPerTable {
		return ErrInvalidIndex
	}

	cur := pt[index]
	if cur.Valid() {
		if cur.IsLeaf() {
			return ErrAlreadyMappedLeaf
		}
		return ErrAlreadyMappedIntermediate
	}

	pt[index] |= entry
	return nil
}

// Entry returns the entry at index.
func (pt *PageTable) Entry(index uint16) PageTableEntry {
	return pt[index]
}

// PPN returns the physical frame that holds the table. It panics if the
// table does not live inside the kernel layout.
func (pt *PageTable) PPN() mm.Frame {
	return tableVirtAddrFn(pt).ToPhys().Frame()
}

// Static returns true if the table was reserved at link time.
func (pt *PageTable) Static() bool {
	return pt[0].Static()
}

// markStatic sets the static marker on the first slot of the table.
func (pt *PageTable) markStatic() {
	pt[0] |= PageTableEntry(pteStaticBit)
}

// ValidEntries returns the number of valid entries in the table.
func (pt *PageTable) ValidEntries() int {
	var count int
	for _, pte := range pt {
		if pte.Valid() {
			count++
		}
	}
	return count
}

// DumpTo writes one line per valid entry to w. Empty slots are skipped.
func (pt *PageTable) DumpTo(w io.Writer) {
	for index, pte := range pt {
		if !pte.Valid() {
			continue
		}

		kfmt.Fprintf(w, "[%3d] ", index)
		pte.DumpTo(w)
		kfmt.Fprintf(w, "\n")
	}
}

// staticTableCount is the number of tables reserved at link time: the root
// table, the level-2 table shared by code and stack and the level-1 table
// for the stack.
const staticTableCount = 3

const (
	rootTableIndex = iota
	highTableIndex
	stackTableIndex
)

// staticTableArena holds the statically reserved tables. Go offers no way
// to align a package-level array to mm.PageSize, so one extra page is
// reserved and the tables are carved from the first aligned offset.
var staticTableArena [(staticTableCount + 1) * mm.PageSize]byte

// staticTable returns the static table with the supplied index.
func staticTable(index int) *PageTable {
	base := uintptr(unsafe.Pointer(&staticTableArena[0]))
	off := (mm.PageSize - base&(mm.PageSize-1)) & (mm.PageSize - 1)
	return (*PageTable)(unsafe.Pointer(&staticTableArena[off+uintptr(index)*mm.PageSize]))
}
