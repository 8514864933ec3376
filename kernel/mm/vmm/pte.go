package vmm

import (
	"io"

	"github.com/romac/dante/kernel/kfmt"
	"github.com/romac/dante/kernel/mm"
)

// PageTableEntryFlag is one of the permission or status bits stored in the
// low byte of a page table entry.
type PageTableEntryFlag uint8

const (
	// FlagValid marks the entry as present. An entry without it is empty
	// regardless of its other bits.
	FlagValid PageTableEntryFlag = 1 << iota

	// FlagRead allows loads from the mapped range.
	FlagRead

	// FlagWrite allows stores to the mapped range.
	FlagWrite

	// FlagExecute allows instruction fetches from the mapped range.
	FlagExecute

	// FlagUser makes the mapped range accessible from U-mode.
	FlagUser

	// FlagGlobal marks the mapping as present in every address space.
	FlagGlobal

	// FlagAccessed is set when the mapped range has been read, written or
	// fetched.
	FlagAccessed

	// FlagDirty is set when the mapped range has been written.
	FlagDirty
)

// leafFlags is the set of flags whose presence turns an entry into a leaf.
const leafFlags = FlagRead | FlagWrite | FlagExecute

const (
	ptePPNShift  = 10
	pteStaticBit = uint64(1) << 9
	pteDataBit   = uint64(1) << 8
	pteFlagMask  = uint64(0xff)
)

var flagNames = [8]string{"V", "R", "W", "X", "U", "G", "A", "D"}

// PageTableEntry is a single Sv48 translation entry.
//
//	63            10   9        8      7:0
//	+---------------+--------+------+-------+
//	|      PPN      | static | data | flags |
//	+---------------+--------+------+-------+
//
// The static marker tags tables that were reserved at link time so that
// they are never handed back to an allocator.
type PageTableEntry uint64

// NewPageTableEntry returns a valid entry pointing at frame.
func NewPageTableEntry(frame mm.Frame, flags PageTableEntryFlag) PageTableEntry {
	return NewDataPageTableEntry(frame, false, flags)
}

// NewDataPageTableEntry returns a valid entry pointing at frame with the data
// marker set to data. FlagValid is always set, whether or not flags contains
// it.
func NewDataPageTableEntry(frame mm.Frame, data bool, flags PageTableEntryFlag) PageTableEntry {
	pte := uint64(frame)<<ptePPNShift | uint64(flags|FlagValid)
	if data {
		pte |= pteDataBit
	}
	return PageTableEntry(pte)
}

// PPN returns the physical page number stored in the entry.
func (pte PageTableEntry) PPN() uint64 {
	return uint64(pte) >> ptePPNShift
}

// Frame returns the physical frame the entry points to.
func (pte PageTableEntry) Frame() mm.Frame {
	return mm.Frame(pte.PPN())
}

// Data returns the data marker.
func (pte PageTableEntry) Data() bool {
	return uint64(pte)&pteDataBit != 0
}

// Static returns the static marker.
func (pte PageTableEntry) Static() bool {
	return uint64(pte)&pteStaticBit != 0
}

// Flags returns the flag byte.
func (pte PageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint64(pte) & pteFlagMask)
}

// Valid returns true if FlagValid is set.
func (pte PageTableEntry) Valid() bool {
	return pte.HasFlags(FlagValid)
}

// IsLeaf returns true if the entry terminates the table walk, i.e. if any of
// the read, write or execute flags is set. Entries that are valid but not
// leaves point to the next table level.
func (pte PageTableEntry) IsLeaf() bool {
	return pte.HasAnyFlag(leafFlags)
}

// HasFlags returns true if all of the supplied flags are set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return pte.Flags()&flags == flags
}

// HasAnyFlag returns true if at least one of the supplied flags is set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return pte.Flags()&flags != 0
}

// DumpTo writes a single-line description of the entry to w.
func (pte PageTableEntry) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "ppn=0x%16x data=%t flags=", pte.PPN(), pte.Data())
	flags := pte.Flags()
	sep := ""
	for bit := 0; bit < len(flagNames); bit++ {
		if flags&(1<<bit) == 0 {
			continue
		}
		kfmt.Fprintf(w, "%s%s", sep, flagNames[bit])
		sep = "|"
	}
}
