package vmm

import "github.com/romac/dante/kernel/mm"

const (
	// pageLevels is the number of page table levels used by Sv48.
	pageLevels = 4

	// pageLevelBits is the number of virtual address bits that index a
	// single table level.
	pageLevelBits = 9

	// entriesPerTable is the number of entries in each page table.
	entriesPerTable = 1 << pageLevelBits

	// satpModeSv48 selects 4-level translation when written to bits 63:60
	// of the satp register.
	satpModeSv48  = uint64(9)
	satpModeShift = 60
)

// pageLevelShift returns the shift that moves the virtual page number for
// level into the low bits of an address. Level 0 indexes the table that maps
// 4 KiB pages, level 3 the root table.
func pageLevelShift(level uint8) uint8 {
	return uint8(mm.PageShift) + pageLevelBits*level
}

// levelStride returns the number of bytes mapped by a single leaf entry at
// the supplied level.
func levelStride(level uint8) uintptr {
	return uintptr(1) << pageLevelShift(level)
}

// VPN returns the index into the level table that translates addr.
func VPN(addr mm.VirtAddr, level uint8) uint16 {
	return uint16((uintptr(addr) >> pageLevelShift(level)) & (entriesPerTable - 1))
}
