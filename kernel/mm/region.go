package mm

import "strconv"

// Region is a contiguous range of physical memory.
type Region struct {
	Start PhysAddr
	Size  uintptr
}

// End returns the first address past the region.
func (r Region) End() PhysAddr {
	return r.Start.Add(r.Size)
}

// Contains returns true if addr lies inside the region.
func (r Region) Contains(addr PhysAddr) bool {
	return addr >= r.Start && addr.Diff(r.Start) < r.Size
}

// Overlaps returns true if the two regions share at least one byte.
func (r Region) Overlaps(other Region) bool {
	if r.Size == 0 || other.Size == 0 {
		return false
	}
	return r.Start < other.End() && other.Start < r.End()
}

// String returns the region formatted as "0xstart - 0xend (size bytes)".
func (r Region) String() string {
	var buf [64]byte

	out := append(buf[:0], "0x"...)
	out = strconv.AppendUint(out, uint64(r.Start), 16)
	out = append(out, " - 0x"...)
	out = strconv.AppendUint(out, uint64(r.End()), 16)
	out = append(out, " ("...)
	out = strconv.AppendUint(out, uint64(r.Size), 10)
	out = append(out, " bytes)"...)

	return string(out)
}
