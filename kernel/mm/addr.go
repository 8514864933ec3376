package mm

import "github.com/romac/dante/kernel"

var (
	// ErrAddrNotTranslatable is raised when an address falls outside
	// every region covered by the kernel layout.
	ErrAddrNotTranslatable = &kernel.Error{Module: "mm", Message: "address is outside the kernel code and stack regions"}

	// ErrAddrOutsideWindow is returned when a physical address cannot be
	// reached through the physical memory window.
	ErrAddrOutsideWindow = &kernel.Error{Module: "mm", Message: "physical address is outside the physical memory window"}
)

// PhysAddr is an address in physical memory. A PhysAddr must never be
// dereferenced directly; it has to be converted to a VirtAddr first or used as
// a frame number in a page table entry.
type PhysAddr uintptr

// Add returns the address off bytes after a.
func (a PhysAddr) Add(off uintptr) PhysAddr { return a + PhysAddr(off) }

// Sub returns the address off bytes before a.
func (a PhysAddr) Sub(off uintptr) PhysAddr { return a - PhysAddr(off) }

// Diff returns the distance in bytes between a and b. The caller must ensure
// that a >= b.
func (a PhysAddr) Diff(b PhysAddr) uintptr { return uintptr(a - b) }

// Frame returns the frame that contains this address.
func (a PhysAddr) Frame() Frame { return Frame(uintptr(a) >> PageShift) }

// PageOffset returns the offset of the address within its frame.
func (a PhysAddr) PageOffset() uintptr { return uintptr(a) & (PageSize - 1) }

// IsAligned returns true if the address is a multiple of align, which must be
// a power of two.
func (a PhysAddr) IsAligned(align uintptr) bool { return uintptr(a)&(align-1) == 0 }

// ToVirt translates a to the virtual address that the kernel uses to access
// it. ToVirt panics with ErrAddrNotTranslatable if a is not backed by the
// kernel code or stack regions.
func (a PhysAddr) ToVirt() VirtAddr {
	v, err := a.TryToVirt()
	if err != nil {
		panic(err)
	}
	return v
}

// TryToVirt behaves like ToVirt but returns an error instead of panicking.
//
// The stack backing lives inside the RAM covered by the code region, so the
// narrower stack range is matched first.
func (a PhysAddr) TryToVirt() (VirtAddr, *kernel.Error) {
	l := &kernelLayout
	switch {
	case a >= l.StackPhys && a.Diff(l.StackPhys) < l.StackSize:
		return l.StackVirt.Add(a.Diff(l.StackPhys)), nil
	case a >= l.RAMPhys && a.Diff(l.RAMPhys) < l.CodeSize:
		return l.CodeVirt.Add(a.Diff(l.RAMPhys)), nil
	}

	return 0, ErrAddrNotTranslatable
}

// WindowVirt returns the address through which a can be accessed using the
// physical memory window. The window only becomes usable after the kernel
// page table has been activated.
func (a PhysAddr) WindowVirt() (VirtAddr, *kernel.Error) {
	l := &kernelLayout
	if uintptr(a) >= l.PhysWindowSize {
		return 0, ErrAddrOutsideWindow
	}

	return l.PhysWindowVirt.Add(uintptr(a)), nil
}

// VirtAddr is an address in the active address space. Before translation is
// enabled a VirtAddr is only meaningful as a link-time symbol address.
type VirtAddr uintptr

// Add returns the address off bytes after a.
func (a VirtAddr) Add(off uintptr) VirtAddr { return a + VirtAddr(off) }

// Sub returns the address off bytes before a.
func (a VirtAddr) Sub(off uintptr) VirtAddr { return a - VirtAddr(off) }

// Diff returns the distance in bytes between a and b. The caller must ensure
// that a >= b.
func (a VirtAddr) Diff(b VirtAddr) uintptr { return uintptr(a - b) }

// PageOffset returns the offset of the address within its page.
func (a VirtAddr) PageOffset() uintptr { return uintptr(a) & (PageSize - 1) }

// IsAligned returns true if the address is a multiple of align, which must be
// a power of two.
func (a VirtAddr) IsAligned(align uintptr) bool { return uintptr(a)&(align-1) == 0 }

// ToPhys translates a to the physical address backing it. ToPhys panics with
// ErrAddrNotTranslatable if a is not part of the kernel code or stack
// regions.
func (a VirtAddr) ToPhys() PhysAddr {
	p, err := a.TryToPhys()
	if err != nil {
		panic(err)
	}
	return p
}

// TryToPhys behaves like ToPhys but returns an error instead of panicking.
func (a VirtAddr) TryToPhys() (PhysAddr, *kernel.Error) {
	l := &kernelLayout
	switch {
	case a >= l.CodeVirt && a.Diff(l.CodeVirt) < l.CodeSize:
		return l.RAMPhys.Add(a.Diff(l.CodeVirt)), nil
	case a >= l.StackVirt && a.Diff(l.StackVirt) < l.StackSize:
		return l.StackPhys.Add(a.Diff(l.StackVirt)), nil
	}

	return 0, ErrAddrNotTranslatable
}
