package mm

// Layout describes where the kernel image, its stack and the physical memory
// window live. The values must agree with the linker script: CodeVirt and
// StackVirt are the link-time addresses of the code and stack sections.
type Layout struct {
	// CodeVirt is the link-time virtual start of the kernel code and data.
	CodeVirt VirtAddr

	// CodeSize is the number of bytes covered by the code mapping. The
	// mapping is a single level-2 leaf so this is always 1 GiB.
	CodeSize uintptr

	// StackVirt is the link-time virtual start of the kernel stack.
	StackVirt VirtAddr

	// StackSize is the number of bytes covered by the stack mapping (a
	// single level-1 leaf).
	StackSize uintptr

	// RAMPhys is the physical RAM base where the firmware loads the kernel.
	RAMPhys PhysAddr

	// ImageSize is the number of bytes past RAMPhys reserved for the
	// kernel image.
	ImageSize uintptr

	// StackPhys is the physical base of the memory backing the stack.
	StackPhys PhysAddr

	// PhysWindowVirt is the virtual base of the window that maps physical
	// address zero and onwards.
	PhysWindowVirt VirtAddr

	// PhysWindowSize is the size of the physical memory window (a single
	// root-level leaf).
	PhysWindowSize uintptr
}

// DefaultLayout is the layout of a kernel image built for the QEMU virt
// machine with the Sv48 paging mode.
var DefaultLayout = Layout{
	CodeVirt:       VirtAddr(0xffffffffc0000000),
	CodeSize:       uintptr(1 * Gb),
	StackVirt:      VirtAddr(0xffffffff80000000),
	StackSize:      uintptr(2 * Mb),
	RAMPhys:        PhysAddr(0x80000000),
	ImageSize:      uintptr(32 * Mb),
	StackPhys:      PhysAddr(0x80000000 + 32*Mb + 16*Mb),
	PhysWindowVirt: VirtAddr(0xffff800000000000),
	PhysWindowSize: uintptr(512 * Gb),
}

var (
	// kernelLayout is the layout used by address translation.
	kernelLayout = DefaultLayout
)

// KernelLayout returns the active kernel layout.
func KernelLayout() Layout {
	return kernelLayout
}

// SetLayout replaces the active kernel layout. It is intended to be called by
// tests; the kernel always runs with DefaultLayout.
func SetLayout(l Layout) {
	kernelLayout = l
}

// ImageRegion returns the physical region reserved for the kernel image.
func (l Layout) ImageRegion() Region {
	return Region{Start: l.RAMPhys, Size: l.ImageSize}
}

// StackRegion returns the physical region backing the kernel stack.
func (l Layout) StackRegion() Region {
	return Region{Start: l.StackPhys, Size: l.StackSize}
}
