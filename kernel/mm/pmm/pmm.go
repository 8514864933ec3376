// Package pmm hands the memory region discovered at boot over to a physical
// frame allocator.
package pmm

import (
	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/mm"
)

var (
	// bootMemAllocator is the frame allocator used once translation is
	// enabled. A general purpose allocator is not part of the kernel yet.
	bootMemAllocator BootMemAllocator
)

// Init sets up the boot memory allocator over region and registers it with
// mm.SetFrameAllocator. The kernel image, the stack backing and any region in
// reserved are never handed out.
func Init(region mm.Region, reserved ...mm.Region) *kernel.Error {
	layout := mm.KernelLayout()

	bootMemAllocator.init(region)
	if err := bootMemAllocator.reserve(layout.ImageRegion(), "kernel image"); err != nil {
		return err
	}
	if err := bootMemAllocator.reserve(layout.StackRegion(), "kernel stack"); err != nil {
		return err
	}
	for _, r := range reserved {
		if err := bootMemAllocator.reserve(r, "reserved"); err != nil {
			return err
		}
	}

	bootMemAllocator.printMemoryMap()
	mm.SetFrameAllocator(earlyAllocFrame)
	return nil
}

func earlyAllocFrame() (mm.Frame, *kernel.Error) {
	return bootMemAllocator.AllocFrame()
}
