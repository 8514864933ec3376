package pmm

import (
	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/kfmt"
	"github.com/romac/dante/kernel/mm"
)

// maxReservedRegions bounds the number of reserved regions tracked by the
// boot memory allocator.
const maxReservedRegions = 16

var (
	errBootAllocOutOfMemory   = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
	errTooManyReservedRegions = &kernel.Error{Module: "boot_mem_alloc", Message: "too many reserved memory regions"}
)

// reservation is a physical range that must never be handed out.
type reservation struct {
	region mm.Region
	label  string
}

// BootMemAllocator implements a rudimentary physical memory allocator which
// is used to bootstrap the kernel.
//
// The allocator hands out the frames of the memory region reported by the
// firmware in ascending order, skipping any frame that overlaps a reserved
// region (the kernel image, the stack backing and the regions reserved by
// the device tree). Allocations are tracked via the last allocated frame, so
// allocated frames cannot be freed.
type BootMemAllocator struct {
	region mm.Region

	reserved      [maxReservedRegions]reservation
	reservedCount int

	// startFrame and endFrame delimit the page-aligned part of region;
	// endFrame is exclusive.
	startFrame, endFrame mm.Frame

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame.
	lastAllocFrame mm.Frame
}

// init resets the allocator to hand out frames from region.
func (alloc *BootMemAllocator) init(region mm.Region) {
	*alloc = BootMemAllocator{region: region}

	// Round the start up and the end down to a frame boundary.
	alloc.startFrame = region.Start.Add(mm.PageSize - 1).Frame()
	alloc.endFrame = region.End().Frame()
	if alloc.endFrame < alloc.startFrame {
		alloc.endFrame = alloc.startFrame
	}
}

// reserve excludes r from allocation.
func (alloc *BootMemAllocator) reserve(r mm.Region, label string) *kernel.Error {
	if r.Size == 0 {
		return nil
	}

	if alloc.reservedCount == maxReservedRegions {
		return errTooManyReservedRegions
	}

	alloc.reserved[alloc.reservedCount] = reservation{region: r, label: label}
	alloc.reservedCount++
	return nil
}

// nextFree returns the first frame >= frame that does not overlap a reserved
// region, or endFrame if there is none.
func (alloc *BootMemAllocator) nextFree(frame mm.Frame) mm.Frame {
	for frame < alloc.endFrame {
		moved := false
		for i := 0; i < alloc.reservedCount; i++ {
			r := alloc.reserved[i].region
			page := mm.Region{Start: frame.Address(), Size: mm.PageSize}
			if page.Overlaps(r) {
				// Skip to the first frame past the reservation.
				frame = r.End().Add(mm.PageSize - 1).Frame()
				moved = true
			}
		}

		if !moved {
			return frame
		}
	}

	return alloc.endFrame
}

// AllocFrame reserves the next available free frame. It returns an error if
// no more memory can be allocated.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	candidate := alloc.startFrame
	if alloc.allocCount != 0 {
		candidate = alloc.lastAllocFrame + 1
	}

	if candidate = alloc.nextFree(candidate); candidate >= alloc.endFrame {
		return mm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocFrame = candidate
	return candidate, nil
}

// FreeFrames returns the number of frames that can still be allocated.
func (alloc *BootMemAllocator) FreeFrames() uint64 {
	frame := alloc.startFrame
	if alloc.allocCount != 0 {
		frame = alloc.lastAllocFrame + 1
	}

	var count uint64
	for frame = alloc.nextFree(frame); frame < alloc.endFrame; frame = alloc.nextFree(frame + 1) {
		count++
	}
	return count
}

// printMemoryMap prints the memory region and the reservations carved out
// of it.
func (alloc *BootMemAllocator) printMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	printRegion(alloc.region, "available")
	for i := 0; i < alloc.reservedCount; i++ {
		printRegion(alloc.reserved[i].region, alloc.reserved[i].label)
	}

	free := alloc.FreeFrames() * uint64(mm.PageSize)
	kfmt.Printf("[boot_mem_alloc] free memory: %dKb\n", free/uint64(mm.Kb))
}

func printRegion(r mm.Region, label string) {
	kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", uintptr(r.Start), uintptr(r.End()), r.Size, label)
}
