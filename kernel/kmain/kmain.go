package kmain

import (
	"io"

	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/boot"
	"github.com/romac/dante/kernel/cpu"
	"github.com/romac/dante/kernel/kfmt"
	"github.com/romac/dante/kernel/mm"
	"github.com/romac/dante/kernel/mm/pmm"
	"github.com/romac/dante/kernel/mm/vmm"
	"github.com/romac/dante/kernel/sbi"
)

// maxReservedRegions is the number of reserved regions forwarded to the
// frame allocator.
const maxReservedRegions = 8

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	sbiConsole sbi.DebugConsole

	// consoleSink receives all kernel output. It is mocked by tests.
	consoleSink io.Writer = &sbiConsole

	// The following functions are mocked by tests.
	bootInitFn = boot.Init
	vmmInitFn  = vmm.Init
	pmmInitFn  = pmm.Init
	parkFn     = park
	panicFn    = kfmt.Panic
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code sets up a stack inside the kernel image
// and jumps here with the registers handed over by the firmware: the id of
// the boot hart in a0 and the physical address of the DTB in a1.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// hart.
//
//go:noinline
func Kmain(hartID, dtbPhysAddr uintptr) {
	kfmt.SetOutputSink(consoleSink)
	kfmt.Printf("[kmain] booting on hart %d, dtb @ 0x%x\n", hartID, dtbPhysAddr)

	info, err := bootInitFn(uint(hartID), mm.PhysAddr(dtbPhysAddr))
	if err != nil {
		panic(err)
	}

	if info.HasCmdLineOption("dtb", "dump") {
		info.DumpTo(consoleSink)
		if err = info.Tree().DumpTo(consoleSink); err != nil {
			panic(err)
		}
	}

	region := info.MemoryRegion()
	kfmt.Printf("[kmain] memory region: 0x%x - 0x%x\n", uintptr(region.Start), uintptr(region.End()))

	tr := vmmInitFn(region)
	if info.HasCmdLineOption("vmm", "dump") {
		tr.DumpTo(consoleSink)
	}

	var (
		reserved      [maxReservedRegions]mm.Region
		reservedCount int
	)
	info.VisitReservedRegions(func(r mm.Region) bool {
		if reservedCount == len(reserved) {
			kfmt.Printf("[kmain] ignoring reserved region 0x%x - 0x%x\n", uintptr(r.Start), uintptr(r.End()))
			return true
		}
		reserved[reservedCount] = r
		reservedCount++
		return true
	})

	if err = pmmInitFn(region, reserved[:reservedCount]...); err != nil {
		panic(err)
	}

	parkFn()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// park idles the hart until the next reset.
func park() {
	kfmt.Printf("[kmain] boot complete, parking hart\n")
	for {
		cpu.WaitForInterrupt()
	}
}
