// Package boot collects the information handed over by the firmware: the id
// of the boot hart and the device tree describing the machine.
package boot

import (
	"io"
	"strings"
	"unsafe"

	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/boot/fdt"
	"github.com/romac/dante/kernel/kfmt"
	"github.com/romac/dante/kernel/mm"
)

var (
	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = &kernel.Error{Module: "boot", Message: "boot info already initialized"}

	// ErrNoMemoryRegion is returned when the device tree does not describe
	// any memory.
	ErrNoMemoryRegion = &kernel.Error{Module: "boot", Message: "device tree does not describe a memory region"}

	// blobFn returns the DTB stored at the supplied physical address. It
	// is mocked by tests.
	blobFn = mapBlob

	bootInfo    Info
	initialized bool
)

// Info describes the machine the kernel was booted on. It is built once by
// Init and read-only afterwards.
type Info struct {
	hartID  uint
	dtbAddr mm.PhysAddr
	tree    fdt.Tree
	memory  mm.Region
	cmdLine map[string]string
}

// Init parses the DTB at dtbAddr and returns the boot info. It must be
// called exactly once, before translation is enabled; the DTB is read
// through the kernel code region which covers the RAM the firmware placed it
// in.
func Init(hartID uint, dtbAddr mm.PhysAddr) (*Info, *kernel.Error) {
	if initialized {
		return nil, ErrAlreadyInitialized
	}

	blob, err := blobFn(dtbAddr)
	if err != nil {
		return nil, err
	}

	bootInfo = Info{hartID: hartID, dtbAddr: dtbAddr}
	if err = bootInfo.tree.Init(blob); err != nil {
		return nil, err
	}

	if bootInfo.memory, err = firstMemoryRegion(&bootInfo.tree); err != nil {
		return nil, err
	}

	initialized = true
	return &bootInfo, nil
}

// mapBlob returns a slice covering the DTB at dtbAddr.
func mapBlob(dtbAddr mm.PhysAddr) ([]byte, *kernel.Error) {
	virt, err := dtbAddr.TryToVirt()
	if err != nil {
		return nil, err
	}

	hdr := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(virt))), fdt.HeaderSize)
	size, err := fdt.BlobSize(hdr)
	if err != nil {
		return nil, err
	}

	// The whole blob must be covered by the same mapping.
	if _, err = dtbAddr.Add(uintptr(size - 1)).TryToVirt(); err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(virt))), size), nil
}

// firstMemoryRegion returns the first region of the first memory node,
// clipped so that translating its end through the code region does not wrap
// around the address space.
func firstMemoryRegion(tree *fdt.Tree) (mm.Region, *kernel.Error) {
	var (
		region mm.Region
		found  bool
	)

	visitMemoryNodes(tree, func(node fdt.Node) bool {
		node.VisitReg(func(addr, size uint64) bool {
			region = mm.Region{Start: mm.PhysAddr(addr), Size: uintptr(size)}
			found = true
			return false
		})
		return !found
	})

	if !found {
		return mm.Region{}, ErrNoMemoryRegion
	}

	if virt, err := region.Start.TryToVirt(); err == nil {
		if maxSize := ^uintptr(0) - uintptr(virt); region.Size > maxSize {
			region.Size = maxSize
		}
	}

	return region, nil
}

// visitMemoryNodes invokes fn for every root child whose device_type is
// "memory" until fn returns false.
func visitMemoryNodes(tree *fdt.Tree, fn func(fdt.Node) bool) {
	root, err := tree.Root()
	if err != nil {
		return
	}

	root.VisitChildren(func(child fdt.Node) bool {
		if prop, ok := child.Property("device_type"); ok && prop.String() == "memory" {
			return fn(child)
		}
		return true
	})
}

// HartID returns the id of the hart the kernel was started on.
func (i *Info) HartID() uint {
	return i.hartID
}

// DTBAddr returns the physical address of the DTB.
func (i *Info) DTBAddr() mm.PhysAddr {
	return i.dtbAddr
}

// Tree returns the parsed DTB.
func (i *Info) Tree() *fdt.Tree {
	return &i.tree
}

// MemoryRegion returns the memory region available to the kernel.
func (i *Info) MemoryRegion() mm.Region {
	return i.memory
}

// VisitReservedRegions invokes fn for each region listed under
// /reserved-memory followed by each entry of the DTB memory reservation
// block. The iteration stops when fn returns false.
func (i *Info) VisitReservedRegions(fn func(mm.Region) bool) {
	more := true
	toRegion := func(addr, size uint64) bool {
		more = fn(mm.Region{Start: mm.PhysAddr(addr), Size: uintptr(size)})
		return more
	}

	if node, ok := i.tree.FindNode("/reserved-memory"); ok {
		node.VisitChildren(func(child fdt.Node) bool {
			child.VisitReg(toRegion)
			return more
		})
	}

	if more {
		i.tree.VisitMemReservations(toRegion)
	}
}

// CPUCount returns the number of CPU nodes under /cpus.
func (i *Info) CPUCount() int {
	var count int
	if node, ok := i.tree.FindNode("/cpus"); ok {
		node.VisitChildren(func(child fdt.Node) bool {
			if prop, ok := child.Property("device_type"); ok && prop.String() == "cpu" {
				count++
			}
			return true
		})
	}
	return count
}

// BootArgs returns the raw kernel command line from /chosen/bootargs.
func (i *Info) BootArgs() string {
	if node, ok := i.tree.FindNode("/chosen"); ok {
		if prop, ok := node.Property("bootargs"); ok {
			return prop.String()
		}
	}
	return ""
}

// CmdLine returns the command line key-value pairs passed to the kernel. A
// flag without a value maps to itself. This function allocates and must only
// be invoked once the Go allocator is usable.
func (i *Info) CmdLine() map[string]string {
	if i.cmdLine != nil {
		return i.cmdLine
	}

	i.cmdLine = make(map[string]string)
	for _, pair := range strings.Fields(i.BootArgs()) {
		kv := strings.Split(pair, "=")
		switch len(kv) {
		case 2: // foo=bar
			i.cmdLine[kv[0]] = kv[1]
		case 1: // nofoo
			i.cmdLine[kv[0]] = kv[0]
		}
	}

	return i.cmdLine
}

// HasCmdLineOption returns true if the command line contains key=value. It
// does not allocate and can be used before the Go allocator is available.
func (i *Info) HasCmdLineOption(key, value string) bool {
	args := i.BootArgs()
	for start := 0; start < len(args); {
		end := start
		for end < len(args) && args[end] != ' ' && args[end] != '\t' {
			end++
		}

		if pair := args[start:end]; len(pair) == len(key)+1+len(value) &&
			pair[:len(key)] == key && pair[len(key)] == '=' && pair[len(key)+1:] == value {
			return true
		}
		start = end + 1
	}
	return false
}

// DumpTo writes a summary of the machine description to w.
func (i *Info) DumpTo(w io.Writer) {
	var (
		root, _  = i.tree.Root()
		model    fdt.Property
		compat   fdt.Property
		regions  int
		reserved int
	)

	model, _ = root.Property("model")
	compat, _ = root.Property("compatible")

	visitMemoryNodes(&i.tree, func(node fdt.Node) bool {
		node.VisitReg(func(_, _ uint64) bool {
			regions++
			return true
		})
		return true
	})

	kfmt.Fprintf(w, "DeviceTree:\n")
	kfmt.Fprintf(w, "  Model:               %s\n", model.String())
	kfmt.Fprintf(w, "  Compatible with:     %s\n", compat.String())
	kfmt.Fprintf(w, "  CPUs:                %d\n", i.CPUCount())
	kfmt.Fprintf(w, "  Memory regions:      %d\n", regions)
	kfmt.Fprintf(w, "  Memory:              ")
	dumpRegion(w, i.memory)

	i.VisitReservedRegions(func(r mm.Region) bool {
		kfmt.Fprintf(w, "  Reserved memory #%d:  ", reserved)
		dumpRegion(w, r)
		reserved++
		return true
	})

	if args := i.BootArgs(); args != "" {
		kfmt.Fprintf(w, "  Boot arguments:      \"%s\"\n", args)
	}

	if node, ok := i.stdoutNode(); ok {
		kfmt.Fprintf(w, "  Stdout device:       %s\n", node.Name())
	}

	soc, hasSoC := i.tree.FindNode("/soc")
	if !hasSoC {
		kfmt.Fprintf(w, "  Has SoC?             no\n")
		return
	}

	kfmt.Fprintf(w, "  Has SoC?             yes\n")
	label := "  SoC children:        "
	soc.VisitChildren(func(child fdt.Node) bool {
		kfmt.Fprintf(w, "%s%s\n", label, child.Name())
		label = "                       "
		return true
	})
}

// stdoutNode resolves /chosen/stdout-path. Options following a ':' are
// ignored.
func (i *Info) stdoutNode() (fdt.Node, bool) {
	chosen, ok := i.tree.FindNode("/chosen")
	if !ok {
		return fdt.Node{}, false
	}

	prop, ok := chosen.Property("stdout-path")
	if !ok {
		return fdt.Node{}, false
	}

	path := prop.String()
	if sep := strings.IndexByte(path, ':'); sep >= 0 {
		path = path[:sep]
	}
	return i.tree.FindNode(path)
}

func dumpRegion(w io.Writer, r mm.Region) {
	kfmt.Fprintf(w, "0x%x - 0x%x (%d bytes)\n", uintptr(r.Start), uintptr(r.End()), r.Size)
}
