package main

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/google/btree"
	"github.com/romac/dante/kernel/boot/fdt"
	"github.com/romac/dante/kernel/mm"
)

// layoutConfig overrides the physical placement of the kernel. Keys missing
// from the file keep the values of mm.DefaultLayout.
type layoutConfig struct {
	RAMPhys        uint64 `toml:"ram_phys"`
	ImageSize      uint64 `toml:"image_size"`
	StackPhys      uint64 `toml:"stack_phys"`
	StackSize      uint64 `toml:"stack_size"`
	PhysWindowSize uint64 `toml:"phys_window_size"`
}

// loadLayout returns mm.DefaultLayout with the overrides stored in the TOML
// file at path applied. An empty path returns mm.DefaultLayout.
func loadLayout(path string) (mm.Layout, error) {
	l := mm.DefaultLayout
	if path == "" {
		return l, nil
	}

	c := layoutConfig{
		RAMPhys:        uint64(l.RAMPhys),
		ImageSize:      uint64(l.ImageSize),
		StackPhys:      uint64(l.StackPhys),
		StackSize:      uint64(l.StackSize),
		PhysWindowSize: uint64(l.PhysWindowSize),
	}
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return l, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return l, fmt.Errorf("%s: unknown layout key %q", path, undecoded[0].String())
	}

	l.RAMPhys = mm.PhysAddr(c.RAMPhys)
	l.ImageSize = uintptr(c.ImageSize)
	l.StackPhys = mm.PhysAddr(c.StackPhys)
	l.StackSize = uintptr(c.StackSize)
	l.PhysWindowSize = uintptr(c.PhysWindowSize)
	return l, nil
}

// lessRegion orders regions by start address, then size and name.
func lessRegion(a, b namedRegion) bool {
	switch {
	case a.Start != b.Start:
		return a.Start < b.Start
	case a.Size != b.Size:
		return a.Size < b.Size
	default:
		return a.name < b.name
	}
}

// check verifies that a kernel built with layout can boot on the machine
// described by tree. It prints the resulting physical memory map ordered by
// address and returns the number of problems found.
func check(w io.Writer, tree *fdt.Tree, layout mm.Layout) (int, error) {
	memory, err := memoryRegions(tree)
	if err != nil {
		return 0, err
	}
	if len(memory) == 0 {
		return 0, fmt.Errorf("device tree does not describe a memory region")
	}
	reserved, err := reservedRegions(tree)
	if err != nil {
		return 0, err
	}

	var (
		problems     int
		ram          = memory[0]
		image        = namedRegion{Region: layout.ImageRegion(), name: "kernel image"}
		stack        = namedRegion{Region: layout.StackRegion(), name: "kernel stack"}
		reservations = btree.NewG[namedRegion](4, lessRegion)
		memoryMap    = btree.NewG[namedRegion](4, lessRegion)
	)

	problem := func(format string, args ...any) {
		problems++
		fmt.Fprintf(w, "problem:   "+format+"\n", args...)
	}

	for _, r := range reserved {
		reservations.ReplaceOrInsert(r)
		memoryMap.ReplaceOrInsert(r)
	}
	for _, r := range memory {
		memoryMap.ReplaceOrInsert(r)
	}
	memoryMap.ReplaceOrInsert(image)
	memoryMap.ReplaceOrInsert(stack)

	memoryMap.Ascend(func(r namedRegion) bool {
		fmt.Fprintf(w, "%-24s %s\n", r.name+":", r.String())
		return true
	})

	for _, r := range []namedRegion{image, stack} {
		if r.Start < ram.Start || r.End() > ram.End() {
			problem("%s %s lies outside memory %s", r.name, r.String(), ram.String())
		}
	}

	if uint64(ram.End()) > uint64(layout.PhysWindowSize) {
		problem("memory ends at 0x%x past the physical window size 0x%x", uintptr(ram.End()), layout.PhysWindowSize)
	}

	reservations.Ascend(func(r namedRegion) bool {
		if r.Overlaps(stack.Region) {
			problem("reservation %s %s overlaps the kernel stack", r.name, r.String())
		}
		return true
	})

	fmt.Fprintf(w, "problems:  %d\n", problems)
	return problems, nil
}
