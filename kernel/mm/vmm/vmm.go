// Package vmm builds the kernel page tables and enables Sv48 translation.
package vmm

import (
	"io"

	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/cpu"
	"github.com/romac/dante/kernel/kfmt"
	"github.com/romac/dante/kernel/mm"
)

var (
	// switchPageTableFn is used by tests to override calls to
	// cpu.SwitchPageTable which will cause a fault if called in user-mode.
	switchPageTableFn = cpu.SwitchPageTable

	// ErrCodeStackSplit is raised when the code and stack regions do not
	// share a root table slot. Only one level-2 table is reserved for both.
	ErrCodeStackSplit = &kernel.Error{Module: "vmm", Message: "kernel code and stack must share the same root page table entry"}

	// ErrPhysWindowTooSmall is raised when the memory region reported by
	// the firmware extends past the physical memory window.
	ErrPhysWindowTooSmall = &kernel.Error{Module: "vmm", Message: "memory region does not fit in the physical memory window"}

	// ErrMisalignedLeaf is raised when a huge page mapping in the kernel
	// layout does not match the stride of the level that maps it.
	ErrMisalignedLeaf = &kernel.Error{Module: "vmm", Message: "huge page mapping is not aligned to its level stride"}

	// ErrAlreadyActive is raised by a second call to Init.
	ErrAlreadyActive = &kernel.Error{Module: "vmm", Message: "kernel page table is already active"}

	// kernelTranslation is populated once the kernel page table has been
	// activated.
	kernelTranslation activeTranslation
)

// TranslationState reports whether the hart runs with translation enabled.
type TranslationState uint8

const (
	// Untranslated is the state the firmware hands the hart over in.
	Untranslated TranslationState = iota

	// Translated is entered by Init and never left.
	Translated
)

// String implements fmt.Stringer.
func (s TranslationState) String() string {
	if s == Translated {
		return "translated"
	}
	return "untranslated"
}

// State returns the current translation state.
func State() TranslationState {
	if kernelTranslation.satp == 0 {
		return Untranslated
	}
	return Translated
}

// Translation describes the active kernel page table. Init is the only
// source of a Translation.
type Translation interface {
	// SATP returns the value written to the satp register.
	SATP() uint64

	// RootPPN returns the frame of the active root page table.
	RootPPN() mm.Frame

	// DumpTo writes the satp value and the valid entries of every kernel
	// page table to w.
	DumpTo(w io.Writer)
}

// activeTranslation implements Translation for the page table installed by
// Init.
type activeTranslation struct {
	satp uint64
}

func (t *activeTranslation) SATP() uint64 {
	return t.satp
}

func (t *activeTranslation) RootPPN() mm.Frame {
	return mm.Frame(t.satp & (1<<44 - 1))
}

func (t *activeTranslation) DumpTo(w io.Writer) {
	root := kernelPageTable.Lock()
	defer kernelPageTable.Unlock()

	kfmt.Fprintf(w, "satp: 0x%16x (mode %d, root ppn 0x%x)\n", t.satp, t.satp>>satpModeShift, uint64(t.RootPPN()))

	pw := kfmt.PrefixWriter{Sink: w, Prefix: []byte("  ")}
	kfmt.Fprintf(w, "root (level 3):\n")
	root.DumpTo(&pw)
	kfmt.Fprintf(w, "code/stack (level 2):\n")
	highTable().DumpTo(&pw)
	kfmt.Fprintf(w, "stack (level 1):\n")
	stackTable().DumpTo(&pw)
}

// Init builds the kernel page tables and activates them. The resulting
// address space maps:
//   - the kernel code region with a level-2 read/write/execute leaf starting
//     at the RAM base
//   - the kernel stack region with a level-1 read/write leaf starting at the
//     stack backing
//   - the physical memory window with a root-level read/write leaf starting
//     at physical address zero
//
// region is the memory region reported by the firmware and must fit inside
// the physical memory window. Init runs exactly once; any violated layout
// assumption or mapping conflict is unrecoverable and causes a panic before
// satp is written.
func Init(region mm.Region) Translation {
	if State() == Translated {
		panic(ErrAlreadyActive)
	}

	layout := mm.KernelLayout()
	if err := checkLayout(layout, region); err != nil {
		panic(err)
	}

	root := kernelPageTable.Lock()
	defer kernelPageTable.Unlock()

	if err := mapKernel(root, layout); err != nil {
		panic(err)
	}

	satp := satpModeSv48<<satpModeShift | uint64(root.PPN())
	switchPageTableFn(satp)
	kernelTranslation.satp = satp

	kfmt.Printf("[vmm] translation enabled (satp=0x%16x)\n", satp)
	return &kernelTranslation
}

// checkLayout validates the assumptions that mapKernel relies on.
func checkLayout(layout mm.Layout, region mm.Region) *kernel.Error {
	if VPN(layout.CodeVirt, 3) != VPN(layout.StackVirt, 3) {
		return ErrCodeStackSplit
	}

	leaves := []struct {
		virt  mm.VirtAddr
		phys  mm.PhysAddr
		size  uintptr
		level uint8
	}{
		{layout.CodeVirt, layout.RAMPhys, layout.CodeSize, 2},
		{layout.StackVirt, layout.StackPhys, layout.StackSize, 1},
		{layout.PhysWindowVirt, 0, layout.PhysWindowSize, 3},
	}
	for _, leaf := range leaves {
		stride := levelStride(leaf.level)
		if leaf.size != stride || !leaf.virt.IsAligned(stride) || !leaf.phys.IsAligned(stride) {
			return ErrMisalignedLeaf
		}
	}

	if region.End() < region.Start || uintptr(region.End()) > layout.PhysWindowSize {
		return ErrPhysWindowTooSmall
	}

	return nil
}

// mapKernel populates the static tables. The caller must hold the root
// table guard.
func mapKernel(root *RootPageTable, layout mm.Layout) *kernel.Error {
	high, stack := highTable(), stackTable()
	root.markStatic()
	high.markStatic()
	stack.markStatic()

	steps := []struct {
		table *PageTable
		index uint16
		entry PageTableEntry
	}{
		{&root.PageTable, VPN(layout.CodeVirt, 3), NewPageTableEntry(high.PPN(), FlagValid)},
		{&root.PageTable, VPN(layout.PhysWindowVirt, 3), NewPageTableEntry(0, FlagRead|FlagWrite)},
		{high, VPN(layout.CodeVirt, 2), NewPageTableEntry(layout.RAMPhys.Frame(), FlagRead|FlagWrite|FlagExecute)},
		{high, VPN(layout.StackVirt, 2), NewPageTableEntry(stack.PPN(), FlagValid)},
		{stack, VPN(layout.StackVirt, 1), NewPageTableEntry(layout.StackPhys.Frame(), FlagRead|FlagWrite)},
	}

	for _, step := range steps {
		if err := step.table.Set(step.index, step.entry); err != nil {
			return err
		}
	}

	return nil
}
