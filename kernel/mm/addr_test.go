package mm

import (
	"fmt"
	"testing"
)

func TestAddrArithmetic(t *testing.T) {
	p := PhysAddr(0x80001000)
	if got := p.Add(0x10); got != PhysAddr(0x80001010) {
		t.Errorf("expected PhysAddr.Add to return 0x80001010; got 0x%x", got)
	}
	if got := p.Sub(0x1000); got != PhysAddr(0x80000000) {
		t.Errorf("expected PhysAddr.Sub to return 0x80000000; got 0x%x", got)
	}
	if got := p.Diff(PhysAddr(0x80000000)); got != 0x1000 {
		t.Errorf("expected PhysAddr.Diff to return 0x1000; got 0x%x", got)
	}
	if got := p.Add(0x123).PageOffset(); got != 0x123 {
		t.Errorf("expected PhysAddr.PageOffset to return 0x123; got 0x%x", got)
	}
	if got := p.Add(0x123).Frame(); got != Frame(0x80001) {
		t.Errorf("expected PhysAddr.Frame to return 0x80001; got 0x%x", got)
	}

	v := VirtAddr(0xffffffffc0002000)
	if got := v.Add(0x8); got != VirtAddr(0xffffffffc0002008) {
		t.Errorf("expected VirtAddr.Add to return 0xffffffffc0002008; got 0x%x", got)
	}
	if got := v.Sub(0x2000); got != VirtAddr(0xffffffffc0000000) {
		t.Errorf("expected VirtAddr.Sub to return 0xffffffffc0000000; got 0x%x", got)
	}
	if got := v.Diff(VirtAddr(0xffffffffc0000000)); got != 0x2000 {
		t.Errorf("expected VirtAddr.Diff to return 0x2000; got 0x%x", got)
	}

	if !PhysAddr(0x80200000).IsAligned(uintptr(2*Mb)) || PhysAddr(0x80201000).IsAligned(uintptr(2*Mb)) {
		t.Error("PhysAddr.IsAligned returned an unexpected result")
	}
	if !VirtAddr(0xffffffffc0000000).IsAligned(uintptr(Gb)) || VirtAddr(0xffffffffc0001000).IsAligned(uintptr(Gb)) {
		t.Error("VirtAddr.IsAligned returned an unexpected result")
	}
}

func TestTranslation(t *testing.T) {
	l := KernelLayout()

	specs := []struct {
		virt VirtAddr
		phys PhysAddr
	}{
		// code region
		{l.CodeVirt, l.RAMPhys},
		{l.CodeVirt + 0x1234, l.RAMPhys + 0x1234},
		{l.CodeVirt + VirtAddr(l.CodeSize-1), l.RAMPhys + PhysAddr(l.CodeSize-1)},
		// stack region
		{l.StackVirt, l.StackPhys},
		{l.StackVirt + 0x800, l.StackPhys + 0x800},
		{l.StackVirt + VirtAddr(l.StackSize-8), l.StackPhys + PhysAddr(l.StackSize-8)},
	}

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			if got := spec.virt.ToPhys(); got != spec.phys {
				t.Errorf("expected ToPhys(0x%x) to return 0x%x; got 0x%x", spec.virt, spec.phys, got)
			}

			if got := spec.phys.ToVirt(); got != spec.virt {
				t.Errorf("expected ToVirt(0x%x) to return 0x%x; got 0x%x", spec.phys, spec.virt, got)
			}
		})
	}
}

func TestTranslationRoundTrip(t *testing.T) {
	l := KernelLayout()

	regions := []struct {
		name  string
		start VirtAddr
		size  uintptr
	}{
		{"code", l.CodeVirt, l.CodeSize},
		{"stack", l.StackVirt, l.StackSize},
	}

	for _, region := range regions {
		t.Run(region.name, func(t *testing.T) {
			// Sample the region at a coarse stride plus both edges.
			stride := region.size / 257
			for off := uintptr(0); off < region.size; off += stride {
				assertRoundTrip(t, region.start.Add(off))
			}
			assertRoundTrip(t, region.start.Add(region.size-1))
		})
	}
}

func assertRoundTrip(t *testing.T, a VirtAddr) {
	t.Helper()

	phys := a.ToPhys()
	if got := phys.ToVirt().ToPhys(); got != phys {
		t.Fatalf("round-trip translation of 0x%x: expected 0x%x; got 0x%x", a, phys, got)
	}
}

func TestTranslationFailures(t *testing.T) {
	l := KernelLayout()

	virtSpecs := []VirtAddr{
		0,
		0x1000,
		l.StackVirt - 1,
		// above the stack region but below the code region
		l.StackVirt.Add(l.StackSize),
		l.PhysWindowVirt,
	}

	for specIndex, addr := range virtSpecs {
		t.Run(fmt.Sprintf("virt %d", specIndex), func(t *testing.T) {
			if _, err := addr.TryToPhys(); err != ErrAddrNotTranslatable {
				t.Fatalf("expected TryToPhys(0x%x) to fail with ErrAddrNotTranslatable; got %v", addr, err)
			}

			defer func() {
				if err := recover(); err != ErrAddrNotTranslatable {
					t.Fatalf("expected ToPhys(0x%x) to panic with ErrAddrNotTranslatable; got %v", addr, err)
				}
			}()
			_ = addr.ToPhys()
		})
	}

	physSpecs := []PhysAddr{
		0,
		0x10000000,
		l.RAMPhys - 1,
		l.RAMPhys.Add(l.CodeSize),
	}

	for specIndex, addr := range physSpecs {
		t.Run(fmt.Sprintf("phys %d", specIndex), func(t *testing.T) {
			if _, err := addr.TryToVirt(); err != ErrAddrNotTranslatable {
				t.Fatalf("expected TryToVirt(0x%x) to fail with ErrAddrNotTranslatable; got %v", addr, err)
			}

			defer func() {
				if err := recover(); err != ErrAddrNotTranslatable {
					t.Fatalf("expected ToVirt(0x%x) to panic with ErrAddrNotTranslatable; got %v", addr, err)
				}
			}()
			_ = addr.ToVirt()
		})
	}
}

func TestTranslationFollowsLayout(t *testing.T) {
	defer SetLayout(DefaultLayout)

	custom := DefaultLayout
	custom.CodeVirt = VirtAddr(0xffffffff40000000)
	custom.StackVirt = VirtAddr(0xffffffff00000000)
	SetLayout(custom)

	if got := KernelLayout(); got != custom {
		t.Fatalf("expected KernelLayout to return the layout passed to SetLayout")
	}

	if got, exp := VirtAddr(0xffffffff40000010).ToPhys(), custom.RAMPhys+0x10; got != exp {
		t.Errorf("expected 0x%x; got 0x%x", exp, got)
	}

	if _, err := DefaultLayout.CodeVirt.TryToPhys(); err != ErrAddrNotTranslatable {
		t.Errorf("expected the default code base to be rejected with a custom layout; got %v", err)
	}
}

func TestWindowVirt(t *testing.T) {
	l := KernelLayout()

	if got, err := PhysAddr(0x80000000).WindowVirt(); err != nil || got != l.PhysWindowVirt+0x80000000 {
		t.Errorf("expected WindowVirt to return 0x%x; got 0x%x, %v", l.PhysWindowVirt+0x80000000, got, err)
	}

	if _, err := PhysAddr(l.PhysWindowSize).WindowVirt(); err != ErrAddrOutsideWindow {
		t.Errorf("expected ErrAddrOutsideWindow; got %v", err)
	}
}
