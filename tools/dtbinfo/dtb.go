package main

import (
	"fmt"
	"io"
	"os"

	"github.com/romac/dante/kernel/boot/fdt"
	"github.com/romac/dante/kernel/mm"
	"golang.org/x/sys/unix"
)

// blobFile is a DTB mapped read-only into memory. The tree and every string
// obtained from it are only valid until Close is called.
type blobFile struct {
	data []byte
	tree fdt.Tree
}

// openBlob maps the DTB stored at path and parses it.
func openBlob(path string) (*blobFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() < fdt.HeaderSize {
		return nil, fmt.Errorf("%s: file too small to hold a device tree", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%s: mmap: %w", path, err)
	}

	b := &blobFile{data: data}
	if kerr := b.tree.Init(data); kerr != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("%s: %w", path, kerr)
	}
	return b, nil
}

// Close unmaps the blob.
func (b *blobFile) Close() error {
	return unix.Munmap(b.data)
}

// namedRegion is a region of physical memory together with the name of the
// node describing it.
type namedRegion struct {
	mm.Region
	name string
}

// memoryRegions returns the regions of every root child whose device_type
// is "memory".
func memoryRegions(tree *fdt.Tree) ([]namedRegion, error) {
	root, kerr := tree.Root()
	if kerr != nil {
		return nil, kerr
	}

	var (
		regions []namedRegion
		regErr  error
	)
	kerr = root.VisitChildren(func(child fdt.Node) bool {
		if prop, ok := child.Property("device_type"); !ok || prop.String() != "memory" {
			return true
		}
		regions, regErr = appendReg(regions, child)
		return regErr == nil
	})
	if kerr != nil {
		return nil, kerr
	}
	return regions, regErr
}

// reservedRegions returns the children of /reserved-memory followed by the
// entries of the memory reservation block.
func reservedRegions(tree *fdt.Tree) ([]namedRegion, error) {
	var (
		regions []namedRegion
		regErr  error
	)
	if node, ok := tree.FindNode("/reserved-memory"); ok {
		if kerr := node.VisitChildren(func(child fdt.Node) bool {
			regions, regErr = appendReg(regions, child)
			return regErr == nil
		}); kerr != nil {
			return nil, kerr
		}
		if regErr != nil {
			return nil, regErr
		}
	}

	if kerr := tree.VisitMemReservations(func(addr, size uint64) bool {
		regions = append(regions, newRegion(addr, size, "memreserve"))
		return true
	}); kerr != nil {
		return nil, kerr
	}
	return regions, nil
}

func appendReg(regions []namedRegion, node fdt.Node) ([]namedRegion, error) {
	if kerr := node.VisitReg(func(addr, size uint64) bool {
		regions = append(regions, newRegion(addr, size, node.Name()))
		return true
	}); kerr != nil {
		return regions, fmt.Errorf("%s: %w", node.Name(), kerr)
	}
	return regions, nil
}

func newRegion(addr, size uint64, name string) namedRegion {
	return namedRegion{Region: mm.Region{Start: mm.PhysAddr(addr), Size: uintptr(size)}, name: name}
}

// summarize prints the parts of the tree the kernel consumes at boot.
func summarize(w io.Writer, tree *fdt.Tree) error {
	root, kerr := tree.Root()
	if kerr != nil {
		return kerr
	}

	if prop, ok := root.Property("model"); ok {
		fmt.Fprintf(w, "model:     %s\n", prop.String())
	}

	memory, err := memoryRegions(tree)
	if err != nil {
		return err
	}
	for _, r := range memory {
		fmt.Fprintf(w, "memory:    %s\n", r.String())
	}

	reserved, err := reservedRegions(tree)
	if err != nil {
		return err
	}
	for _, r := range reserved {
		fmt.Fprintf(w, "reserved:  %s [%s]\n", r.String(), r.name)
	}

	var cpus int
	if node, ok := tree.FindNode("/cpus"); ok {
		if kerr = node.VisitChildren(func(child fdt.Node) bool {
			if prop, ok := child.Property("device_type"); ok && prop.String() == "cpu" {
				cpus++
			}
			return true
		}); kerr != nil {
			return kerr
		}
	}
	fmt.Fprintf(w, "cpus:      %d\n", cpus)

	if node, ok := tree.FindNode("/chosen"); ok {
		if prop, ok := node.Property("bootargs"); ok {
			fmt.Fprintf(w, "bootargs:  %q\n", prop.String())
		}
	}

	return nil
}
