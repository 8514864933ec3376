package fdt

import "github.com/romac/dante/kernel"

// Node is a device tree node.
type Node struct {
	tree *Tree
	name string

	// body is the structure block offset of the first token after the
	// node's BEGIN_NODE token.
	body int

	// addressCells and sizeCells are the cell counts that the parent
	// node declares for the reg property of its children.
	addressCells uint32
	sizeCells    uint32
}

// Name returns the node name including the unit address.
func (n Node) Name() string {
	return n.name
}

// VisitProperties invokes fn for each property of the node until fn returns
// false.
func (n Node) VisitProperties(fn func(Property) bool) *kernel.Error {
	for off := n.body; ; {
		tok, err := n.tree.token(off)
		if err != nil {
			return err
		}
		off = tok.next

		switch tok.kind {
		case tokenNop:
		case tokenProp:
			if !fn(Property{Name: tok.name, Value: tok.value}) {
				return nil
			}
		case tokenBeginNode, tokenEndNode:
			// Properties always precede child nodes.
			return nil
		default:
			return ErrBadStructure
		}
	}
}

// Property returns the property with the supplied name.
func (n Node) Property(name string) (Property, bool) {
	var (
		prop  Property
		found bool
	)

	n.VisitProperties(func(p Property) bool {
		if p.Name == name {
			prop, found = p, true
			return false
		}
		return true
	})

	return prop, found
}

// cells returns the value of the #address-cells or #size-cells property of
// the node, or def if the node does not define it.
func (n Node) cells(name string, def uint32) uint32 {
	if prop, ok := n.Property(name); ok {
		if v, ok := prop.Uint32(); ok {
			return v
		}
	}
	return def
}

// VisitChildren invokes fn for each direct child of the node until fn
// returns false.
func (n Node) VisitChildren(fn func(Node) bool) *kernel.Error {
	var (
		addressCells = n.cells("#address-cells", 2)
		sizeCells    = n.cells("#size-cells", 1)
		depth        int
	)

	for off := n.body; ; {
		tok, err := n.tree.token(off)
		if err != nil {
			return err
		}
		off = tok.next

		switch tok.kind {
		case tokenBeginNode:
			if depth == 0 {
				child := Node{
					tree:         n.tree,
					name:         tok.name,
					body:         tok.next,
					addressCells: addressCells,
					sizeCells:    sizeCells,
				}
				if !fn(child) {
					return nil
				}
			}

			if depth++; depth >= maxDepth {
				return ErrBadStructure
			}
		case tokenEndNode:
			if depth == 0 {
				return nil
			}
			depth--
		case tokenProp, tokenNop:
		default:
			return ErrBadStructure
		}
	}
}

// VisitReg decodes the reg property of the node using the cell counts of its
// parent and invokes fn for each (address, size) pair until fn returns false.
// Nodes without a reg property produce no calls.
func (n Node) VisitReg(fn func(addr, size uint64) bool) *kernel.Error {
	prop, ok := n.Property("reg")
	if !ok {
		return nil
	}

	if n.addressCells == 0 || n.addressCells > 2 || n.sizeCells > 2 {
		return ErrBadReg
	}

	entrySize := int(n.addressCells+n.sizeCells) * 4
	if len(prop.Value)%entrySize != 0 {
		return ErrBadReg
	}

	for off := 0; off < len(prop.Value); off += entrySize {
		addr := readCells(prop.Value[off:], n.addressCells)
		size := readCells(prop.Value[off+int(n.addressCells)*4:], n.sizeCells)
		if !fn(addr, size) {
			break
		}
	}

	return nil
}

// readCells decodes a big-endian number made of count 32-bit cells.
func readCells(b []byte, count uint32) uint64 {
	var v uint64
	for i := 0; i < int(count); i++ {
		v = v<<32 | uint64(be32(b, i*4))
	}
	return v
}

// Property is a named device tree property. Value aliases the blob.
type Property struct {
	Name  string
	Value []byte
}

// Uint32 decodes a single-cell property.
func (p Property) Uint32() (uint32, bool) {
	if len(p.Value) != 4 {
		return 0, false
	}
	return be32(p.Value, 0), true
}

// Uint64 decodes a two-cell property.
func (p Property) Uint64() (uint64, bool) {
	if len(p.Value) != 8 {
		return 0, false
	}
	return be64(p.Value, 0), true
}

// String returns the first string of a string or string-list property.
func (p Property) String() string {
	s, _ := cstring(p.Value, 0)
	return s
}

// VisitStrings invokes fn for each entry of a string-list property until fn
// returns false.
func (p Property) VisitStrings(fn func(string) bool) {
	for off := 0; off < len(p.Value); {
		s, ok := cstring(p.Value, off)
		if !ok || !fn(s) {
			return
		}
		off += len(s) + 1
	}
}
