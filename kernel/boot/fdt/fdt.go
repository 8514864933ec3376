// Package fdt reads flattened device tree blobs (DTB) as handed over by the
// firmware. The reader works directly on the blob and does not allocate.
package fdt

import (
	"unsafe"

	"github.com/romac/dante/kernel"
)

const (
	// Magic is the value of the first header word of every DTB.
	Magic = 0xd00dfeed

	// HeaderSize is the size of a version 17 DTB header.
	HeaderSize = 40

	// minVersion is the oldest format whose layout the reader understands.
	minVersion = 16

	tokenBeginNode = 1
	tokenEndNode   = 2
	tokenProp      = 3
	tokenNop       = 4
	tokenEnd       = 9

	// maxDepth bounds node nesting so that a corrupted blob cannot
	// make the walker recurse without limit.
	maxDepth = 32
)

var (
	// ErrBadMagic is returned when the blob does not start with Magic.
	ErrBadMagic = &kernel.Error{Module: "fdt", Message: "bad DTB magic"}

	// ErrUnsupportedVersion is returned for blobs older than version 16.
	ErrUnsupportedVersion = &kernel.Error{Module: "fdt", Message: "unsupported DTB version"}

	// ErrTruncated is returned when a header field or token points past
	// the end of the blob.
	ErrTruncated = &kernel.Error{Module: "fdt", Message: "truncated DTB"}

	// ErrBadToken is returned when the structure block contains an
	// unknown token.
	ErrBadToken = &kernel.Error{Module: "fdt", Message: "unknown token in DTB structure block"}

	// ErrBadStructure is returned when nodes are not properly nested.
	ErrBadStructure = &kernel.Error{Module: "fdt", Message: "malformed DTB structure block"}

	// ErrBadReg is returned when a reg property cannot be decoded using
	// the cell counts of its parent node.
	ErrBadReg = &kernel.Error{Module: "fdt", Message: "malformed reg property"}
)

// Header is the decoded DTB header.
type Header struct {
	TotalSize       uint32
	OffStruct       uint32
	OffStrings      uint32
	OffMemRsvMap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUID       uint32
	SizeStrings     uint32
	SizeStruct      uint32
}

// BlobSize returns the total size of the blob whose header is stored in hdr.
// It is used to find out how many bytes to map before calling Tree.Init.
func BlobSize(hdr []byte) (int, *kernel.Error) {
	if len(hdr) < 8 {
		return 0, ErrTruncated
	}

	if be32(hdr, 0) != Magic {
		return 0, ErrBadMagic
	}

	return int(be32(hdr, 4)), nil
}

// Tree is a parsed DTB. The zero value is not usable; call Init first.
type Tree struct {
	blob    []byte
	structs []byte
	strings []byte
	header  Header
}

// Init validates the header of blob and prepares the tree for reading. The
// blob must stay alive and unmodified for as long as the tree is used.
func (t *Tree) Init(blob []byte) *kernel.Error {
	size, err := BlobSize(blob)
	if err != nil {
		return err
	}

	if len(blob) < HeaderSize || size < HeaderSize || size > len(blob) {
		return ErrTruncated
	}
	blob = blob[:size]

	h := Header{
		TotalSize:       be32(blob, 4),
		OffStruct:       be32(blob, 8),
		OffStrings:      be32(blob, 12),
		OffMemRsvMap:    be32(blob, 16),
		Version:         be32(blob, 20),
		LastCompVersion: be32(blob, 24),
		BootCPUID:       be32(blob, 28),
		SizeStrings:     be32(blob, 32),
		SizeStruct:      be32(blob, 36),
	}

	if h.Version < minVersion {
		return ErrUnsupportedVersion
	}

	if !inBounds(h.OffStruct, h.SizeStruct, size) ||
		!inBounds(h.OffStrings, h.SizeStrings, size) ||
		!inBounds(h.OffMemRsvMap, 0, size) {
		return ErrTruncated
	}

	t.blob = blob
	t.structs = blob[h.OffStruct : h.OffStruct+h.SizeStruct]
	t.strings = blob[h.OffStrings : h.OffStrings+h.SizeStrings]
	t.header = h

	if _, err := t.Root(); err != nil {
		return err
	}

	// Validate the whole structure block once so that lookups can rely
	// on properly nested nodes.
	return t.Walk(func(_ *Event) bool { return true })
}

// Header returns the decoded blob header.
func (t *Tree) Header() Header {
	return t.header
}

// Root returns the root node of the tree.
func (t *Tree) Root() (Node, *kernel.Error) {
	off := 0
	for {
		tok, err := t.token(off)
		if err != nil {
			return Node{}, err
		}

		switch tok.kind {
		case tokenNop:
			off = tok.next
			continue
		case tokenBeginNode:
			return Node{tree: t, name: tok.name, body: tok.next, addressCells: 2, sizeCells: 1}, nil
		}

		return Node{}, ErrBadStructure
	}
}

// FindNode returns the node at the supplied absolute path. A path component
// without a unit address matches a node name with one, so "/memory" finds
// "memory@80000000".
func (t *Tree) FindNode(path string) (Node, bool) {
	node, err := t.Root()
	if err != nil || len(path) == 0 || path[0] != '/' {
		return Node{}, false
	}

	for start := 1; start < len(path); {
		end := start
		for end < len(path) && path[end] != '/' {
			end++
		}

		if end > start {
			var (
				component = path[start:end]
				found     bool
			)

			node.VisitChildren(func(child Node) bool {
				if nameMatches(child.name, component) {
					node, found = child, true
					return false
				}
				return true
			})

			if !found {
				return Node{}, false
			}
		}
		start = end + 1
	}

	return node, true
}

// VisitMemReservations invokes fn for each entry of the memory reservation
// block until fn returns false.
func (t *Tree) VisitMemReservations(fn func(addr, size uint64) bool) *kernel.Error {
	for off := int(t.header.OffMemRsvMap); ; off += 16 {
		if off+16 > len(t.blob) {
			return ErrTruncated
		}

		addr, size := be64(t.blob, off), be64(t.blob, off+8)
		if addr == 0 && size == 0 {
			return nil
		}

		if !fn(addr, size) {
			return nil
		}
	}
}

// EventKind identifies the structure block element reported to a WalkFn.
type EventKind uint8

const (
	// BeginNode is reported when a node is entered; Event.Name is set.
	BeginNode EventKind = iota

	// PropertyFound is reported for each property of the current node;
	// Event.Prop is set.
	PropertyFound

	// EndNode is reported when a node is left.
	EndNode
)

// Event describes a single element of the structure block.
type Event struct {
	Kind  EventKind
	Depth int
	Name  string
	Prop  Property
}

// WalkFn is invoked by Walk for each structure block element. Returning
// false stops the walk.
type WalkFn func(ev *Event) bool

// Walk visits the whole structure block in order.
func (t *Tree) Walk(fn WalkFn) *kernel.Error {
	var (
		ev    Event
		depth = -1
	)

	for off := 0; ; {
		tok, err := t.token(off)
		if err != nil {
			return err
		}
		off = tok.next

		switch tok.kind {
		case tokenBeginNode:
			if depth++; depth >= maxDepth {
				return ErrBadStructure
			}
			ev = Event{Kind: BeginNode, Depth: depth, Name: tok.name}
		case tokenProp:
			if depth < 0 {
				return ErrBadStructure
			}
			ev = Event{Kind: PropertyFound, Depth: depth, Prop: Property{Name: tok.name, Value: tok.value}}
		case tokenEndNode:
			if depth < 0 {
				return ErrBadStructure
			}
			ev = Event{Kind: EndNode, Depth: depth}
			depth--
		case tokenNop:
			continue
		case tokenEnd:
			if depth != -1 {
				return ErrBadStructure
			}
			return nil
		}

		if !fn(&ev) {
			return nil
		}
	}
}

// token is a decoded structure block element.
type token struct {
	kind  uint32
	name  string
	value []byte
	next  int
}

// token decodes the structure block token at off.
func (t *Tree) token(off int) (token, *kernel.Error) {
	if off < 0 || off+4 > len(t.structs) {
		return token{}, ErrTruncated
	}

	tok := token{kind: be32(t.structs, off), next: off + 4}
	switch tok.kind {
	case tokenBeginNode:
		name, ok := cstring(t.structs, tok.next)
		if !ok {
			return token{}, ErrTruncated
		}
		tok.name = name
		tok.next = align4(tok.next + len(name) + 1)
	case tokenProp:
		if off+12 > len(t.structs) {
			return token{}, ErrTruncated
		}

		valueLen := int(be32(t.structs, off+4))
		nameOff := int(be32(t.structs, off+8))
		valueStart := off + 12
		if valueLen < 0 || valueStart+valueLen > len(t.structs) {
			return token{}, ErrTruncated
		}

		name, ok := cstring(t.strings, nameOff)
		if !ok {
			return token{}, ErrTruncated
		}

		tok.name = name
		tok.value = t.structs[valueStart : valueStart+valueLen]
		tok.next = align4(valueStart + valueLen)
	case tokenEndNode, tokenNop, tokenEnd:
	default:
		return token{}, ErrBadToken
	}

	return tok, nil
}

func nameMatches(nodeName, component string) bool {
	if nodeName == component {
		return true
	}

	for i := 0; i < len(component); i++ {
		if component[i] == '@' {
			return false
		}
	}

	return len(nodeName) > len(component) &&
		nodeName[:len(component)] == component &&
		nodeName[len(component)] == '@'
}

func inBounds(off, size uint32, total int) bool {
	return uint64(off)+uint64(size) <= uint64(total)
}

func align4(off int) int {
	return (off + 3) &^ 3
}

func be32(b []byte, off int) uint32 {
	_ = b[off+3]
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

func be64(b []byte, off int) uint64 {
	return uint64(be32(b, off))<<32 | uint64(be32(b, off+4))
}

// cstring returns the NUL-terminated string that starts at off. The string
// aliases b.
func cstring(b []byte, off int) (string, bool) {
	if off < 0 || off >= len(b) {
		return "", false
	}

	for end := off; end < len(b); end++ {
		if b[end] == 0 {
			return bytesToString(b[off:end]), true
		}
	}

	return "", false
}

// bytesToString returns a string that shares its storage with b.
func bytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
