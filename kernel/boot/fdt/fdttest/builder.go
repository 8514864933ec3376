// Package fdttest builds device tree blobs for tests.
package fdttest

import (
	"bytes"
	"encoding/binary"
)

const (
	headerSize = 40
	version    = 17
	lastComp   = 16

	tokenBeginNode = 1
	tokenEndNode   = 2
	tokenProp      = 3
	tokenNop       = 4
	tokenEnd       = 9
)

// Reservation is an entry of the memory reservation block.
type Reservation struct {
	Addr, Size uint64
}

// Builder assembles a DTB. Nodes and properties are emitted in call order.
type Builder struct {
	structs      bytes.Buffer
	strings      bytes.Buffer
	stringOffs   map[string]uint32
	reservations []Reservation

	// BootCPUID is copied to the header.
	BootCPUID uint32
}

// Reserve adds an entry to the memory reservation block.
func (b *Builder) Reserve(addr, size uint64) *Builder {
	b.reservations = append(b.reservations, Reservation{addr, size})
	return b
}

// BeginNode opens a node. The root node has an empty name.
func (b *Builder) BeginNode(name string) *Builder {
	b.u32(tokenBeginNode)
	b.structs.WriteString(name)
	b.structs.WriteByte(0)
	b.pad()
	return b
}

// EndNode closes the innermost open node.
func (b *Builder) EndNode() *Builder {
	b.u32(tokenEndNode)
	return b
}

// Nop emits a NOP token.
func (b *Builder) Nop() *Builder {
	b.u32(tokenNop)
	return b
}

// Prop emits a property with a raw value.
func (b *Builder) Prop(name string, value []byte) *Builder {
	b.u32(tokenProp)
	b.u32(uint32(len(value)))
	b.u32(b.stringOff(name))
	b.structs.Write(value)
	b.pad()
	return b
}

// PropCells emits a property made of 32-bit cells.
func (b *Builder) PropCells(name string, cells ...uint32) *Builder {
	value := make([]byte, 4*len(cells))
	for i, c := range cells {
		binary.BigEndian.PutUint32(value[4*i:], c)
	}
	return b.Prop(name, value)
}

// PropStrings emits a string or string-list property.
func (b *Builder) PropStrings(name string, values ...string) *Builder {
	var value []byte
	for _, v := range values {
		value = append(value, v...)
		value = append(value, 0)
	}
	return b.Prop(name, value)
}

// PropEmpty emits a property without a value.
func (b *Builder) PropEmpty(name string) *Builder {
	return b.Prop(name, nil)
}

// Bytes terminates the structure block and returns the assembled blob.
func (b *Builder) Bytes() []byte {
	structs := append(append([]byte(nil), b.structs.Bytes()...), 0, 0, 0, tokenEnd)

	var rsv bytes.Buffer
	for _, r := range b.reservations {
		binary.Write(&rsv, binary.BigEndian, r)
	}
	rsv.Write(make([]byte, 16))

	offRsv := uint32(headerSize)
	offStruct := offRsv + uint32(rsv.Len())
	offStrings := offStruct + uint32(len(structs))
	total := offStrings + uint32(b.strings.Len())

	hdr := []uint32{
		0xd00dfeed,
		total,
		offStruct,
		offStrings,
		offRsv,
		version,
		lastComp,
		b.BootCPUID,
		uint32(b.strings.Len()),
		uint32(len(structs)),
	}

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, hdr)
	out.Write(rsv.Bytes())
	out.Write(structs)
	out.Write(b.strings.Bytes())
	return out.Bytes()
}

func (b *Builder) stringOff(name string) uint32 {
	if b.stringOffs == nil {
		b.stringOffs = make(map[string]uint32)
	}

	if off, ok := b.stringOffs[name]; ok {
		return off
	}

	off := uint32(b.strings.Len())
	b.strings.WriteString(name)
	b.strings.WriteByte(0)
	b.stringOffs[name] = off
	return off
}

func (b *Builder) u32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.structs.Write(buf[:])
}

func (b *Builder) pad() {
	for b.structs.Len()%4 != 0 {
		b.structs.WriteByte(0)
	}
}
