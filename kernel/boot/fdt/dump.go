package fdt

import (
	"io"

	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/kfmt"
)

// DumpTo writes the tree to w in device tree source syntax.
func (t *Tree) DumpTo(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "/dts-v1/;\n")

	err := t.VisitMemReservations(func(addr, size uint64) bool {
		kfmt.Fprintf(w, "/memreserve/ 0x%x 0x%x;\n", addr, size)
		return true
	})
	if err != nil {
		return err
	}

	return t.Walk(func(ev *Event) bool {
		switch ev.Kind {
		case BeginNode:
			indent(w, ev.Depth)
			if ev.Depth == 0 {
				kfmt.Fprintf(w, "/ {\n")
			} else {
				kfmt.Fprintf(w, "%s {\n", ev.Name)
			}
		case PropertyFound:
			indent(w, ev.Depth+1)
			dumpProperty(w, ev.Prop)
		case EndNode:
			indent(w, ev.Depth)
			kfmt.Fprintf(w, "};\n")
		}
		return true
	})
}

func indent(w io.Writer, depth int) {
	for ; depth > 0; depth-- {
		kfmt.Fprintf(w, "\t")
	}
}

func dumpProperty(w io.Writer, prop Property) {
	value := prop.Value

	switch {
	case len(value) == 0:
		kfmt.Fprintf(w, "%s;\n", prop.Name)
	case isStringList(value):
		kfmt.Fprintf(w, "%s = ", prop.Name)
		sep := ""
		prop.VisitStrings(func(s string) bool {
			kfmt.Fprintf(w, "%s\"%s\"", sep, s)
			sep = ", "
			return true
		})
		kfmt.Fprintf(w, ";\n")
	case len(value)%4 == 0:
		kfmt.Fprintf(w, "%s = <", prop.Name)
		for off := 0; off < len(value); off += 4 {
			if off != 0 {
				kfmt.Fprintf(w, " ")
			}
			kfmt.Fprintf(w, "0x%x", be32(value, off))
		}
		kfmt.Fprintf(w, ">;\n")
	default:
		kfmt.Fprintf(w, "%s = [", prop.Name)
		for i, b := range value {
			if i != 0 {
				kfmt.Fprintf(w, " ")
			}
			kfmt.Fprintf(w, "%2x", b)
		}
		kfmt.Fprintf(w, "];\n")
	}
}

// isStringList returns true if value is a sequence of non-empty printable
// NUL-terminated strings.
func isStringList(value []byte) bool {
	if value[len(value)-1] != 0 {
		return false
	}

	prevNUL := true
	for _, b := range value {
		switch {
		case b == 0:
			if prevNUL {
				return false
			}
			prevNUL = true
		case b < 0x20 || b > 0x7e:
			return false
		default:
			prevNUL = false
		}
	}

	return true
}
