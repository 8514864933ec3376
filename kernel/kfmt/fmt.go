// Package kfmt provides the kernel's console formatting helpers. The
// formatter does not allocate, so it can be used before the Go allocator has
// been brought up.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is the size of the scratch buffer used for formatting integers;
// it also bounds the width that can be requested for an integer verb.
const numBufSize = 32

var (
	msgMissingArg = []byte("(MISSING)")
	msgBadType    = []byte("%!(WRONGTYPE)")
	msgNoVerb     = []byte("%!(NOVERB)")
	msgExtraArg   = []byte("%!(EXTRA)")
	msgTrue       = []byte("true")
	msgFalse      = []byte("false")

	numBuf [numBufSize]byte

	// oneByte is shared by every call that needs to emit a single
	// character; slicing strings would otherwise allocate.
	oneByte = []byte{0}

	// earlyBuf captures Printf output until a console sink is attached.
	earlyBuf ringBuffer

	// outputSink receives Printf output. While nil, output is kept in
	// earlyBuf.
	outputSink io.Writer
)

// SetOutputSink redirects Printf output to w and replays any output that was
// buffered while no sink was attached.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// GetOutputSink returns the writer that currently receives Printf output or
// nil if output is still being buffered.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf formats its arguments according to format and writes the result to
// the active output sink.
//
// Supported verbs:
//
//	%s  string or []byte
//	%d  integer, base 10
//	%o  integer, base 8
//	%x  integer, base 16 using lower-case digits
//	%t  bool
//	%%  a literal percent sign
//
// A decimal width may precede the verb. Strings and base-10 integers are
// padded with spaces; base-8 and base-16 integers are padded with zeroes.
//
// Only built-in types are recognized; Stringer and error values are not
// consulted since the interface tables may not be set up yet.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes its output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
		i        int
	)

	for i < len(format) {
		ch := format[i]
		i++
		if ch != '%' {
			writeByte(w, ch)
			continue
		}

		width = 0
		for ; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			write(w, msgNoVerb)
			break
		}

		verb := format[i]
		i++

		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 's', 'd', 'o', 'x', 't':
		default:
			write(w, msgNoVerb)
			continue
		}

		if argIndex == len(args) {
			write(w, msgMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 's':
			formatString(w, arg, width)
		case 'd':
			formatInt(w, arg, 10, width)
		case 'o':
			formatInt(w, arg, 8, width)
		case 'x':
			formatInt(w, arg, 16, width)
		case 't':
			formatBool(w, arg)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		write(w, msgExtraArg)
	}
}

func formatBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		write(w, msgBadType)
	case b:
		write(w, msgTrue)
	default:
		write(w, msgFalse)
	}
}

func formatString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		pad(w, ' ', width-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		pad(w, ' ', width-len(s))
		write(w, s)
	default:
		write(w, msgBadType)
	}
}

func pad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// formatInt writes v in the requested base. All built-in integer types are
// supported.
func formatInt(w io.Writer, v interface{}, base uint64, width int) {
	var (
		mag uint64
		neg bool
	)

	switch n := v.(type) {
	case uint8:
		mag = uint64(n)
	case uint16:
		mag = uint64(n)
	case uint32:
		mag = uint64(n)
	case uint64:
		mag = n
	case uint:
		mag = uint64(n)
	case uintptr:
		mag = uint64(n)
	case int8:
		mag, neg = abs(int64(n))
	case int16:
		mag, neg = abs(int64(n))
	case int32:
		mag, neg = abs(int64(n))
	case int64:
		mag, neg = abs(n)
	case int:
		mag, neg = abs(int64(n))
	default:
		write(w, msgBadType)
		return
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	if width > numBufSize-1 {
		width = numBufSize - 1
	}

	// Digits are produced right to left.
	pos := numBufSize
	for {
		pos--
		digit := byte(mag % base)
		if digit < 10 {
			numBuf[pos] = '0' + digit
		} else {
			numBuf[pos] = 'a' + digit - 10
		}

		if mag /= base; mag == 0 {
			break
		}
	}

	switch {
	case neg && padCh == ' ':
		// The sign sits right before the digits, spaces go before it.
		pos--
		numBuf[pos] = '-'
		for numBufSize-pos < width {
			pos--
			numBuf[pos] = ' '
		}
	case neg:
		for numBufSize-pos < width-1 {
			pos--
			numBuf[pos] = '0'
		}
		pos--
		numBuf[pos] = '-'
	default:
		for numBufSize-pos < width {
			pos--
			numBuf[pos] = padCh
		}
	}

	write(w, numBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func writeByte(w io.Writer, b byte) {
	oneByte[0] = b
	write(w, oneByte)
}

// write hides p from escape analysis. The destination writer is only known
// at run time, so the compiler would otherwise treat every buffer passed to
// it as escaping and make each Printf call allocate.
func write(w io.Writer, p []byte) {
	emit(w, noEscape(unsafe.Pointer(&p)))
}

func emit(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w == nil {
		earlyBuf.Write(p)
		return
	}
	w.Write(p)
}

// noEscape is the same trick as runtime.noescape.
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
