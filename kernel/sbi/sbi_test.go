package sbi

import (
	"bytes"
	"fmt"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/cpu"
	"github.com/romac/dante/kernel/mm"
)

type ecallRecord struct {
	EID, FID, A0, A1, A2 uintptr
}

func TestNewError(t *testing.T) {
	known := []Error{
		ErrFailed,
		ErrNotSupported,
		ErrInvalidParameter,
		ErrDenied,
		ErrInvalidAddress,
		ErrAlreadyAvailable,
		ErrAlreadyStarted,
		ErrAlreadyStopped,
	}

	seenMessages := make(map[string]int64)
	for code := int64(-1); code >= -8; code-- {
		err := NewError(code)
		if err != known[-code-1] {
			t.Errorf("expected code %d to map to %v; got %v", code, known[-code-1], err)
		}

		if !err.Known() {
			t.Errorf("expected code %d to be a known status", code)
		}

		msg := err.Error()
		if prev, dup := seenMessages[msg]; dup {
			t.Errorf("codes %d and %d share the message %q", prev, code, msg)
		}
		seenMessages[msg] = code
	}

	for _, code := range []int64{-9, -42, 1, 7, 1 << 40} {
		err := NewError(code)
		if err.Known() {
			t.Errorf("expected code %d to map to an unknown status", code)
		}

		if err.Code() != code {
			t.Errorf("expected unknown status to carry code %d; got %d", code, err.Code())
		}

		if exp := "unknown SBI error code"; err.Error() != exp {
			t.Errorf("expected message %q; got %q", exp, err.Error())
		}

		if asErr := err.asError(); asErr != errUnknownStatus {
			t.Errorf("expected code %d to convert to errUnknownStatus; got %v", code, asErr)
		}
	}

	if err := NewError(0); err != Success || err.Known() {
		t.Errorf("expected code 0 to map to Success; got %v", err)
	}

	if err := Success.asError(); err != nil {
		t.Errorf("expected Success to convert to a nil error; got %v", err)
	}

	for _, code := range known {
		if err := code.asError(); err != error(code) {
			t.Errorf("expected %v to convert to itself; got %v", code, err)
		}
	}
}

func TestCall(t *testing.T) {
	defer func() { ecallFn = cpu.ECall }()

	var calls []ecallRecord
	ecallFn = func(eid, fid, a0, a1, a2 uintptr) (int64, uintptr) {
		calls = append(calls, ecallRecord{eid, fid, a0, a1, a2})
		if a0 == 0xbad {
			return int64(ErrInvalidParameter), 0
		}
		return 0, 0xc0ffee
	}

	if value, err := Call(0x10, 1, 2, 3, 4); err != Success || value != 0xc0ffee {
		t.Fatalf("expected Call to return (0xc0ffee, Success); got (0x%x, %v)", value, err)
	}

	if value, err := Call(0x10, 1, 0xbad, 0, 0); err != ErrInvalidParameter || value != 0 {
		t.Fatalf("expected Call to return (0, ErrInvalidParameter); got (0x%x, %v)", value, err)
	}

	exp := []ecallRecord{
		{0x10, 1, 2, 3, 4},
		{0x10, 1, 0xbad, 0, 0},
	}
	if diff := cmp.Diff(exp, calls); diff != "" {
		t.Errorf("ecall mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeExtension(t *testing.T) {
	defer func() { ecallFn = cpu.ECall }()

	ecallFn = func(eid, fid, a0, _, _ uintptr) (int64, uintptr) {
		if eid != eidBase || fid != fidProbeExtension {
			t.Fatalf("unexpected ecall eid=0x%x fid=%d", eid, fid)
		}

		switch a0 {
		case eidDebugConsole:
			return 0, 1
		case eidSystemReset:
			return 0, 0
		default:
			return int64(ErrNotSupported), 0
		}
	}

	if !ProbeExtension(eidDebugConsole) {
		t.Error("expected DBCN to be reported as available")
	}

	if ProbeExtension(eidSystemReset) {
		t.Error("expected SRST to be reported as missing")
	}

	if ProbeExtension(0x1234) {
		t.Error("expected a failed extension query to be reported as missing")
	}
}

func TestSystemReset(t *testing.T) {
	defer func() { ecallFn = cpu.ECall }()

	specs := []struct {
		fn      func() Error
		status  int64
		expCall ecallRecord
		expErr  Error
	}{
		{Shutdown, int64(ErrNotSupported), ecallRecord{eidSystemReset, 0, 0, 0, 0}, ErrNotSupported},
		{PanicReset, int64(ErrDenied), ecallRecord{eidSystemReset, 0, 0, 1, 0}, ErrDenied},
		// Firmware returned success without resetting.
		{func() Error { return SystemReset(ResetWarm, ReasonNone) }, 0, ecallRecord{eidSystemReset, 0, 2, 0, 0}, ErrFailed},
	}

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			var got ecallRecord
			ecallFn = func(eid, fid, a0, a1, a2 uintptr) (int64, uintptr) {
				got = ecallRecord{eid, fid, a0, a1, a2}
				return spec.status, 0
			}

			if err := spec.fn(); err != spec.expErr {
				t.Errorf("expected error %v; got %v", spec.expErr, err)
			}

			if diff := cmp.Diff(spec.expCall, got); diff != "" {
				t.Errorf("ecall mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// firmwareConsole emulates the console extensions of an SBI implementation.
type firmwareConsole struct {
	out         bytes.Buffer
	hasDBCN     bool
	failDBCN    bool
	dbcnMissing bool
	maxChunk    uintptr
	dbcnCalls   int
	legacyCalls int
}

func (fw *firmwareConsole) ecall(eid, fid, a0, a1, _ uintptr) (int64, uintptr) {
	switch eid {
	case eidBase:
		if a0 == eidDebugConsole && fw.hasDBCN {
			return 0, 1
		}
		return 0, 0
	case eidDebugConsole:
		fw.dbcnCalls++
		if fw.failDBCN {
			return int64(ErrInvalidAddress), 0
		}
		if fw.dbcnMissing {
			return int64(ErrNotSupported), 0
		}
		n := a0
		if fw.maxChunk != 0 && n > fw.maxChunk {
			n = fw.maxChunk
		}
		// The mocked bufPhysAddrFn passes host pointers through.
		fw.out.Write(unsafe.Slice((*byte)(unsafe.Pointer(a1)), n))
		return 0, n
	case eidLegacyPutchar:
		fw.legacyCalls++
		fw.out.WriteByte(byte(a0))
		return 0, 0
	}

	return int64(ErrNotSupported), 0
}

func TestDebugConsole(t *testing.T) {
	defer func(origPhysFn func(*byte) (mm.PhysAddr, *kernel.Error)) {
		ecallFn = cpu.ECall
		bufPhysAddrFn = origPhysFn
	}(bufPhysAddrFn)

	identityPhys := func(b *byte) (mm.PhysAddr, *kernel.Error) {
		return mm.PhysAddr(uintptr(unsafe.Pointer(b))), nil
	}
	untranslatable := func(_ *byte) (mm.PhysAddr, *kernel.Error) {
		return 0, mm.ErrAddrNotTranslatable
	}

	msg := []byte("hello from the boot hart\n")

	t.Run("DBCN with partial writes", func(t *testing.T) {
		fw := &firmwareConsole{hasDBCN: true, maxChunk: 4}
		ecallFn = fw.ecall
		bufPhysAddrFn = identityPhys

		var cons DebugConsole
		n, err := cons.Write(msg)
		if err != nil || n != len(msg) {
			t.Fatalf("expected (%d, nil); got (%d, %v)", len(msg), n, err)
		}

		if got := fw.out.String(); got != string(msg) {
			t.Fatalf("expected console output %q; got %q", msg, got)
		}

		if exp := (len(msg) + 3) / 4; fw.dbcnCalls != exp {
			t.Errorf("expected %d DBCN calls; got %d", exp, fw.dbcnCalls)
		}

		if fw.legacyCalls != 0 {
			t.Errorf("expected no legacy calls; got %d", fw.legacyCalls)
		}
	})

	t.Run("legacy fallback when DBCN is missing", func(t *testing.T) {
		fw := &firmwareConsole{}
		ecallFn = fw.ecall
		bufPhysAddrFn = identityPhys

		var cons DebugConsole
		if n, err := cons.Write(msg); err != nil || n != len(msg) {
			t.Fatalf("expected (%d, nil); got (%d, %v)", len(msg), n, err)
		}

		if got := fw.out.String(); got != string(msg) {
			t.Fatalf("expected console output %q; got %q", msg, got)
		}

		if fw.legacyCalls != len(msg) || fw.dbcnCalls != 0 {
			t.Errorf("expected %d legacy calls and no DBCN calls; got %d and %d", len(msg), fw.legacyCalls, fw.dbcnCalls)
		}
	})

	t.Run("legacy fallback for untranslatable buffers", func(t *testing.T) {
		fw := &firmwareConsole{hasDBCN: true}
		ecallFn = fw.ecall
		bufPhysAddrFn = untranslatable

		var cons DebugConsole
		if n, err := cons.Write(msg); err != nil || n != len(msg) {
			t.Fatalf("expected (%d, nil); got (%d, %v)", len(msg), n, err)
		}

		if got := fw.out.String(); got != string(msg) {
			t.Fatalf("expected console output %q; got %q", msg, got)
		}
	})

	t.Run("legacy fallback when DBCN writes are not supported", func(t *testing.T) {
		fw := &firmwareConsole{hasDBCN: true, dbcnMissing: true}
		ecallFn = fw.ecall
		bufPhysAddrFn = identityPhys

		var cons DebugConsole
		for i := 0; i < 2; i++ {
			if n, err := cons.Write(msg); err != nil || n != len(msg) {
				t.Fatalf("[write %d] expected (%d, nil); got (%d, %v)", i, len(msg), n, err)
			}
		}

		if got := fw.out.String(); got != string(msg)+string(msg) {
			t.Fatalf("expected console output %q twice; got %q", msg, got)
		}

		if fw.dbcnCalls != 1 {
			t.Errorf("expected a single DBCN attempt; got %d", fw.dbcnCalls)
		}
	})

	t.Run("DBCN error", func(t *testing.T) {
		fw := &firmwareConsole{hasDBCN: true, failDBCN: true}
		ecallFn = fw.ecall
		bufPhysAddrFn = identityPhys

		var cons DebugConsole
		if n, err := cons.Write(msg); err != ErrInvalidAddress || n != 0 {
			t.Fatalf("expected (0, ErrInvalidAddress); got (%d, %v)", n, err)
		}
	})

	t.Run("DBCN making no progress", func(t *testing.T) {
		ecallFn = func(eid, _, _, _, _ uintptr) (int64, uintptr) {
			if eid == eidBase {
				return 0, 1
			}
			return 0, 0
		}
		bufPhysAddrFn = identityPhys

		var cons DebugConsole
		if n, err := cons.Write(msg); err != ErrFailed || n != 0 {
			t.Fatalf("expected (0, ErrFailed); got (%d, %v)", n, err)
		}
	})
}

func TestErrorPathsDoNotAllocate(t *testing.T) {
	defer func(origPhysFn func(*byte) (mm.PhysAddr, *kernel.Error)) {
		ecallFn = cpu.ECall
		bufPhysAddrFn = origPhysFn
	}(bufPhysAddrFn)

	status := int64(ErrNotSupported)
	ecallFn = func(eid, _, _, _, _ uintptr) (int64, uintptr) {
		if eid == eidBase {
			return 0, 1
		}
		return status, 0
	}
	bufPhysAddrFn = func(b *byte) (mm.PhysAddr, *kernel.Error) {
		return mm.PhysAddr(uintptr(unsafe.Pointer(b))), nil
	}

	var (
		cons    = &DebugConsole{mode: consoleDBCN}
		msg     = []byte("x")
		unknown = NewError(-42)
		callErr Error
		sink    error
		sinkMsg string
	)

	specs := []struct {
		name string
		fn   func()
	}{
		{"failing Call", func() { _, callErr = Call(eidDebugConsole, 0, 0, 0, 0) }},
		{"unknown status message", func() { sinkMsg = unknown.Error() }},
		{"unknown status conversion", func() { sink = unknown.asError() }},
		{"failing console write", func() { status = int64(ErrInvalidAddress); _, sink = cons.Write(msg) }},
		{"unknown console status", func() { status = -42; _, sink = cons.Write(msg) }},
		{"failed reset", func() { status = int64(ErrDenied); sinkMsg = PanicReset().Error() }},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			if allocs := testing.AllocsPerRun(100, spec.fn); allocs != 0 {
				t.Fatalf("expected no allocations; got %v per run", allocs)
			}
		})
	}

	_, _, _ = callErr, sink, sinkMsg
}
