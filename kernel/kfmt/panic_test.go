package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/romac/dante/kernel"
	"github.com/romac/dante/kernel/cpu"
	"github.com/romac/dante/kernel/sbi"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		panicResetFn = sbi.PanicReset
		outputSink = nil
	}()

	var (
		buf           bytes.Buffer
		resetCalled   bool
		cpuHaltCalled bool
	)

	SetOutputSink(&buf)
	panicResetFn = func() sbi.Error {
		resetCalled = true
		return sbi.ErrNotSupported
	}
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	const (
		banner = "\n-----------------------------------\n"
		halted = "*** kernel panic: system halted ***"
		reset  = "system reset failed: SBI call not implemented or functionality not available\n"
	)

	specs := []struct {
		name string
		arg  interface{}
		exp  string
	}{
		{
			"with *kernel.Error",
			&kernel.Error{Module: "vmm", Message: "page table entry already mapped as a leaf"},
			banner + "[vmm] unrecoverable error: page table entry already mapped as a leaf\n" + halted + banner + reset,
		},
		{
			"with error",
			errors.New("go error"),
			banner + "[rt] unrecoverable error: go error\n" + halted + banner + reset,
		},
		{
			"with string",
			"string error",
			banner + "[rt] unrecoverable error: string error\n" + halted + banner + reset,
		},
		{
			"without error",
			nil,
			banner + halted + banner + reset,
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			buf.Reset()
			resetCalled, cpuHaltCalled = false, false

			Panic(spec.arg)

			if got := buf.String(); got != spec.exp {
				t.Fatalf("expected to get:\n%q\ngot:\n%q", spec.exp, got)
			}

			if !resetCalled {
				t.Fatal("expected Panic to request a system reset")
			}

			if !cpuHaltCalled {
				t.Fatal("expected cpu.Halt() to be called once the reset failed")
			}
		})
	}
}
