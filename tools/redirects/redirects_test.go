package main

import (
	"bytes"
	"debug/elf"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

const panicSrc = `package kfmt

// Panic halts the kernel.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {}

//go:redirect-from runtime.throw
func panicString(msg string) {}

func unrelated() {}
`

func TestFindRedirects(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod":                    "module example.com/kernel\n\ngo 1.24\n",
		"kernel/kfmt/panic.go":      panicSrc,
		"kernel/kfmt/panic_test.go": "package kfmt\n\n//go:redirect-from runtime.ignored\nfunc mock() {}\n",
		"kernel/kfmt/notes.txt":     "//go:redirect-from runtime.ignored\n",
	})

	prefix, err := modulePath(root)
	if err != nil {
		t.Fatal(err)
	}
	if exp := "example.com/kernel"; prefix != exp {
		t.Fatalf("expected module path %q; got %q", exp, prefix)
	}

	goFiles, err := collectGoFiles(root, "kernel")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"kernel/kfmt/panic.go"}, goFiles); diff != "" {
		t.Fatalf("collected files mismatch (-want +got):\n%s", diff)
	}

	redirects, err := findRedirects(root, prefix, goFiles)
	if err != nil {
		t.Fatal(err)
	}

	exp := []*redirect{
		{src: "runtime.gopanic", dst: "example.com/kernel/kernel/kfmt.Panic"},
		{src: "runtime.throw", dst: "example.com/kernel/kernel/kfmt.panicString"},
	}
	if diff := cmp.Diff(exp, redirects, cmp.AllowUnexported(redirect{})); diff != "" {
		t.Fatalf("redirects mismatch (-want +got):\n%s", diff)
	}
}

func TestFindRedirectsErrors(t *testing.T) {
	specs := []struct {
		name   string
		src    string
		expErr string
	}{
		{
			name:   "malformed annotation",
			src:    "package kfmt\n\n//go:redirect-from\nfunc Panic() {}\n",
			expErr: `malformed go:redirect-from syntax for "example.com/kernel/kernel/kfmt.Panic"`,
		},
		{
			name:   "syntax error",
			src:    "package kfmt\n\nfunc {\n",
			expErr: "kernel/kfmt/panic.go:",
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			root := t.TempDir()
			writeFiles(t, root, map[string]string{"kernel/kfmt/panic.go": spec.src})

			_, err := findRedirects(root, "example.com/kernel", []string{"kernel/kfmt/panic.go"})
			if err == nil || !strings.Contains(err.Error(), spec.expErr) {
				t.Fatalf("expected error containing %q; got %v", spec.expErr, err)
			}
		})
	}
}

func TestModulePathErrors(t *testing.T) {
	root := t.TempDir()
	if _, err := modulePath(root); err == nil {
		t.Fatal("expected an error for a missing go.mod")
	}

	writeFiles(t, root, map[string]string{"go.mod": "go 1.24\n"})
	if _, err := modulePath(root); err == nil {
		t.Fatal("expected an error for a go.mod without a module directive")
	}
}

func TestResolveRedirectSymbols(t *testing.T) {
	symbols := []elf.Symbol{
		{Name: "runtime.gopanic", Value: 0xffffffffc0001000},
		{Name: "example.com/kernel/kernel/kfmt.Panic", Value: 0xffffffffc0042000},
		{Name: "runtime.throw", Value: 0xffffffffc0002000},
	}

	redirects := []*redirect{{src: "runtime.gopanic", dst: "example.com/kernel/kernel/kfmt.Panic"}}
	if err := resolveRedirectSymbols(redirects, symbols, "kernel.elf"); err != nil {
		t.Fatal(err)
	}
	if redirects[0].srcVMA != 0xffffffffc0001000 || redirects[0].dstVMA != 0xffffffffc0042000 {
		t.Fatalf("unexpected resolved addresses 0x%x -> 0x%x", redirects[0].srcVMA, redirects[0].dstVMA)
	}

	var buf bytes.Buffer
	if err := writeRedirectTable(&buf, redirects); err != nil {
		t.Fatal(err)
	}
	exp := []byte{
		0x00, 0x10, 0x00, 0xc0, 0xff, 0xff, 0xff, 0xff,
		0x00, 0x20, 0x04, 0xc0, 0xff, 0xff, 0xff, 0xff,
	}
	if !bytes.Equal(buf.Bytes(), exp) {
		t.Fatalf("expected table bytes %x; got %x", exp, buf.Bytes())
	}

	missing := []*redirect{{src: "runtime.throw", dst: "example.com/kernel/kernel/kfmt.panicString"}}
	err := resolveRedirectSymbols(missing, symbols, "kernel.elf")
	if err == nil || !strings.Contains(err.Error(), "kfmt.panicString") {
		t.Fatalf("expected an unresolved destination error; got %v", err)
	}
}
