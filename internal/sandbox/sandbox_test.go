package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestHandle(t *testing.T, cfg Config) *Handle {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	h, err := NewHandle("test", cfg)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	return h
}

func TestResolveRejectsEscapes(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadOnly})

	cases := []string{
		"../../etc/passwd",
		"..",
		"a/../../b",
		"/etc/passwd",
		"a/b/../../../c",
	}
	for _, rel := range cases {
		t.Run(rel, func(t *testing.T) {
			_, err := h.Resolve(rel)
			var escape EscapeError
			if !errors.As(err, &escape) {
				t.Fatalf("Resolve(%q) = %v, want EscapeError", rel, err)
			}
			if escape.Sandbox != "test" || escape.Path != rel {
				t.Fatalf("EscapeError carries %q/%q, want test/%q", escape.Sandbox, escape.Path, rel)
			}
		})
	}
}

func TestResolveStaysInRoot(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadWrite})

	cases := []string{"a.txt", "dir/b.txt", "./c.txt", "dir/../d.txt"}
	for _, rel := range cases {
		abs, err := h.Resolve(rel)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", rel, err)
		}
		if !strings.HasPrefix(abs, h.Root()) {
			t.Fatalf("Resolve(%q) = %q, outside root %q", rel, abs, h.Root())
		}
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	h := newTestHandle(t, Config{Mode: ModeReadOnly})

	link := filepath.Join(h.Root(), "leak")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := h.Resolve("leak/secret.txt")
	var escape EscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("Resolve through symlink = %v, want EscapeError", err)
	}
}

func TestWriteTextReadOnly(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadOnly})
	err := h.WriteText("out.txt", "data")
	var mode ModeError
	if !errors.As(err, &mode) {
		t.Fatalf("WriteText on ro sandbox = %v, want ModeError", err)
	}
	if _, statErr := os.Stat(filepath.Join(h.Root(), "out.txt")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("rejected write touched the filesystem")
	}
}

func TestWriteTextSizeLimitBeforeIO(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadWrite, MaxBytes: 8})
	err := h.WriteText("big.txt", "this is more than eight bytes")
	var size SizeError
	if !errors.As(err, &size) {
		t.Fatalf("WriteText = %v, want SizeError", err)
	}
	if size.Limit != 8 {
		t.Fatalf("SizeError.Limit = %d, want 8", size.Limit)
	}
	if _, statErr := os.Stat(filepath.Join(h.Root(), "big.txt")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("oversized write touched the filesystem")
	}
}

func TestWriteTextSuffixAllowList(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadWrite, AllowedSuffixes: []string{".md"}})
	if err := h.WriteText("notes.md", "ok"); err != nil {
		t.Fatalf("WriteText(.md): %v", err)
	}
	err := h.WriteText("script.sh", "#!/bin/sh")
	var suffix SuffixError
	if !errors.As(err, &suffix) {
		t.Fatalf("WriteText(.sh) = %v, want SuffixError", err)
	}
	if suffix.Suffix != ".sh" {
		t.Fatalf("SuffixError.Suffix = %q", suffix.Suffix)
	}
}

func TestReadTextRoundTrip(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadWrite})
	if err := h.WriteText("dir/file.txt", "hello"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got, err := h.ReadText("dir/file.txt")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != "hello" {
		t.Fatalf("ReadText = %q", got)
	}
}

func TestReadTextSizeLimit(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadWrite, MaxBytes: 4})
	if err := os.WriteFile(filepath.Join(h.Root(), "big.txt"), []byte("too large"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	_, err := h.ReadText("big.txt")
	var size SizeError
	if !errors.As(err, &size) {
		t.Fatalf("ReadText = %v, want SizeError", err)
	}
}

func TestListReturnsRelativePaths(t *testing.T) {
	h := newTestHandle(t, Config{Mode: ModeReadWrite})
	for _, rel := range []string{"b.txt", "a.txt", "sub/c.md"} {
		if err := h.WriteText(rel, "x"); err != nil {
			t.Fatalf("WriteText(%q): %v", rel, err)
		}
	}

	all, err := h.List("**")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"a.txt", "b.txt", "sub/c.md"}
	if len(all) != len(want) {
		t.Fatalf("List = %v, want %v", all, want)
	}
	for i, rel := range want {
		if all[i] != rel {
			t.Fatalf("List[%d] = %q, want %q", i, all[i], rel)
		}
		if filepath.IsAbs(all[i]) {
			t.Fatalf("List leaked absolute path %q", all[i])
		}
	}

	md, err := h.List("**/*.md")
	if err != nil {
		t.Fatalf("List(**/*.md): %v", err)
	}
	if len(md) != 1 || md[0] != "sub/c.md" {
		t.Fatalf("List(**/*.md) = %v", md)
	}
}

func TestManagerUnknownSandbox(t *testing.T) {
	m, err := NewManager(map[string]Config{"in": {Root: t.TempDir(), Mode: ModeReadOnly}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Handle("out"); err == nil {
		t.Fatalf("expected error for unknown sandbox")
	}
	if names := m.Names(); len(names) != 1 || names[0] != "in" {
		t.Fatalf("Names = %v", names)
	}
}

func TestNewHandleRejectsBadMode(t *testing.T) {
	_, err := NewHandle("bad", Config{Root: t.TempDir(), Mode: "append-only"})
	if err == nil {
		t.Fatalf("expected error for invalid mode")
	}
}
