package storage

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestFileStoreSave(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	name, path, size, err := fs.Save("../../etc/report.txt", strings.NewReader("hello"), 0)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(name, "_report.txt") || strings.Contains(name, "/") {
		t.Fatalf("stored name = %q", name)
	}
	if size != 5 {
		t.Fatalf("size = %d, want 5", size)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Fatalf("read back = %q, %v", data, err)
	}
	if fs.Path(name) != path || !fs.Exists(name) {
		t.Fatalf("Path/Exists disagree with Save")
	}

	other, _, _, _ := fs.Save("report.txt", strings.NewReader("x"), 0)
	if other == name {
		t.Fatalf("stored names must be unique per upload")
	}
}

func TestFileStoreSaveEnforcesLimit(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	_, _, _, err := fs.Save("big.txt", strings.NewReader("0123456789"), 4)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("partial upload left behind: %v", entries)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"a.pdf":             "a.pdf",
		"dir/b.docx":        "b.docx",
		`C:\Users\x\c.xlsx`: "c.xlsx",
		"":                  "upload",
		"..":                "upload",
	}
	for in, want := range cases {
		if got := SafeFilename(in); got != want {
			t.Fatalf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
