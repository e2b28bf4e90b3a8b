package archivezip

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestZip(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "test.vsix")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return zipPath
}

func TestOpen_ValidArchiveListsEntries(t *testing.T) {
	zipPath := writeTestZip(t, map[string]string{
		"extension/package.json": `{"name":"hello"}`,
		"extension/out/ext.js":   "console.log('hi')",
	})

	r, err := Open(zipPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
}

func TestOpen_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.vsix")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("../../etc/passwd")
	w.Write([]byte("pwned"))
	zw.Close()
	f.Close()

	if _, err := Open(zipPath); err == nil {
		t.Fatal("expected ErrZipSlip, got nil")
	}
}

func TestOpen_BadArchive(t *testing.T) {
	dir := t.TempDir()
	notZip := filepath.Join(dir, "notazip.vsix")
	if err := os.WriteFile(notZip, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Open(notZip); err == nil {
		t.Fatal("expected ErrBadArchive, got nil")
	}
}

func TestRead_EntryTooLarge(t *testing.T) {
	content := bytes.Repeat([]byte("a"), 1024)
	zipPath := writeTestZip(t, map[string]string{
		"extension/big.js": string(content),
	})

	r, err := Open(zipPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Read("extension/big.js", 100); err == nil {
		t.Fatal("expected ErrEntryTooLarge, got nil")
	}

	data, err := r.Read("extension/big.js", 2048)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data) != 1024 {
		t.Fatalf("want 1024 bytes, got %d", len(data))
	}
}

func TestRead_NotFound(t *testing.T) {
	zipPath := writeTestZip(t, map[string]string{"a.js": "x"})
	r, err := Open(zipPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Read("missing.js", 1024); err == nil {
		t.Fatal("expected ErrNotFound, got nil")
	}
}
