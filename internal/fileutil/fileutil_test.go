package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"pictor/internal/fileutil"
)

func TestCopyFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tif")
	if err := os.WriteFile(src, []byte("image-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	dst := filepath.Join(dir, "nested", "deeper", "dst.tif")
	if err := fileutil.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("unexpected destination contents: %q", data)
	}
}

func TestWriteFileAtomicLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	if err := fileutil.WriteFileAtomic(path, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "manifest.json" {
		t.Fatalf("expected only manifest.json, got %v", entries)
	}
}

func TestWriteFileAtomicOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := fileutil.WriteFileAtomic(path, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestNonEmptyFile(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.jp2")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	full := filepath.Join(dir, "full.jp2")
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatalf("write full: %v", err)
	}

	if fileutil.NonEmptyFile(empty) {
		t.Fatal("empty file reported as non-empty")
	}
	if !fileutil.NonEmptyFile(full) {
		t.Fatal("non-empty file reported as empty")
	}
	if fileutil.NonEmptyFile(filepath.Join(dir, "missing.jp2")) {
		t.Fatal("missing file reported as non-empty")
	}
}
