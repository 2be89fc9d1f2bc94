package pdfcat_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pictor/internal/services/pdfcat"
)

type scriptedExecutor struct {
	failBinary string
	output     []string
	empty      bool
	calls      [][]string
}

func (e *scriptedExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	e.calls = append(e.calls, append([]string{binary}, args...))
	for _, line := range e.output {
		onOutput(line)
	}
	if binary == e.failBinary {
		return errors.New("exit status 1")
	}

	// img2pdf style writes to args[1] ("-o out"); ocrmypdf style writes to
	// the last argument.
	out := args[len(args)-1]
	if args[0] == "-o" {
		out = args[1]
	}
	data := []byte("pdf-bytes")
	if e.empty {
		data = nil
	}
	return os.WriteFile(out, data, 0o644)
}

func newClient(t *testing.T, exec *scriptedExecutor, ocr bool) *pdfcat.Client {
	t.Helper()
	cfg := pdfcat.Config{Binary: "img2pdf", TimeoutSeconds: 60}
	if ocr {
		cfg.OCRBinary = "ocrmypdf"
		cfg.OCRTimeoutSeconds = 120
	}
	client, err := pdfcat.New(cfg, pdfcat.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestAssembleWritesPDF(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out", "obj1.pdf")
	exec := &scriptedExecutor{}

	client := newClient(t, exec, false)
	images := []string{filepath.Join(dir, "0001.jp2"), filepath.Join(dir, "0002.jp2")}
	if err := client.Assemble(context.Background(), images, dst); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if data, err := os.ReadFile(dst); err != nil || string(data) != "pdf-bytes" {
		t.Fatalf("unexpected pdf contents: %q, %v", data, err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected one tool invocation, got %d", len(exec.calls))
	}
	call := exec.calls[0]
	if call[0] != "img2pdf" || call[1] != "-o" {
		t.Fatalf("unexpected invocation: %v", call)
	}
	if got := call[3:]; len(got) != 2 || got[0] != images[0] || got[1] != images[1] {
		t.Fatalf("image order not preserved: %v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the pdf, got %v", entries)
	}
}

func TestAssembleRunsOCRPass(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "obj1.pdf")
	exec := &scriptedExecutor{}

	client := newClient(t, exec, true)
	if err := client.Assemble(context.Background(), []string{filepath.Join(dir, "0001.jp2")}, dst); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if len(exec.calls) != 2 {
		t.Fatalf("expected assemble + ocr invocations, got %v", exec.calls)
	}
	ocr := exec.calls[1]
	if ocr[0] != "ocrmypdf" || ocr[1] != "--skip-text" {
		t.Fatalf("unexpected ocr invocation: %v", ocr)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("final pdf missing: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Fatalf("temporary leftover %s", entry.Name())
		}
	}
}

func TestAssembleToolFailureIncludesOutputTail(t *testing.T) {
	dir := t.TempDir()
	exec := &scriptedExecutor{failBinary: "img2pdf", output: []string{"ERROR: unsupported colorspace"}}

	client := newClient(t, exec, false)
	err := client.Assemble(context.Background(), []string{filepath.Join(dir, "a.jp2")}, filepath.Join(dir, "a.pdf"))
	if err == nil {
		t.Fatal("expected assemble failure")
	}
	if !strings.Contains(err.Error(), "unsupported colorspace") {
		t.Fatalf("expected tool output in error, got %v", err)
	}
}

func TestAssembleOCRFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "a.pdf")
	exec := &scriptedExecutor{failBinary: "ocrmypdf"}

	client := newClient(t, exec, true)
	if err := client.Assemble(context.Background(), []string{filepath.Join(dir, "a.jp2")}, dst); err == nil {
		t.Fatal("expected ocr failure")
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("failed assembly must not leave a final pdf")
	}
}

func TestAssembleEmptyOutputIsFailure(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "a.pdf")
	exec := &scriptedExecutor{empty: true}

	client := newClient(t, exec, false)
	if err := client.Assemble(context.Background(), []string{filepath.Join(dir, "a.jp2")}, dst); err == nil {
		t.Fatal("expected failure for empty output")
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("empty output must not be finalized")
	}
}

func TestAssembleRequiresImages(t *testing.T) {
	client := newClient(t, &scriptedExecutor{}, false)
	if err := client.Assemble(context.Background(), nil, filepath.Join(t.TempDir(), "a.pdf")); err == nil {
		t.Fatal("expected error for empty image list")
	}
}
