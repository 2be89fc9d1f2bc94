package jp2_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pictor/internal/config"
	"pictor/internal/jp2"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/testsupport"
)

type fakeEncoder struct {
	mu       sync.Mutex
	failPage string
	encoded  []string
}

func (f *fakeEncoder) Encode(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failPage != "" && filepath.Base(src) == f.failPage {
		return errors.New("exit status 1")
	}
	f.mu.Lock()
	f.encoded = append(f.encoded, dst)
	f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("jp2"), 0o644)
}

func preparedBag(t *testing.T, cfg *config.Config, pages map[string][]int) *registry.Bag {
	t.Helper()
	bag := &registry.Bag{
		Identifier:     "uuid-1",
		Status:         registry.StatusPrepared,
		WorkingPath:    filepath.Join(cfg.Paths.WorkDir, "uuid-1"),
		DerivativePath: filepath.Join(cfg.Paths.DerivativeDir, "uuid-1"),
	}
	var objects []registry.Object
	for local, seqs := range pages {
		object := registry.Object{LocalIdentifier: local}
		for _, seq := range seqs {
			name := filepath.Join(local, filePage(seq))
			abs := filepath.Join(bag.WorkingPath, name)
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(abs, []byte("tiff"), 0o644); err != nil {
				t.Fatalf("write master: %v", err)
			}
			object.Pages = append(object.Pages, registry.Page{SourceFile: name, SequenceNumber: seq})
		}
		objects = append(objects, object)
	}
	if err := bag.SetObjects(objects); err != nil {
		t.Fatalf("set objects: %v", err)
	}
	return bag
}

func filePage(seq int) string {
	return fmt.Sprintf("scan_%04d.tif", seq)
}

func TestExecuteEncodesAllPages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	encoder := &fakeEncoder{}
	bag := preparedBag(t, cfg, map[string][]int{"obj1": {1, 2}, "obj2": {1}})

	handler := jp2.New(cfg, encoder, nil)
	if err := handler.Prepare(context.Background(), bag); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := handler.Execute(context.Background(), bag); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(encoder.encoded) != 3 {
		t.Fatalf("expected 3 encodes, got %d", len(encoder.encoded))
	}
	objects, _ := bag.Objects()
	for _, object := range objects {
		for _, page := range object.Pages {
			if page.DerivativeFile != jp2.DerivativeName(page.SequenceNumber) {
				t.Fatalf("derivative name not recorded: %+v", page)
			}
			dst := filepath.Join(bag.DerivativePath, object.LocalIdentifier, page.DerivativeFile)
			if _, err := os.Stat(dst); err != nil {
				t.Fatalf("derivative missing: %v", err)
			}
		}
	}
}

func TestExecuteSkipsExistingDerivatives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	encoder := &fakeEncoder{}
	bag := preparedBag(t, cfg, map[string][]int{"obj1": {1, 2}})

	existing := filepath.Join(bag.DerivativePath, "obj1", jp2.DerivativeName(1))
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(existing, []byte("already"), 0o644); err != nil {
		t.Fatalf("write existing: %v", err)
	}

	if err := jp2.New(cfg, encoder, nil).Execute(context.Background(), bag); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(encoder.encoded) != 1 {
		t.Fatalf("expected 1 encode after skip, got %d", len(encoder.encoded))
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "already" {
		t.Fatal("existing derivative must not be rewritten")
	}
}

func TestExecuteFailureNamesPage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	encoder := &fakeEncoder{failPage: "scan_0002.tif"}
	bag := preparedBag(t, cfg, map[string][]int{"obj1": {1, 2, 3}})

	err := jp2.New(cfg, encoder, nil).Execute(context.Background(), bag)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "scan_0002.tif") {
		t.Fatalf("error should name the failing page, got %v", err)
	}
}

func TestExecuteCancellationPropagates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	encoder := &fakeEncoder{}
	bag := preparedBag(t, cfg, map[string][]int{"obj1": {1, 2}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := jp2.New(cfg, encoder, nil).Execute(ctx, bag)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPrepareRequiresWorkingPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bag := &registry.Bag{Identifier: "uuid-1", WorkingPath: filepath.Join(cfg.Paths.WorkDir, "missing")}

	err := jp2.New(cfg, &fakeEncoder{}, nil).Prepare(context.Background(), bag)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}
