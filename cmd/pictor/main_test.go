package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pictor/internal/config"
	"pictor/internal/registry"
)

type cliTestEnv struct {
	configPath string
	inboundDir string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	inbound := filepath.Join(base, "inbound")
	content := fmt.Sprintf(`[paths]
inbound_dir = %q
work_dir = %q
derivative_dir = %q
log_dir = %q

[storage]
bucket = "derivatives-test"

[iiif]
image_base_url = "https://images.test/iiif/2"
manifest_base_url = "https://manifests.test"
`,
		inbound,
		filepath.Join(base, "work"),
		filepath.Join(base, "derivatives"),
		filepath.Join(base, "logs"),
	)

	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{configPath: configPath, inboundDir: inbound, baseDir: base}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeBag(t *testing.T, env *cliTestEnv, name, origin string) string {
	t.Helper()
	bagDir := filepath.Join(env.inboundDir, name)
	payload := filepath.Join(bagDir, "data", "obj1")
	if err := os.MkdirAll(payload, 0o755); err != nil {
		t.Fatalf("create payload: %v", err)
	}
	meta := fmt.Sprintf("External-Identifier: %s\n", origin)
	if err := os.WriteFile(filepath.Join(bagDir, "bag-info.txt"), []byte(meta), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	for _, page := range []string{"0001.tif", "0002.tif"} {
		if err := os.WriteFile(filepath.Join(payload, page), []byte("tiff"), 0o644); err != nil {
			t.Fatalf("write page: %v", err)
		}
	}
	return bagDir
}

func TestCLIAddListShow(t *testing.T) {
	env := setupCLITestEnv(t)
	bagDir := writeBag(t, env, "accession-1", "b42")

	out, _, err := runCLI(t, env.configPath, "add", bagDir)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "registered bag 1") {
		t.Fatalf("unexpected add output: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var rows []bagRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].Status != "created" {
		t.Fatalf("unexpected list rows: %+v", rows)
	}

	out, _, err = runCLI(t, env.configPath, "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var detail bagDetail
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode show output: %v\n%s", err, out)
	}
	if detail.SourcePath != bagDir {
		t.Fatalf("unexpected source path %q", detail.SourcePath)
	}
}

func TestCLIPrepareStage(t *testing.T) {
	env := setupCLITestEnv(t)
	bagDir := writeBag(t, env, "accession-1", "b42")

	if _, _, err := runCLI(t, env.configPath, "add", bagDir); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "prepare", "1")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.Contains(out, "is now prepared") {
		t.Fatalf("unexpected prepare output: %q", out)
	}

	// Re-running a completed stage is a precondition failure, not a re-run.
	if _, _, err := runCLI(t, env.configPath, "prepare", "1"); err == nil {
		t.Fatal("expected precondition failure on second prepare")
	}
}

func TestCLIListFiltersByStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	first := writeBag(t, env, "accession-1", "b1")
	second := writeBag(t, env, "accession-2", "b2")

	for _, dir := range []string{first, second} {
		if _, _, err := runCLI(t, env.configPath, "add", dir); err != nil {
			t.Fatalf("add %s: %v", dir, err)
		}
	}
	if _, _, err := runCLI(t, env.configPath, "prepare", "1"); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "list", "--json", "--status", "prepared")
	if err != nil {
		t.Fatalf("list --status: %v", err)
	}
	var rows []bagRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 1 {
		t.Fatalf("unexpected filtered rows: %+v", rows)
	}

	if _, _, err := runCLI(t, env.configPath, "list", "--status", "bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestCLIShowUnknownBag(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env.configPath, "show", "99"); err == nil {
		t.Fatal("expected error for unknown bag")
	}
}

func TestCLIResolveBagByIdentifier(t *testing.T) {
	env := setupCLITestEnv(t)
	bagDir := writeBag(t, env, "accession-1", "b42")
	if _, _, err := runCLI(t, env.configPath, "add", bagDir); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Look the identifier up straight from the registry the CLI created.
	store := openTestStore(t, env)
	bag, err := store.GetByID(context.Background(), 1)
	if err != nil || bag == nil {
		t.Fatalf("load bag: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "show", bag.Identifier)
	if err != nil {
		t.Fatalf("show by identifier: %v", err)
	}
	if !strings.Contains(out, bag.Identifier) {
		t.Fatalf("unexpected show output: %q", out)
	}
}

func openTestStore(t *testing.T, env *cliTestEnv) *registry.Store {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
