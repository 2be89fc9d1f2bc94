package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pictor/internal/config"
)

// BagFixture describes an inbound bag to synthesize for tests.
type BagFixture struct {
	// Name is the bag directory name under the inbound root.
	Name string
	// OriginIdentifier is written to the metadata file. Empty omits the tag.
	OriginIdentifier string
	// Objects maps a local identifier to its page file names. Pages are
	// created with non-empty placeholder content.
	Objects map[string][]string
	// LoosePages places page files directly in the payload directory.
	LoosePages []string
	// OmitMetadata skips writing the metadata file entirely.
	OmitMetadata bool
}

// WriteBag materializes a bag fixture under the configured inbound root and
// returns its path.
func WriteBag(t testing.TB, cfg *config.Config, fixture BagFixture) string {
	t.Helper()

	if fixture.Name == "" {
		fixture.Name = "bag-fixture"
	}
	bagDir := filepath.Join(cfg.Paths.InboundDir, fixture.Name)
	payloadDir := filepath.Join(bagDir, cfg.Ingest.PayloadDir)
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		t.Fatalf("create payload dir: %v", err)
	}

	if !fixture.OmitMetadata {
		body := "Bag-Software-Agent: pictor-test\n"
		if fixture.OriginIdentifier != "" {
			body += fmt.Sprintf("%s: %s\n", cfg.Ingest.OriginTag, fixture.OriginIdentifier)
		}
		metaPath := filepath.Join(bagDir, cfg.Ingest.MetadataFile)
		if err := os.WriteFile(metaPath, []byte(body), 0o644); err != nil {
			t.Fatalf("write metadata file: %v", err)
		}
	}

	for local, pages := range fixture.Objects {
		objectDir := filepath.Join(payloadDir, local)
		if err := os.MkdirAll(objectDir, 0o755); err != nil {
			t.Fatalf("create object dir: %v", err)
		}
		for _, page := range pages {
			writePage(t, filepath.Join(objectDir, page))
		}
	}
	for _, page := range fixture.LoosePages {
		writePage(t, filepath.Join(payloadDir, page))
	}

	return bagDir
}

func writePage(t testing.TB, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("tiff-bytes:"+filepath.Base(path)), 0o644); err != nil {
		t.Fatalf("write page %s: %v", path, err)
	}
}
