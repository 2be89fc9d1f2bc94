package bagfile_test

import (
	"errors"
	"testing"

	"pictor/internal/bagfile"
	"pictor/internal/testsupport"
)

func parseOptions() bagfile.Options {
	return bagfile.Options{
		MetadataFile: "bag-info.txt",
		PayloadDir:   "data",
		OriginTag:    "External-Identifier",
	}
}

func TestParseObjectDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:             "bag-1",
		OriginIdentifier: "coll123",
		Objects: map[string][]string{
			"obj2": {"0002.tif", "0001.tif"},
			"obj1": {"0001.tif", "0003.tif", "0002.tif"},
		},
	})

	bag, err := bagfile.Parse(bagDir, parseOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bag.OriginIdentifier != "coll123" {
		t.Fatalf("unexpected origin: %q", bag.OriginIdentifier)
	}
	if len(bag.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(bag.Objects))
	}
	if bag.Objects[0].LocalIdentifier != "obj1" || bag.Objects[1].LocalIdentifier != "obj2" {
		t.Fatalf("objects out of order: %#v", bag.Objects)
	}
	// Pages sorted by sequence regardless of directory listing order.
	seqs := []int{}
	for _, page := range bag.Objects[0].Pages {
		seqs = append(seqs, page.SequenceNumber)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("unexpected sequence order: %v", seqs)
	}
}

func TestParseLoosePagesFormImplicitObject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:             "bag-flat",
		OriginIdentifier: "coll456",
		LoosePages:       []string{"0001.tif", "0002.tif"},
	})

	bag, err := bagfile.Parse(bagDir, parseOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(bag.Objects) != 1 || bag.Objects[0].LocalIdentifier != "obj1" {
		t.Fatalf("expected implicit obj1, got %#v", bag.Objects)
	}
}

func TestParseRejectsMixedPayload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:             "bag-mixed",
		OriginIdentifier: "coll789",
		Objects:          map[string][]string{"obj1": {"0001.tif"}},
		LoosePages:       []string{"0002.tif"},
	})

	_, err := bagfile.Parse(bagDir, parseOptions())
	if !errors.Is(err, bagfile.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseMissingIdentifier(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:       "bag-noid",
		LoosePages: []string{"0001.tif"},
	})

	_, err := bagfile.Parse(bagDir, parseOptions())
	if !errors.Is(err, bagfile.ErrMissingIdentifier) {
		t.Fatalf("expected ErrMissingIdentifier, got %v", err)
	}
}

func TestParseMissingMetadataFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:         "bag-nometa",
		OmitMetadata: true,
		LoosePages:   []string{"0001.tif"},
	})

	_, err := bagfile.Parse(bagDir, parseOptions())
	if !errors.Is(err, bagfile.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseRejectsUnknownExtension(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:             "bag-badext",
		OriginIdentifier: "coll1",
		LoosePages:       []string{"0001.tif", "notes0002.txt"},
	})

	_, err := bagfile.Parse(bagDir, parseOptions())
	if !errors.Is(err, bagfile.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseDuplicateSequenceIsAmbiguous(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:             "bag-dup",
		OriginIdentifier: "coll1",
		LoosePages:       []string{"0001.tif", "scan-1.tif"},
	})

	_, err := bagfile.Parse(bagDir, parseOptions())
	if !errors.Is(err, bagfile.ErrAmbiguousOrdering) {
		t.Fatalf("expected ErrAmbiguousOrdering, got %v", err)
	}
}

func TestSequenceNumber(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{"0001.tif", 1, true},
		{"scan_0042.tif", 42, true},
		{"page10.tiff", 10, true},
		{"cover.tif", 0, false},
	}
	for _, tc := range cases {
		seq, err := bagfile.SequenceNumber(tc.name)
		if tc.ok && (err != nil || seq != tc.want) {
			t.Fatalf("SequenceNumber(%q) = %d, %v; want %d", tc.name, seq, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("SequenceNumber(%q) expected error", tc.name)
		}
	}
}

func TestParseMetadataContinuationLines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bagDir := testsupport.WriteBag(t, cfg, testsupport.BagFixture{
		Name:             "bag-meta",
		OriginIdentifier: "coll-meta",
		LoosePages:       []string{"0001.tif"},
	})

	bag, err := bagfile.Parse(bagDir, parseOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if bag.Metadata["Bag-Software-Agent"] != "pictor-test" {
		t.Fatalf("unexpected metadata: %#v", bag.Metadata)
	}
}
