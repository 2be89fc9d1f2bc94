package bagfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"pictor/internal/registry"
)

// Parse failures, classified so the preparer can map them onto the stage
// error taxonomy.
var (
	ErrMalformed         = errors.New("malformed bag")
	ErrMissingIdentifier = errors.New("missing origin identifier")
	ErrAmbiguousOrdering = errors.New("ambiguous page ordering")
)

// recognized master image extensions, lowercase.
var imageExtensions = map[string]struct{}{
	".tif":  {},
	".tiff": {},
}

// Options describes the expected inbound bag layout.
type Options struct {
	MetadataFile string
	PayloadDir   string
	OriginTag    string
}

// Bag is the validated result of parsing an inbound bag directory. Page
// source paths point into the inbound payload; the preparer re-roots them
// when staging into the working directory.
type Bag struct {
	Path             string
	OriginIdentifier string
	Metadata         map[string]string
	Objects          []registry.Object
}

// Parse validates an unpacked bag directory and extracts its origin
// identifier and ordered object/page structure.
func Parse(bagPath string, opts Options) (*Bag, error) {
	info, err := os.Stat(bagPath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMalformed, bagPath)
	}

	metadata, err := ParseMetadata(filepath.Join(bagPath, opts.MetadataFile))
	if err != nil {
		return nil, err
	}

	origin := strings.TrimSpace(metadata[opts.OriginTag])
	if origin == "" {
		return nil, fmt.Errorf("%w: tag %q absent or empty in %s", ErrMissingIdentifier, opts.OriginTag, opts.MetadataFile)
	}

	objects, err := parsePayload(filepath.Join(bagPath, opts.PayloadDir))
	if err != nil {
		return nil, err
	}

	return &Bag{
		Path:             bagPath,
		OriginIdentifier: origin,
		Metadata:         metadata,
		Objects:          objects,
	}, nil
}

// ParseMetadata reads a bag-info.txt style file of "Tag: value" lines.
// Indented lines continue the previous tag's value.
func ParseMetadata(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata file %s: %v", ErrMalformed, filepath.Base(path), err)
	}
	defer file.Close()

	metadata := make(map[string]string)
	var lastTag string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if lastTag == "" {
				return nil, fmt.Errorf("%w: continuation line before any tag in %s", ErrMalformed, filepath.Base(path))
			}
			metadata[lastTag] += " " + strings.TrimSpace(line)
			continue
		}
		tag, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: metadata line %q has no tag separator", ErrMalformed, line)
		}
		lastTag = strings.TrimSpace(tag)
		metadata[lastTag] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return metadata, nil
}

// parsePayload builds the ordered object list. Subdirectories of the payload
// root are objects; a payload of loose files forms a single implicit object.
// Mixing the two layouts is malformed.
func parsePayload(payloadPath string) ([]registry.Object, error) {
	entries, err := os.ReadDir(payloadPath)
	if err != nil {
		return nil, fmt.Errorf("%w: payload directory: %v", ErrMalformed, err)
	}

	var dirs []string
	var loose []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		} else {
			loose = append(loose, entry.Name())
		}
	}

	switch {
	case len(dirs) == 0 && len(loose) == 0:
		return nil, fmt.Errorf("%w: payload directory is empty", ErrMalformed)
	case len(dirs) > 0 && len(loose) > 0:
		return nil, fmt.Errorf("%w: payload mixes object directories and loose files", ErrMalformed)
	case len(dirs) == 0:
		object, err := parseObject(payloadPath, "obj1", loose)
		if err != nil {
			return nil, err
		}
		return []registry.Object{object}, nil
	}

	sort.Strings(dirs)
	objects := make([]registry.Object, 0, len(dirs))
	for _, dir := range dirs {
		objectPath := filepath.Join(payloadPath, dir)
		names, err := listFiles(objectPath)
		if err != nil {
			return nil, err
		}
		object, err := parseObject(objectPath, dir, names)
		if err != nil {
			return nil, err
		}
		objects = append(objects, object)
	}
	return objects, nil
}

func parseObject(dir, localIdentifier string, names []string) (registry.Object, error) {
	if len(names) == 0 {
		return registry.Object{}, fmt.Errorf("%w: object %s has no pages", ErrMalformed, localIdentifier)
	}

	pages := make([]registry.Page, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := imageExtensions[ext]; !ok {
			return registry.Object{}, fmt.Errorf("%w: %s is not a recognized image file", ErrMalformed, name)
		}
		seq, err := SequenceNumber(name)
		if err != nil {
			return registry.Object{}, err
		}
		if prev, dup := seen[seq]; dup {
			return registry.Object{}, fmt.Errorf("%w: %s and %s both resolve to sequence %d in object %s",
				ErrAmbiguousOrdering, prev, name, seq, localIdentifier)
		}
		seen[seq] = name
		pages = append(pages, registry.Page{
			SourceFile:     filepath.Join(dir, name),
			SequenceNumber: seq,
		})
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].SequenceNumber < pages[j].SequenceNumber
	})
	return registry.Object{LocalIdentifier: localIdentifier, Pages: pages}, nil
}

// SequenceNumber derives a page's presentation order from the trailing digit
// run of its filename stem (e.g. "scan_0042.tif" -> 42).
func SequenceNumber(name string) (int, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, fmt.Errorf("%w: filename %q carries no sequence number", ErrAmbiguousOrdering, name)
	}
	seq, err := strconv.Atoi(stem[start:end])
	if err != nil {
		return 0, fmt.Errorf("%w: filename %q: %v", ErrAmbiguousOrdering, name, err)
	}
	return seq, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: object directory: %v", ErrMalformed, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			return nil, fmt.Errorf("%w: nested directory %s inside object", ErrMalformed, entry.Name())
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
