package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a bag in the pipeline.
type Status string

const (
	StatusCreated         Status = "created"
	StatusPrepared        Status = "prepared"
	StatusDerivativesMade Status = "derivatives_made"
	StatusPDFMade         Status = "pdf_made"
	StatusManifestMade    Status = "manifest_made"
	StatusUploaded        Status = "uploaded"
	StatusCleaned         Status = "cleaned"
	StatusFailed          Status = "failed"
)

var allStatuses = []Status{
	StatusCreated,
	StatusPrepared,
	StatusDerivativesMade,
	StatusPDFMade,
	StatusManifestMade,
	StatusUploaded,
	StatusCleaned,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Page is one source image and its derivative within an object.
type Page struct {
	SourceFile     string `json:"source_file"`
	DerivativeFile string `json:"derivative_file,omitempty"`
	SequenceNumber int    `json:"sequence_number"`
}

// Object is a logical archival unit within a bag, ordered by LocalIdentifier.
type Object struct {
	LocalIdentifier string `json:"local_identifier"`
	Pages           []Page `json:"pages"`
}

// Bag is the unit of work tracked by the registry. The record outlives the
// local files: after cleanup only path fields are cleared, so manifest
// recreation and audit queries keep working from the durable columns.
type Bag struct {
	ID               int64
	Identifier       string
	OriginIdentifier string
	Title            string
	Date             string
	Status           Status
	FailedStage      string
	ErrorMessage     string
	RetryCount       int
	SourcePath       string
	WorkingPath      string
	DerivativePath   string
	ObjectsJSON      string
	ManifestBuiltAt  *time.Time
	UploadedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Objects decodes the durable Object/Page structure recorded on the bag.
func (b *Bag) Objects() ([]Object, error) {
	if strings.TrimSpace(b.ObjectsJSON) == "" {
		return nil, nil
	}
	var objects []Object
	if err := json.Unmarshal([]byte(b.ObjectsJSON), &objects); err != nil {
		return nil, fmt.Errorf("decode bag objects: %w", err)
	}
	return objects, nil
}

// SetObjects encodes the Object/Page structure onto the bag record.
func (b *Bag) SetObjects(objects []Object) error {
	if len(objects) == 0 {
		b.ObjectsJSON = ""
		return nil
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("encode bag objects: %w", err)
	}
	b.ObjectsJSON = string(data)
	return nil
}

// PageCount returns the total number of pages across all objects.
func (b *Bag) PageCount() int {
	objects, err := b.Objects()
	if err != nil {
		return 0
	}
	count := 0
	for _, object := range objects {
		count += len(object.Pages)
	}
	return count
}

// SetFailed marks the bag as failed at the named stage.
func (b *Bag) SetFailed(stage, message string) {
	b.Status = StatusFailed
	b.FailedStage = stage
	b.ErrorMessage = message
}

// ClearFailure resets failure bookkeeping after a successful stage run.
func (b *Bag) ClearFailure() {
	b.FailedStage = ""
	b.ErrorMessage = ""
	b.RetryCount = 0
}

// ErrConflict indicates a compare-and-set update observed a different status
// than expected; another writer advanced the bag first.
var ErrConflict = errors.New("bag state changed concurrently")
