package iiif

import (
	"encoding/json"
	"fmt"
	"strings"

	"pictor/internal/registry"
)

const (
	presentationContext = "http://iiif.io/api/presentation/2/context.json"
	imageContext        = "http://iiif.io/api/image/2/context.json"
	imageProfile        = "http://iiif.io/api/image/2/level2.json"
)

// Manifest is a IIIF Presentation 2 manifest.
type Manifest struct {
	Context     string     `json:"@context"`
	ID          string     `json:"@id"`
	Type        string     `json:"@type"`
	Label       string     `json:"label"`
	Metadata    []Metadata `json:"metadata,omitempty"`
	Sequences   []Sequence `json:"sequences"`
	Structures  []Range    `json:"structures,omitempty"`
	Attribution string     `json:"attribution,omitempty"`
}

// Metadata is a label/value descriptive pair.
type Metadata struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Sequence orders the canvases for paged viewing.
type Sequence struct {
	ID       string   `json:"@id"`
	Type     string   `json:"@type"`
	Canvases []Canvas `json:"canvases"`
}

// Canvas presents a single page image.
type Canvas struct {
	ID     string       `json:"@id"`
	Type   string       `json:"@type"`
	Label  string       `json:"label"`
	Images []Annotation `json:"images"`
}

// Annotation paints an image resource onto its canvas.
type Annotation struct {
	Type       string   `json:"@type"`
	Motivation string   `json:"motivation"`
	Resource   Resource `json:"resource"`
	On         string   `json:"on"`
}

// Resource points at a IIIF Image API service.
type Resource struct {
	ID      string  `json:"@id"`
	Type    string  `json:"@type"`
	Format  string  `json:"format"`
	Service Service `json:"service"`
}

// Service is the Image API endpoint serving a page.
type Service struct {
	Context string `json:"@context"`
	ID      string `json:"@id"`
	Profile string `json:"profile"`
}

// Range groups the canvases of one physical object within the bag.
type Range struct {
	ID       string   `json:"@id"`
	Type     string   `json:"@type"`
	Label    string   `json:"label"`
	Canvases []string `json:"canvases"`
}

// BuildInput carries everything needed to produce a manifest. Objects must
// already be in presentation order with pages sorted by sequence number.
type BuildInput struct {
	OriginIdentifier string
	Title            string
	Date             string
	Objects          []registry.Object
}

// Builder produces manifests whose identifiers hang off fixed base URLs, so
// rebuilding from the same input yields byte-identical output.
type Builder struct {
	imageBase    string
	manifestBase string
}

// NewBuilder constructs a Builder. Base URLs are normalized to no trailing slash.
func NewBuilder(imageBaseURL, manifestBaseURL string) *Builder {
	return &Builder{
		imageBase:    strings.TrimRight(imageBaseURL, "/"),
		manifestBase: strings.TrimRight(manifestBaseURL, "/"),
	}
}

// ManifestID returns the manifest URL for an origin identifier.
func (b *Builder) ManifestID(origin string) string {
	return fmt.Sprintf("%s/%s/manifest.json", b.manifestBase, origin)
}

// ImageServiceID returns the Image API endpoint for one page of one object.
func (b *Builder) ImageServiceID(origin, local string, sequence int) string {
	return fmt.Sprintf("%s/%s/%s/%04d", b.imageBase, origin, local, sequence)
}

// Build assembles the manifest for one bag.
func (b *Builder) Build(in BuildInput) *Manifest {
	manifestID := b.ManifestID(in.OriginIdentifier)

	manifest := &Manifest{
		Context: presentationContext,
		ID:      manifestID,
		Type:    "sc:Manifest",
		Label:   label(in.Title, in.Date),
	}
	if in.Date != "" {
		manifest.Metadata = append(manifest.Metadata, Metadata{Label: "Date", Value: in.Date})
	}

	sequence := Sequence{
		ID:   manifestID + "#sequence-1",
		Type: "sc:Sequence",
	}

	pageNumber := 0
	for _, object := range in.Objects {
		objectRange := Range{
			ID:    fmt.Sprintf("%s#range-%s", manifestID, object.LocalIdentifier),
			Type:  "sc:Range",
			Label: object.LocalIdentifier,
		}
		for _, page := range object.Pages {
			pageNumber++
			serviceID := b.ImageServiceID(in.OriginIdentifier, object.LocalIdentifier, page.SequenceNumber)
			canvasID := fmt.Sprintf("%s#canvas-%s-%04d", manifestID, object.LocalIdentifier, page.SequenceNumber)

			canvas := Canvas{
				ID:    canvasID,
				Type:  "sc:Canvas",
				Label: fmt.Sprintf("Page %d", pageNumber),
				Images: []Annotation{{
					Type:       "oa:Annotation",
					Motivation: "sc:painting",
					Resource: Resource{
						ID:     serviceID + "/full/full/0/default.jpg",
						Type:   "dctypes:Image",
						Format: "image/jpeg",
						Service: Service{
							Context: imageContext,
							ID:      serviceID,
							Profile: imageProfile,
						},
					},
					On: canvasID,
				}},
			}
			sequence.Canvases = append(sequence.Canvases, canvas)
			objectRange.Canvases = append(objectRange.Canvases, canvasID)
		}
		manifest.Structures = append(manifest.Structures, objectRange)
	}

	manifest.Sequences = []Sequence{sequence}
	return manifest
}

// Encode renders the manifest as stable, indented JSON.
func Encode(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

func label(title, date string) string {
	title = strings.TrimSpace(title)
	date = strings.TrimSpace(date)
	switch {
	case title == "" && date == "":
		return "Untitled"
	case date == "":
		return title
	case title == "":
		return date
	default:
		return title + ", " + date
	}
}
