package stage

import (
	"context"
	"strings"

	"pictor/internal/registry"
)

// Handler is the contract every pipeline stage implements. Prepare validates
// preconditions beyond the registry state (directories, tool configuration);
// Execute performs the transformation and may mutate the bag's metadata,
// which the executor persists on success.
type Handler interface {
	Prepare(context.Context, *registry.Bag) error
	Execute(context.Context, *registry.Bag) error
}

// Stage names one pipeline step. The set is closed: transitions are resolved
// by exhaustive switch, never by string-keyed lookup of arbitrary names.
type Stage string

const (
	Prepare         Stage = "prepare"
	MakeDerivatives Stage = "make-derivatives"
	MakePDF         Stage = "make-pdf"
	MakeManifest    Stage = "make-manifest"
	Upload          Stage = "upload"
	Cleanup         Stage = "cleanup"
)

// Definition binds a stage to its exact precondition state and the state it
// advances the bag to on success.
type Definition struct {
	Stage        Stage
	Precondition registry.Status
	Done         registry.Status
}

// TransitionFor resolves a stage's state transition. The second return is
// false for unknown stages.
func TransitionFor(s Stage) (Definition, bool) {
	switch s {
	case Prepare:
		return Definition{Stage: s, Precondition: registry.StatusCreated, Done: registry.StatusPrepared}, true
	case MakeDerivatives:
		return Definition{Stage: s, Precondition: registry.StatusPrepared, Done: registry.StatusDerivativesMade}, true
	case MakePDF:
		return Definition{Stage: s, Precondition: registry.StatusDerivativesMade, Done: registry.StatusPDFMade}, true
	case MakeManifest:
		return Definition{Stage: s, Precondition: registry.StatusPDFMade, Done: registry.StatusManifestMade}, true
	case Upload:
		return Definition{Stage: s, Precondition: registry.StatusManifestMade, Done: registry.StatusUploaded}, true
	case Cleanup:
		return Definition{Stage: s, Precondition: registry.StatusUploaded, Done: registry.StatusCleaned}, true
	default:
		return Definition{}, false
	}
}

// All returns the pipeline stages in execution order.
func All() []Stage {
	return []Stage{Prepare, MakeDerivatives, MakePDF, MakeManifest, Upload, Cleanup}
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	s := Stage(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := TransitionFor(s); !ok {
		return "", false
	}
	return s, true
}
