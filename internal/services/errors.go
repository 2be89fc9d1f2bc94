package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for stage error classification. Stages wrap failures with
// exactly one marker so callers (and the registry record) can distinguish
// operator-input problems from tool failures and transient transport errors.
var (
	// ErrValidation marks malformed input that an operator must correct
	// (bad bag structure, missing or ambiguous identifiers).
	ErrValidation = errors.New("validation error")
	// ErrPrecondition marks a stage invoked against a bag that is not in the
	// stage's required state. Safe to treat as a no-op by callers.
	ErrPrecondition = errors.New("precondition failed")
	// ErrExternalTool marks an external binary that exited non-zero, timed
	// out, or produced no usable output.
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration marks unusable configuration discovered at run time.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks an unknown bag or public identifier.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks failures worth retrying with backoff (upload
	// transport errors).
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a stage error may be retried automatically.
// Validation and precondition failures require operator action instead.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPrecondition),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
