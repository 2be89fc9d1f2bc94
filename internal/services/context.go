package services

import "context"

type contextKey string

const (
	bagIDKey      contextKey = "bag_id"
	stageKey      contextKey = "stage"
	identifierKey contextKey = "bag_identifier"
)

// WithBagID attaches a bag's registry id to the context.
func WithBagID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, bagIDKey, id)
}

// BagIDFromContext extracts a bag id previously attached with WithBagID.
func BagIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(bagIDKey).(int64)
	return id, ok
}

// WithStage attaches the running stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts a stage name previously attached with WithStage.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey).(string)
	return stage, ok
}

// WithIdentifier attaches a bag's external identifier to the context.
func WithIdentifier(ctx context.Context, identifier string) context.Context {
	return context.WithValue(ctx, identifierKey, identifier)
}

// IdentifierFromContext extracts an identifier previously attached with WithIdentifier.
func IdentifierFromContext(ctx context.Context) (string, bool) {
	identifier, ok := ctx.Value(identifierKey).(string)
	return identifier, ok
}
