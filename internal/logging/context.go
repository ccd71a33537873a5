package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type requestCtxKey struct{}
type callerCtxKey struct{}
type collectionCtxKey struct{}

// WithRequestID attaches a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext extracts the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithCaller attaches the caller's user ID to the context.
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, userID)
}

// CallerFromContext extracts the caller's user ID, or "".
func CallerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callerCtxKey{}).(string)
	return id
}

// WithCollection attaches a collection ID to the context.
func WithCollection(ctx context.Context, collectionID string) context.Context {
	return context.WithValue(ctx, collectionCtxKey{}, collectionID)
}

// CollectionFromContext extracts the collection ID, or "".
func CollectionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(collectionCtxKey{}).(string)
	return id
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if caller := CallerFromContext(ctx); caller != "" {
		fields = append(fields, zap.String("caller.id", caller))
	}
	if collectionID := CollectionFromContext(ctx); collectionID != "" {
		fields = append(fields, zap.String("collection.id", collectionID))
	}

	return fields
}
