package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StorageOperation names an object store call being traced.
type StorageOperation string

const (
	StorageOperationPut  StorageOperation = "PutObject"
	StorageOperationGet  StorageOperation = "GetObject"
	StorageOperationList StorageOperation = "ListObjectsV2"
)

// StartStorageSpan creates a client span for an object store operation.
// Returns the new context and a function to end the span.
//
//	ctx, endSpan := tracing.StartStorageSpan(ctx, bucket, tracing.StorageOperationPut)
//	defer endSpan(err)
func StartStorageSpan(ctx context.Context, bucket string, op StorageOperation) (context.Context, func(error)) {
	tracer := otel.Tracer("portal/archive")

	ctx, span := tracer.Start(ctx, "archive "+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "aws-api"),
			attribute.String("rpc.service", "S3"),
			attribute.String("rpc.method", string(op)),
		),
	)
	if bucket != "" {
		span.SetAttributes(attribute.String("aws.s3.bucket", bucket))
	}

	return ctx, endFunc(span)
}

// StartSpan creates a new span for a general operation.
func StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := otel.Tracer("portal").Start(ctx, name)
	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
