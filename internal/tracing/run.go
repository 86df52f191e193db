// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunSpan wraps an OpenTelemetry span with run-specific helpers. All
// methods are safe on a nil receiver so call sites don't need to guard
// against disabled tracing.
type RunSpan struct {
	span trace.Span
}

// StartRun creates a root span for a workflow execution.
func StartRun(ctx context.Context, tracer trace.Tracer, executionID, workflowID string) (context.Context, *RunSpan) {
	if tracer == nil {
		return ctx, nil
	}

	ctx, span := tracer.Start(ctx, fmt.Sprintf("workflow.run: %s", workflowID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("workflow.execution_id", executionID),
			attribute.String("span.type", "workflow.run"),
		),
	)

	return ctx, &RunSpan{span: span}
}

// StartStep creates a span for a single step dispatch.
func StartStep(ctx context.Context, tracer trace.Tracer, stepIndex int, stepType string) (context.Context, *RunSpan) {
	if tracer == nil {
		return ctx, nil
	}

	ctx, span := tracer.Start(ctx, fmt.Sprintf("step: %s", stepType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("step.index", stepIndex),
			attribute.String("step.type", stepType),
			attribute.String("span.type", "workflow.step"),
		),
	)

	return ctx, &RunSpan{span: span}
}

// SetAttributes adds key-value attributes to the span.
func (s *RunSpan) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}

	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			otelAttrs = append(otelAttrs, attribute.String(k, val))
		case int:
			otelAttrs = append(otelAttrs, attribute.Int(k, val))
		case bool:
			otelAttrs = append(otelAttrs, attribute.Bool(k, val))
		default:
			otelAttrs = append(otelAttrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	s.span.SetAttributes(otelAttrs...)
}

// RecordError records an error and marks the span status accordingly.
func (s *RunSpan) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}

	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End marks the span as complete.
func (s *RunSpan) End() {
	if s == nil || s.span == nil {
		return
	}

	s.span.End()
}
