/*
 * Copyright 2023 The any2feed Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package span starts and finishes the spans that wrap served requests
package span

import (
	"context"

	"github.com/any2feed/any2feed/pkg/observability/tracing"
	"github.com/any2feed/any2feed/pkg/server/request"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PrepareRequest returns a copy of r whose context carries a new "request"
// span, along with that span. The span is nil when tr is nil.
func PrepareRequest(r *request.Request, tr *tracing.Tracer) (*request.Request, trace.Span) {
	if tr == nil || tr.Tracer == nil {
		return r, nil
	}
	ctx, span := tr.Start(r.Context(), "request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", string(r.Method)),
			attribute.String("http.target", r.FullPath),
		),
	)
	return r.WithContext(ctx), span
}

// NewChildSpan returns the context with a new Span situated as the child of the previous span
func NewChildSpan(ctx context.Context, tr *tracing.Tracer,
	spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tr == nil || tr.Tracer == nil {
		return ctx, nil
	}
	return tr.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Finish sets the status of span from the HTTP status and ends it. A nil
// span is ignored.
func Finish(span trace.Span, status int, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(tracing.HTTPToCode(status), "")
	span.End()
}
