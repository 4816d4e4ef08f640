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

// Package stdout provides a Stdout Tracer
package stdout

import (
	"context"
	"io"
	"os"

	"github.com/any2feed/any2feed/pkg/observability/tracing"
	"github.com/any2feed/any2feed/pkg/observability/tracing/options"

	"go.opentelemetry.io/otel/attribute"
	stdout "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// New returns a new Stdout Tracer. When opts.Output is set, spans are
// appended to that file instead of stdout.
func New(opts *options.Options) (*tracing.Tracer, error) {
	if opts == nil {
		opts = options.New()
		opts.Provider = options.ProviderStdout
	}
	var w io.Writer = os.Stdout
	var f *os.File
	if opts.Output != "" {
		var err error
		f, err = os.OpenFile(opts.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
	}
	return NewWithWriter(opts, w, f)
}

// NewWithWriter returns a Stdout Tracer that writes spans to w. closer, when
// not nil, is closed after the tracer provider shuts down.
func NewWithWriter(opts *options.Options, w io.Writer, closer io.Closer) (*tracing.Tracer, error) {
	o := []stdout.Option{stdout.WithWriter(w)}
	if opts.PrettyPrint {
		o = append(o, stdout.WithPrettyPrint())
	}
	exp, err := stdout.New(o...)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch opts.SampleRate {
	case 0:
		sampler = sdktrace.NeverSample()
	case 1:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(opts.SampleRate)
	}

	tags := []attribute.KeyValue{attribute.String("service.name", opts.ServiceName)}
	tags = append(tags, tracing.Tags(opts.Tags).ToAttr()...)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewWithAttributes("", tags...)),
	)

	return &tracing.Tracer{
		Name:   opts.ServiceName,
		Tracer: tp.Tracer(opts.ServiceName),
		ShutdownFunc: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if closer != nil {
				closer.Close()
			}
			return err
		},
		Options: opts,
	}, nil
}
