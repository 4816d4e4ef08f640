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

// Package registration builds the configured Tracer
package registration

import (
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/observability/tracing"
	"github.com/any2feed/any2feed/pkg/observability/tracing/exporters/stdout"
	"github.com/any2feed/any2feed/pkg/observability/tracing/options"
)

// New returns the Tracer for the configured provider. A nil or "none"
// provider returns a tracer that records nothing.
func New(o *options.Options) (*tracing.Tracer, error) {
	if o == nil {
		return tracing.NoopTracer(), nil
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	switch o.Provider {
	case options.ProviderStdout:
		tr, err := stdout.New(o)
		if err != nil {
			return nil, err
		}
		logger.Info("tracer registered", logging.Pairs{
			"provider":    o.Provider,
			"serviceName": o.ServiceName,
			"sampleRate":  o.SampleRate,
		})
		return tr, nil
	}
	return tracing.NoopTracer(), nil
}
