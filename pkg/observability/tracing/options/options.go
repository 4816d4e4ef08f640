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

package options

import (
	"fmt"
	"maps"

	"github.com/any2feed/any2feed/pkg/errors"
)

const (
	// ProviderNone disables tracing
	ProviderNone = "none"
	// ProviderStdout writes finished spans as JSON
	ProviderStdout = "stdout"

	// DefaultTracerProvider is the default tracing provider
	DefaultTracerProvider = ProviderNone
	// DefaultTracerServiceName is the default service name attached to spans
	DefaultTracerServiceName = "any2feed"
)

// Options is a Tracing Options collection
type Options struct {
	Provider    string            `toml:"provider" yaml:"provider,omitempty"`
	ServiceName string            `toml:"service_name" yaml:"service_name,omitempty"`
	SampleRate  float64           `toml:"sample_rate" yaml:"sample_rate,omitempty"`
	Tags        map[string]string `toml:"tags" yaml:"tags,omitempty"`
	// Output is the file spans are written to; empty writes to stdout
	Output      string `toml:"output" yaml:"output,omitempty"`
	PrettyPrint bool   `toml:"pretty_print" yaml:"pretty_print,omitempty"`
}

// New returns a new *Options with the default values
func New() *Options {
	return &Options{
		Provider:    DefaultTracerProvider,
		ServiceName: DefaultTracerServiceName,
		SampleRate:  1,
	}
}

// Clone returns an exact copy of a tracing config
func (o *Options) Clone() *Options {
	o2 := *o
	o2.Tags = maps.Clone(o.Tags)
	return &o2
}

// Validate checks the provider name and sample rate
func (o *Options) Validate() error {
	switch o.Provider {
	case ProviderNone, ProviderStdout:
	default:
		return fmt.Errorf("%w: unknown tracing provider %q", errors.ErrInvalidOptions, o.Provider)
	}
	if o.SampleRate < 0 || o.SampleRate > 1 {
		return fmt.Errorf("%w: tracing sample_rate must be between 0 and 1", errors.ErrInvalidOptions)
	}
	return nil
}
