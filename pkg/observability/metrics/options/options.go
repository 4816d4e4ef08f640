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

const (
	// DefaultEnabled exposes metrics unless disabled
	DefaultEnabled = true
	// DefaultPath is the route the metrics are served from
	DefaultPath = "/metrics"
)

// Options is a collection of Metrics Collection configurations
type Options struct {
	// Enabled adds the metrics route to the server
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Path is the route pattern the metrics are served from
	Path string `toml:"path" yaml:"path,omitempty"`
	// PprofAddress is the listen address of the profiling endpoints; empty disables them
	PprofAddress string `toml:"pprof_address" yaml:"pprof_address,omitempty"`
}

// New returns a new Options with default values
func New() *Options {
	return &Options{
		Enabled: DefaultEnabled,
		Path:    DefaultPath,
	}
}

// Clone returns an exact copy of the Options
func (o *Options) Clone() *Options {
	return &Options{
		Enabled:      o.Enabled,
		Path:         o.Path,
		PprofAddress: o.PprofAddress,
	}
}
