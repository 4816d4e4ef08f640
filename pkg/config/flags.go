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

package config

import (
	"strings"

	"github.com/any2feed/any2feed/pkg/observability/logging/level"
)

// Flags holds the values provided on the command line. Zero values leave
// the file and environment settings in place.
type Flags struct {
	// ConfigPath is the config file; empty reads DefaultConfigPath if present
	ConfigPath string
	// Verbosity is the number of -v flags
	Verbosity int
	// LogFile overrides the log file
	LogFile string
	// Port overrides the listen port
	Port uint16
	// Threads overrides the worker count
	Threads uint8
}

func (c *Config) loadFlags(f *Flags) {
	if f.Port != 0 {
		c.Server.Port = f.Port
	}
	if f.Threads != 0 {
		c.Server.Workers = f.Threads
	}
	if f.LogFile != "" {
		c.Logging.LogFile = f.LogFile
	}
	c.Logging.LogLevel = string(level.FromVerbosity(f.Verbosity,
		level.Level(strings.ToLower(c.Logging.LogLevel))))
}
