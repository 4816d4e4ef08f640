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
	"os"
	"strconv"
)

const (
	// Environment variables
	evPort     = "ANY2FEED_PORT"
	evThreads  = "ANY2FEED_THREADS"
	evLogLevel = "ANY2FEED_LOG_LEVEL"
	evLogFile  = "ANY2FEED_LOG_FILE"
)

func (c *Config) loadEnvVars() {
	// Port
	if x := os.Getenv(evPort); x != "" {
		if y, err := strconv.ParseUint(x, 10, 16); err == nil {
			c.Server.Port = uint16(y)
		}
	}

	// Threads
	if x := os.Getenv(evThreads); x != "" {
		if y, err := strconv.ParseUint(x, 10, 8); err == nil {
			c.Server.Workers = uint8(y)
		}
	}

	// LogLevel
	if x := os.Getenv(evLogLevel); x != "" {
		c.Logging.LogLevel = x
	}

	// LogFile
	if x := os.Getenv(evLogFile); x != "" {
		c.Logging.LogFile = x
	}
}
