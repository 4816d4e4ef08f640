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

package status

import "testing"

func TestString(t *testing.T) {
	tests := map[LookupStatus]string{
		LookupStatusHit:       "hit",
		LookupStatusKeyMiss:   "kmiss",
		LookupStatusProxyOnly: "proxy-only",
		LookupStatusProxyHit:  "proxy-hit",
		LookupStatusError:     "error",
		LookupStatus(42):      "42",
	}
	for s, expected := range tests {
		if v := s.String(); v != expected {
			t.Errorf("expected %s got %s", expected, v)
		}
	}
}
