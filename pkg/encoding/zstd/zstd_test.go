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

package zstd

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestDecodeEncode(t *testing.T) {
	const expected = "any2feed"
	b, err := Encode([]byte(expected))
	if err != nil {
		t.Error(err)
	}
	if !IsEncoded(b) {
		t.Error("expected zstd frame header")
	}
	b, err = Decode(b)
	if err != nil {
		t.Error(err)
	}
	if string(b) != expected {
		t.Errorf("expected %s got %s", expected, string(b))
	}
}

func TestIsEncoded(t *testing.T) {
	if IsEncoded([]byte("<feed/>")) {
		t.Error("plain text reported as encoded")
	}
	if IsEncoded(nil) {
		t.Error("nil reported as encoded")
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode([]byte("not zstd")); err == nil {
		t.Error("expected error")
	}
}

func TestCompresses(t *testing.T) {
	in := []byte(strings.Repeat("<entry><title>x</title></entry>", 200))
	b, _ := Encode(in)
	if len(b) >= len(in) {
		t.Errorf("expected compression, got %d >= %d", len(b), len(in))
	}
}

// TestConcurrentEncodeDecode verifies that the shared encoder and decoder
// are safe for concurrent use
func TestConcurrentEncodeDecode(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := bytes.Repeat([]byte{byte(i)}, 1024)
			b, _ := Encode(in)
			out, err := Decode(b)
			if err != nil {
				t.Error(err)
				return
			}
			if !bytes.Equal(in, out) {
				t.Error("round trip mismatch")
			}
		}(i)
	}
	wg.Wait()
}
