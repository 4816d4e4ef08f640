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

// Package response models an outbound HTTP/1.1 response and renders its
// status line and header block
package response

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultContentType is sent when a response has a body but no content type
const DefaultContentType = "text/plain"

// Response is an outbound response. A nil or empty Content means no body.
type Response struct {
	Status      uint16
	Content     []byte
	ContentType string
	Headers     map[string]string
}

// New returns a bodyless response with the provided status
func New(status uint16) *Response {
	return &Response{Status: status}
}

// WithContent returns a 200 response whose body is s
func WithContent(s string) *Response {
	return &Response{Status: 200, Content: []byte(s)}
}

// WithBytes returns a 200 response whose body is b
func WithBytes(b []byte) *Response {
	return &Response{Status: 200, Content: b}
}

// SetContentType sets the Content-Type sent with a non-empty body
func (r *Response) SetContentType(contentType string) *Response {
	r.ContentType = contentType
	return r
}

// SetHeader sets an explicit response header
func (r *Response) SetHeader(name, value string) *Response {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
	return r
}

// HeaderBlock renders the status line and headers, including the blank
// line that ends the header block. Content-Type and Content-Length are
// appended only when the body is non-empty.
func (r *Response) HeaderBlock() []byte {
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 ")
	sb.WriteString(strconv.Itoa(int(r.Status)))
	sb.WriteString("\r\n")

	names := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		writeHeader(&sb, k, r.Headers[k])
	}
	if len(r.Content) > 0 {
		ct := r.ContentType
		if ct == "" {
			ct = DefaultContentType
		}
		writeHeader(&sb, "Content-Type", ct)
		writeHeader(&sb, "Content-Length", strconv.Itoa(len(r.Content)))
	}
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

var stripCRLF = strings.NewReplacer("\r", "", "\n", "")

func writeHeader(sb *strings.Builder, name, value string) {
	sb.WriteString(stripCRLF.Replace(name))
	sb.WriteString(": ")
	sb.WriteString(stripCRLF.Replace(value))
	sb.WriteString("\r\n")
}

// String returns the header block followed by the body
func (r *Response) String() string {
	return string(r.HeaderBlock()) + string(r.Content)
}
