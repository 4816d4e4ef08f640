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

package upstream

import (
	"net/http"
	"strings"

	"github.com/any2feed/any2feed/pkg/server/response"
)

// droppedHeaders are never copied from an upstream response to the client.
// Content-Type and Content-Length are rendered from the response itself.
var droppedHeaders = map[string]struct{}{
	"Connection":        {},
	"Content-Length":    {},
	"Content-Type":      {},
	"Keep-Alive":        {},
	"Proxy-Connection":  {},
	"Set-Cookie":        {},
	"Te":                {},
	"Trailer":           {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

// hopHeaders are never forwarded from a client request to the upstream
var hopHeaders = map[string]struct{}{
	"Accept-Encoding":   {},
	"Connection":        {},
	"Content-Length":    {},
	"Content-Range":     {},
	"Host":              {},
	"Keep-Alive":        {},
	"Proxy-Connection":  {},
	"Te":                {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

// ForwardHeaders returns the client request headers to send with a proxied
// media request. Hop-by-hop headers are dropped and Referer is set when
// referer is not empty.
func ForwardHeaders(headers map[string]string, referer string) http.Header {
	h := make(http.Header, len(headers)+1)
	for k, v := range headers {
		ck := http.CanonicalHeaderKey(k)
		if _, ok := hopHeaders[ck]; ok {
			continue
		}
		h.Set(ck, v)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// ToResponse converts an upstream response into a server response with the
// same status, body and content type. Other end-to-end headers, such as
// Content-Range on a 206, are copied as well.
func ToResponse(r *Response) *response.Response {
	out := &response.Response{
		Status:      uint16(r.StatusCode),
		Content:     r.Body,
		ContentType: r.Header.Get("Content-Type"),
	}
	for k, vals := range r.Header {
		ck := http.CanonicalHeaderKey(k)
		if _, ok := droppedHeaders[ck]; ok || len(vals) == 0 {
			continue
		}
		out.SetHeader(ck, strings.Join(vals, ", "))
	}
	return out
}
