/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/aiviz/citewatch/pkg/provider"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// doJSON sends a JSON request through the adapter's breaker and decodes the
// response into out. Errors are always *provider.Error.
func (b *base) doJSON(ctx context.Context, method, url string, headers map[string]string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return provider.NewError(b.platform, provider.ErrMalformedResponse, "encode request", err)
		}
		body = bytes.NewReader(buf)
	}

	raw, err := b.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, provider.NewError(b.platform, provider.ErrTransport, "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return nil, provider.AsError(b.platform, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, provider.NewError(b.platform, provider.ErrTransport, "read response", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(b.platform, resp.StatusCode, string(data))
		}
		return data, nil
	})
	if err != nil {
		if perr, ok := err.(*provider.Error); ok {
			return perr
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return provider.NewError(b.platform, provider.ErrUpstream, "circuit breaker open", err)
		}
		return provider.AsError(b.platform, err)
	}

	if out != nil {
		if err := json.Unmarshal(raw.([]byte), out); err != nil {
			return provider.NewError(b.platform, provider.ErrMalformedResponse, "decode response", err)
		}
	}
	return nil
}

// statusError refines the generic status mapping with quota phrasing some
// engines put in a 429 body.
func statusError(platform provider.Platform, status int, body string) *provider.Error {
	if status == http.StatusTooManyRequests && looksLikeQuota(body) {
		return provider.NewError(platform, provider.ErrQuotaExceeded, body[:min(len(body), 200)], nil)
	}
	return provider.ErrorFromStatus(platform, status, body)
}

func looksLikeQuota(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "billing") ||
		strings.Contains(lower, "insufficient_quota")
}
