// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirseerhq/datacat/internal/giterror"
)

// maxResponseSize caps a single GraphQL response body.
const maxResponseSize = 10 * 1024 * 1024

// call carries the credential for one round trip and records what came back.
// The GraphQL library only surfaces error messages; the HTTP status, the
// error types, GitHub's top-level message and whether data was present are
// captured here instead.
type call struct {
	secret  string
	status  int
	errors  []giterror.GraphQLError
	message string
	hasData bool
}

type callKey struct{}

func withCall(ctx context.Context, c *call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

func callFrom(ctx context.Context) *call {
	c, _ := ctx.Value(callKey{}).(*call)
	return c
}

// limitedReader wraps a ReadCloser with a size limit to prevent excessive memory usage.
type limitedReader struct {
	io.ReadCloser
	limit int64
	read  int64
}

// Read implements io.Reader with size limit enforcement.
func (lr *limitedReader) Read(p []byte) (n int, err error) {
	if lr.read >= lr.limit {
		return 0, fmt.Errorf("response size exceeded limit of %d bytes", lr.limit)
	}

	remaining := lr.limit - lr.read
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err = lr.ReadCloser.Read(p)
	lr.read += int64(n)

	return n, err
}

// authTransport sets the per-call credential and records the response envelope.
type authTransport struct {
	userAgent string
	base      http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := callFrom(req.Context())

	// Clone the request to avoid modifying the original
	req = req.Clone(req.Context())
	if c != nil && c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || c == nil {
		return resp, nil
	}

	body, err := io.ReadAll(&limitedReader{ReadCloser: resp.Body, limit: maxResponseSize})
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	c.status = resp.StatusCode
	var envelope struct {
		Data    json.RawMessage         `json:"data"`
		Errors  []giterror.GraphQLError `json:"errors"`
		Message string                  `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		c.errors = envelope.Errors
		c.message = envelope.Message
		c.hasData = len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null"))
	}

	// The GraphQL client refuses to decode anything but 200. A degraded
	// response that still carries data is handed over as 200 so the data is
	// decoded; the real status stays in c.status.
	if resp.StatusCode != http.StatusOK && c.hasData {
		resp.StatusCode = http.StatusOK
		resp.Status = http.StatusText(http.StatusOK)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
