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
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shurcooL/graphql"

	"github.com/sirseerhq/datacat/internal/giterror"
)

// DefaultUserAgent identifies datacat to the API.
const DefaultUserAgent = "datacat"

// ClientOptions configures the HTTP side of a GraphQLClient.
type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the base transport, mainly for tests.
	Transport http.RoundTripper
}

// GraphQLClient sends single GraphQL operations. It holds no credential:
// every call names the secret to authenticate with.
type GraphQLClient struct {
	client *graphql.Client
}

// NewGraphQLClient creates a client for the given GraphQL endpoint.
func NewGraphQLClient(endpoint string, opts ClientOptions) *GraphQLClient {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	httpClient := &http.Client{
		Timeout: opts.Timeout,
		Transport: &authTransport{
			userAgent: opts.UserAgent,
			base:      base,
		},
	}

	return &GraphQLClient{
		client: graphql.NewClient(endpoint, httpClient),
	}
}

// Query runs one operation authenticated with secret and decodes the data
// into q. Any failure is returned as a *giterror.ResponseError. When the
// server answered with a non-200 status but still sent data, q holds that
// data and the error reports the status with HasData set.
func (c *GraphQLClient) Query(ctx context.Context, secret string, q any, vars map[string]any) error {
	cl := &call{secret: secret}

	start := time.Now()
	err := c.client.Query(withCall(ctx, cl), q, vars)
	requestDurationSeconds.Observe(time.Since(start).Seconds())

	if err == nil && (cl.status == 0 || cl.status == http.StatusOK) {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("unexpected status %d", cl.status)
	}
	return &giterror.ResponseError{
		Status:  cl.status,
		Errors:  cl.errors,
		Message: cl.message,
		HasData: cl.hasData,
		Cause:   err,
	}
}

// Probe reports the current quota of a token. It satisfies tokenpool.Prober.
func (c *GraphQLClient) Probe(ctx context.Context, secret string) (int, time.Time, error) {
	var q struct {
		RateLimit struct {
			Remaining graphql.Int
			ResetAt   time.Time
		}
	}
	if err := c.Query(ctx, secret, &q, nil); err != nil {
		return 0, time.Time{}, err
	}
	return int(q.RateLimit.Remaining), q.RateLimit.ResetAt, nil
}
