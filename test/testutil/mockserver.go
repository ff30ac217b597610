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

// Package testutil provides common test helpers for datacat: a fake GitHub
// GraphQL server with per-token quota accounting, response builders, and
// file and CLI assertions.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// DefaultQuota is the remaining quota every token starts with.
const DefaultQuota = 5000

// GraphQLRequest represents a parsed GraphQL request
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
	Token     string         `json:"-"`
	Timestamp time.Time      `json:"-"`
}

// IsProbe reports whether the request is a bare quota probe.
func (r GraphQLRequest) IsProbe() bool {
	return strings.HasPrefix(r.Query, "{rateLimit{") && !strings.Contains(r.Query, "cost")
}

// Cursor returns the $cursor variable, "" on the first page.
func (r GraphQLRequest) Cursor() string {
	c, _ := r.Variables["cursor"].(string)
	return c
}

// Reply is what a handler wants sent back. A zero Status means 200.
type Reply struct {
	Status int
	Body   any
}

// Handler answers one data request. Quota probes never reach it.
type Handler func(req GraphQLRequest) Reply

// GraphQLServer is a fake GitHub GraphQL endpoint. It answers quota probes
// on its own and charges Cost per data request against the token's quota;
// once a token is below Cost it answers with a RATE_LIMITED error.
type GraphQLServer struct {
	*httptest.Server

	mu      sync.Mutex
	handler Handler
	quota   map[string]int
	resetAt time.Time
	cost    int
	history []GraphQLRequest
}

// NewGraphQLServer starts a fake server. It is closed when the test ends.
func NewGraphQLServer(t *testing.T, handler Handler) *GraphQLServer {
	t.Helper()

	s := &GraphQLServer{
		handler: handler,
		quota:   make(map[string]int),
		resetAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		cost:    1,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns the GraphQL URL of the server.
func (s *GraphQLServer) Endpoint() string {
	return s.URL + "/graphql"
}

// SetQuota sets the remaining quota of a token.
func (s *GraphQLServer) SetQuota(token string, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota[token] = remaining
}

// Quota returns the remaining quota of a token.
func (s *GraphQLServer) Quota(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining(token)
}

// SetCost sets the quota charged per data request.
func (s *GraphQLServer) SetCost(cost int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cost = cost
}

// ResetAt returns the reset time the server reports.
func (s *GraphQLServer) ResetAt() time.Time {
	return s.resetAt
}

// Requests returns the data requests received so far. Probes are excluded.
func (s *GraphQLServer) Requests() []GraphQLRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]GraphQLRequest, len(s.history))
	copy(history, s.history)
	return history
}

// RequestCount returns the number of data requests received so far.
func (s *GraphQLServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *GraphQLServer) remaining(token string) int {
	if q, ok := s.quota[token]; ok {
		return q
	}
	return DefaultQuota
}

func (s *GraphQLServer) serve(w http.ResponseWriter, r *http.Request) {
	// Validate request method and path
	if r.Method != http.MethodPost || r.URL.Path != "/graphql" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Check authorization
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	token := strings.TrimPrefix(auth, "Bearer ")

	var req GraphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}
	req.Token = token
	req.Timestamp = time.Now()

	s.mu.Lock()
	remaining := s.remaining(token)
	if req.IsProbe() {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"rateLimit": QuotaData(remaining, s.resetAt)},
		})
		return
	}
	s.history = append(s.history, req)
	if remaining < s.cost {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, ErrorBody(nil, GraphQLError{
			Type:    "RATE_LIMITED",
			Message: "API rate limit exceeded for user ID 1.",
		}))
		return
	}
	remaining -= s.cost
	s.quota[token] = remaining
	cost := s.cost
	handler := s.handler
	s.mu.Unlock()

	reply := handler(req)
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, withRateLimit(reply.Body, RateLimitData(remaining, s.resetAt, cost)))
}

// withRateLimit adds the rateLimit selection to the data of body, unless the
// body has no data or already carries its own.
func withRateLimit(body any, rateLimit map[string]any) any {
	envelope, ok := body.(map[string]any)
	if !ok {
		return body
	}
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return body
	}
	if _, set := data["rateLimit"]; !set {
		data["rateLimit"] = rateLimit
	}
	return envelope
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
