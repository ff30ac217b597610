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

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirseerhq/datacat/test/testutil"
)

// stars serves total stargazers on a single page, newest first, the newest
// starred an hour ago.
func stars(t *testing.T, total int) testutil.Handler {
	return func(req testutil.GraphQLRequest) testutil.Reply {
		if !strings.Contains(req.Query, "stargazers") {
			t.Errorf("unexpected query: %s", req.Query)
			return testutil.Reply{Status: http.StatusBadRequest, Body: map[string]any{"message": "unexpected query"}}
		}
		now := time.Now()
		var edges []map[string]any
		for i := 1; i <= total; i++ {
			edges = append(edges, testutil.StarEdge(fmt.Sprintf("user%d", i), now.Add(-time.Duration(i)*time.Hour)))
		}
		return testutil.Reply{Body: testutil.DataBody(map[string]any{
			"repository": map[string]any{"stargazers": testutil.Edges(edges, false, "")},
		})}
	}
}

func isolatedEnv(t *testing.T) map[string]string {
	home := t.TempDir()
	return map[string]string{
		"HOME":              home,
		"GITHUB_TOKEN":      "",
		"GITHUB_TOKENS":     "",
		"DATACAT_STATE_DIR": filepath.Join(home, "state"),
	}
}

func TestCLI_HelpCommand(t *testing.T) {
	result := testutil.RunCLI(t, []string{"--help"}, isolatedEnv(t))
	testutil.AssertCLISuccess(t, result)

	for _, want := range []string{"fetch", "ratelimit", "--token", "--metrics-addr"} {
		testutil.AssertContainsString(t, result.Stdout, want)
	}

	result = testutil.RunCLI(t, []string{"fetch", "repo", "--help"}, isolatedEnv(t))
	testutil.AssertCLISuccess(t, result)
	for _, want := range []string{"--all", "--incremental", "--since", "--commit-limit"} {
		testutil.AssertContainsString(t, result.Stdout, want)
	}
}

func TestCLI_VersionFlag(t *testing.T) {
	result := testutil.RunCLI(t, []string{"--version"}, isolatedEnv(t))
	testutil.AssertCLISuccess(t, result)
	testutil.AssertContainsString(t, result.Stdout, "datacat version")
}

func TestCLI_MissingToken(t *testing.T) {
	result := testutil.RunCLI(t, []string{"fetch", "stars", "octo/widgets"}, isolatedEnv(t))
	testutil.AssertCLIError(t, result, "no github tokens configured")
	testutil.AssertExitCode(t, result, 2)
}

func TestCLI_InvalidRepoFormat(t *testing.T) {
	tests := [][]string{
		{"fetch", "stars", "widgets"},
		{"fetch", "repo", "octo/widgets/extra"},
		{"fetch", "issues", "/widgets"},
	}

	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			result := testutil.RunCLI(t, args, isolatedEnv(t))
			testutil.AssertCLIError(t, result, "invalid repository format")
			testutil.AssertExitCode(t, result, 1)
		})
	}
}

func TestCLI_FetchStars(t *testing.T) {
	server := testutil.NewGraphQLServer(t, stars(t, 3))
	stateDir := t.TempDir()
	outputFile := filepath.Join(stateDir, "out", "stars.ndjson")

	result := testutil.RunWithServer(t, server, stateDir, "tok-a,tok-b",
		"fetch", "stars", "octo/widgets", "--output", outputFile)
	testutil.AssertCLISuccess(t, result)
	testutil.AssertContainsString(t, result.Stderr, "Fetched stars=3 for octo/widgets")

	kinds := testutil.AssertNDJSONOutput(t, outputFile)
	if kinds["star"] != 3 || len(kinds) != 1 {
		t.Errorf("record kinds = %v, want 3 stars", kinds)
	}

	md := testutil.AssertMetadataFile(t, stateDir)
	if md["command"] != "fetch stars" || md["target"] != "octo/widgets" {
		t.Errorf("metadata = %v", md)
	}
	testutil.AssertFileExists(t, filepath.Join(stateDir, "octo-widgets.state"))

	// Both tokens were probed; the data query went through the pool
	if server.RequestCount() != 1 {
		t.Errorf("data requests = %d, want 1", server.RequestCount())
	}
	for _, req := range server.Requests() {
		if req.Token != "tok-a" && req.Token != "tok-b" {
			t.Errorf("request used unknown token %q", req.Token)
		}
	}
}

func TestCLI_IncrementalFetch(t *testing.T) {
	server := testutil.NewGraphQLServer(t, stars(t, 3))
	stateDir := t.TempDir()
	first := filepath.Join(stateDir, "first.ndjson")
	second := filepath.Join(stateDir, "second.ndjson")

	result := testutil.RunWithServer(t, server, stateDir, "tok-a",
		"fetch", "stars", "octo/widgets", "--output", first)
	testutil.AssertCLISuccess(t, result)

	result = testutil.RunWithServer(t, server, stateDir, "tok-a",
		"fetch", "stars", "octo/widgets", "--incremental", "--output", second)
	testutil.AssertCLISuccess(t, result)

	// Every star predates the first run, so the walk stops on the first page
	data, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if len(strings.TrimSpace(string(data))) != 0 {
		t.Errorf("incremental run emitted records:\n%s", data)
	}
	if server.RequestCount() != 2 {
		t.Errorf("data requests = %d, want 2", server.RequestCount())
	}
}

func TestCLI_RepositoryNotFound(t *testing.T) {
	server := testutil.NewGraphQLServer(t, func(req testutil.GraphQLRequest) testutil.Reply {
		return testutil.Reply{Body: testutil.NotFoundBody("repository", "octo/missing")}
	})

	result := testutil.RunWithServer(t, server, t.TempDir(), "tok-a", "fetch", "repo", "octo/missing")
	testutil.AssertCLIError(t, result, "repository not found")
	testutil.AssertExitCode(t, result, 2)
}

func TestCLI_RetriesExhausted(t *testing.T) {
	server := testutil.NewGraphQLServer(t, func(req testutil.GraphQLRequest) testutil.Reply {
		return testutil.Reply{Status: http.StatusBadGateway, Body: map[string]any{"message": "bad gateway"}}
	})
	stateDir := t.TempDir()

	env := map[string]string{
		"HOME":                     stateDir,
		"GITHUB_TOKEN":             "",
		"GITHUB_TOKENS":            "tok-a",
		"DATACAT_GRAPHQL_ENDPOINT": server.Endpoint(),
		"DATACAT_STATE_DIR":        stateDir,
		"DATACAT_MAX_RETRIES":      "1",
	}
	result := testutil.RunCLI(t, []string{"fetch", "issues", "octo/widgets"}, env)
	testutil.AssertCLIError(t, result, "retries_exhausted")
	testutil.AssertExitCode(t, result, 3)

	if server.RequestCount() != 2 {
		t.Errorf("data requests = %d, want 2", server.RequestCount())
	}
	testutil.AssertFileNotExists(t, filepath.Join(stateDir, "octo-widgets.state"))
}

func TestCLI_RateLimit(t *testing.T) {
	server := testutil.NewGraphQLServer(t, stars(t, 0))
	server.SetQuota("tok-b", 10)

	result := testutil.RunWithServer(t, server, t.TempDir(), "tok-a,tok-b", "ratelimit")
	testutil.AssertCLISuccess(t, result)

	var remaining []float64
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		var rec struct {
			Kind string         `json:"kind"`
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid record %q: %v", line, err)
		}
		if rec.Kind != "rate_limit" {
			t.Errorf("kind = %q, want rate_limit", rec.Kind)
		}
		r, _ := rec.Data["remaining"].(float64)
		remaining = append(remaining, r)
	}

	if len(remaining) != 2 {
		t.Fatalf("records = %d, want 2", len(remaining))
	}
	if remaining[0] != testutil.DefaultQuota || remaining[1] != 10 {
		t.Errorf("remaining = %v, want [%d 10]", remaining, testutil.DefaultQuota)
	}
	if strings.Contains(result.Stdout, "tok-a") {
		t.Error("token values must never be printed")
	}
	if server.RequestCount() != 0 {
		t.Errorf("ratelimit should only probe, made %d data requests", server.RequestCount())
	}
}
