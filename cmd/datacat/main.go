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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	tokens      []string
	output      string
	logLevel    string
	pretty      bool
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "datacat",
		Short: "Collect GitHub repository and account data",
		Long: `datacat collects repository metadata, stars, forks, issues, pull requests,
contributors and account data from the GitHub GraphQL API. Requests are spread
over a pool of tokens so large collections keep moving while individual tokens
wait for their quota to reset.`,
		Version:       version,
		SilenceUsage:  true, // Don't show usage on error
		SilenceErrors: true, // We'll handle error printing ourselves
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Path to a YAML config file (default: .datacat.yaml or ~/.datacat/config.yaml)")
	flags.StringArrayVar(&g.tokens, "token", nil, "GitHub token; repeat the flag to add more tokens to the pool")
	flags.StringVar(&g.output, "output", "", "Output file path (default: stdout)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVar(&g.pretty, "pretty", false, "Human-readable log output")
	flags.StringVar(&g.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (for example :9090)")

	rootCmd.AddCommand(newFetchCommand(g))
	rootCmd.AddCommand(newRateLimitCommand(g))

	return rootCmd
}

// exitCode maps internal errors to appropriate exit codes
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, caterrors.ErrCancelled), errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, caterrors.ErrProtocolViolation):
		return 4
	case errors.Is(err, caterrors.ErrNoCredentials),
		errors.Is(err, caterrors.ErrInvalidToken),
		errors.Is(err, caterrors.ErrRepoNotFound),
		errors.Is(err, caterrors.ErrUserNotFound),
		errors.Is(err, caterrors.ErrRateLimitExhausted):
		return 2 // Authentication/authorization errors
	case errors.Is(err, caterrors.ErrNetworkFailure),
		errors.Is(err, caterrors.ErrRetriesExhausted):
		return 3 // Network errors
	}
	return 1 // General error
}
