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
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirseerhq/datacat/internal/config"
	caterrors "github.com/sirseerhq/datacat/internal/errors"
	"github.com/sirseerhq/datacat/internal/giterror"
	"github.com/sirseerhq/datacat/internal/github"
	"github.com/sirseerhq/datacat/internal/logging"
	"github.com/sirseerhq/datacat/internal/metrics"
	"github.com/sirseerhq/datacat/internal/output"
	"github.com/sirseerhq/datacat/internal/quotastore"
	"github.com/sirseerhq/datacat/internal/tokenpool"
)

// session is everything a command needs once flags and config are resolved.
// Tests build one directly around a MockClient.
type session struct {
	logger   zerolog.Logger
	client   github.Client
	stats    func() github.Stats
	statuses func() []tokenpool.Status
	out      output.RecordWriter
	stderr   io.Writer
	stateDir string

	closers []func()
}

func (s *session) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *session) executorStats() github.Stats {
	if s.stats == nil {
		return github.Stats{}
	}
	return s.stats()
}

// loadConfig resolves the configuration: file, then environment, then flags.
func loadConfig(g *globalOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}

	cfg.AddTokens(g.tokens...)
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.pretty {
		cfg.Logging.Pretty = true
	}
	if g.metricsAddr != "" {
		cfg.Metrics.ListenAddr = g.metricsAddr
	}

	if len(cfg.GitHub.Tokens) == 0 {
		return nil, fmt.Errorf("%w: set %s, GITHUB_TOKEN or --token", caterrors.ErrNoCredentials, cfg.GitHub.TokenEnv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup wires config, logging, metrics, the optional quota store and the
// fetch stack, then probes every token. The caller must Close the session.
func setup(ctx context.Context, g *globalOptions, stdout, stderr io.Writer) (_ *session, err error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	logger, err := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: stderr,
	})
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:   logger,
		stderr:   stderr,
		stateDir: cfg.Defaults.StateDir,
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if cfg.Metrics.ListenAddr != "" {
		srv, mErr := metrics.Start(cfg.Metrics.ListenAddr, logging.NewLogger("metrics"))
		if mErr != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", mErr)
		}
		s.onClose(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	var store tokenpool.Store
	if cfg.QuotaStore.RedisAddr != "" {
		rc, rErr := quotastore.Connect(ctx, cfg.QuotaStore.RedisAddr, cfg.QuotaStore.RedisPassword, cfg.QuotaStore.RedisDB)
		if rErr != nil {
			return nil, fmt.Errorf("failed to connect to quota store: %w", rErr)
		}
		s.onClose(func() { _ = rc.Close() })
		store = quotastore.NewRedisStore(rc, cfg.QuotaStore.KeyPrefix, logging.NewLogger("quotastore"))
	}

	gql := github.NewGraphQLClient(cfg.GitHub.GraphQLEndpoint, github.ClientOptions{
		UserAgent: cfg.GitHub.UserAgent,
		Timeout:   cfg.GitHub.Timeout,
	})

	pool, err := tokenpool.New(cfg.GitHub.Tokens, tokenpool.Options{
		CostPrediction:  cfg.Dispatch.RequestCostPrediction,
		MaxConcurrency:  cfg.Dispatch.MaxConcurrency,
		RefreshMargin:   cfg.Dispatch.RefreshMargin,
		RefreshFallback: cfg.Dispatch.RefreshFallback,
		ProbeTimeout:    cfg.GitHub.Timeout,
		Store:           store,
		Prober:          gql,
		Logger:          logging.NewLogger("tokenpool"),
	})
	if err != nil {
		return nil, err
	}
	s.onClose(pool.Close)

	dispatcher := tokenpool.NewDispatcher(pool, tokenpool.DispatcherOptions{
		MaxConcurrency:    cfg.Dispatch.MaxConcurrency,
		PollInterval:      cfg.Dispatch.PollInterval,
		RequestsPerSecond: cfg.Dispatch.RequestsPerSecond,
		Logger:            logging.NewLogger("dispatcher"),
	})

	executor := github.NewExecutor(gql, pool, dispatcher, github.ExecutorOptions{
		Retry: github.RetryConfig{
			MaxRetries:        cfg.Dispatch.MaxRetries,
			InitialBackoff:    cfg.Dispatch.RetryBackoff,
			MaxBackoff:        cfg.Dispatch.MaxRetryBackoff,
			BackoffMultiplier: 2.0,
		},
		ToleratedStatusCodes: cfg.Dispatch.ToleratedStatusCodes,
		Logger:               logging.NewLogger("executor"),
	})

	fetcher := github.NewFetcher(executor, logging.NewLogger("fetcher"))
	if err = fetcher.Init(ctx); err != nil {
		return nil, classifyInitError(err)
	}
	s.client = fetcher
	s.stats = fetcher.Stats
	s.statuses = pool.Statuses

	if g.output == "" {
		s.out = output.NewWriter(stdout)
	} else {
		w, fErr := output.NewFileWriter(g.output)
		if fErr != nil {
			return nil, fErr
		}
		s.onClose(func() { _ = w.Close() })
		s.out = w
	}

	return s, nil
}

// classifyInitError attaches the sentinel matching why no token could be probed.
func classifyInitError(err error) error {
	if errors.Is(err, caterrors.ErrCancelled) {
		return err
	}
	inspector := giterror.NewErrorChainInspector(giterror.NewInspector())
	switch {
	case inspector.IsAuthError(err):
		return fmt.Errorf("%w: %w", caterrors.ErrInvalidToken, err)
	case inspector.IsNetworkError(err):
		return fmt.Errorf("%w: %w", caterrors.ErrNetworkFailure, err)
	}
	return err
}
