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

// Package metrics exposes datacat's Prometheus metrics over HTTP.
// Metrics are declared with promauto next to the code that updates them:
//
// Dispatch (internal/tokenpool):
//   - datacat_inflight_operations (Gauge): operations holding a dispatcher slot
//   - datacat_acquire_wait_seconds (Histogram): time spent waiting for a slot and credential
//   - datacat_credential_remaining{credential} (Gauge): last reported quota per credential fingerprint
//   - datacat_refresh_probes_total{result} (Counter): scheduled quota probes by result
//
// Execution (internal/github):
//   - datacat_operations_total{outcome} (Counter): executed operations by outcome kind
//   - datacat_retries_total{reason} (Counter): retries by reason (rate_limit, error)
//   - datacat_request_duration_seconds (Histogram): GraphQL round trip duration
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the registerer the promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Server serves /metrics until shut down.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// Start listens on addr and serves the Prometheus handler in the background.
func Start(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return s, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
