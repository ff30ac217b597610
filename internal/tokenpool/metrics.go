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

package tokenpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inflightOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "datacat_inflight_operations",
		Help: "Number of operations currently holding a dispatcher slot",
	})

	acquireWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datacat_acquire_wait_seconds",
		Help:    "Time spent waiting for a dispatcher slot and an eligible credential",
		Buckets: []float64{.001, .01, .1, 1, 5, 10, 30, 60, 300, 900, 3600},
	})

	credentialRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datacat_credential_remaining",
		Help: "Last reported remaining quota per credential",
	}, []string{"credential"})

	refreshProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacat_refresh_probes_total",
		Help: "Scheduled quota probes by result",
	}, []string{"result"})
)
