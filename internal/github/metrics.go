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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacat_operations_total",
		Help: "Executed GraphQL operations by outcome",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datacat_retries_total",
		Help: "Retried GraphQL attempts by reason",
	}, []string{"reason"})

	requestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datacat_request_duration_seconds",
		Help:    "GraphQL round trip duration",
		Buckets: prometheus.DefBuckets,
	})
)
