// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// watchEvents tracks filesystem events seen on the definitions directory
	watchEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baton_watch_events_total",
			Help: "Total filesystem events on the definitions directory by type",
		},
		[]string{"event_type"},
	)

	// watchReloads tracks definition reload attempts
	watchReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baton_watch_reloads_total",
			Help: "Total definition reloads by outcome",
		},
		[]string{"outcome"},
	)

	// watchWorkflowsLoaded tracks how many workflows the last reload registered
	watchWorkflowsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "baton_watch_workflows_loaded",
			Help: "Number of workflow definitions registered by the last reload",
		},
	)
)

// recordEvent increments the filesystem event counter
func recordEvent(eventType string) {
	watchEvents.WithLabelValues(eventType).Inc()
}

// recordReload increments the reload counter
func recordReload(outcome string) {
	watchReloads.WithLabelValues(outcome).Inc()
}

// setWorkflowsLoaded updates the loaded workflows gauge
func setWorkflowsLoaded(n int) {
	watchWorkflowsLoaded.Set(float64(n))
}
