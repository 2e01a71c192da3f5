// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the dispatcher's prometheus collectors, namespaced
// consistently with the rest of the stack's actor/workerpool metrics.
type Metrics struct {
	tasksAdmitted   *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	finishRetries   *prometheus.CounterVec
	reportFailures  *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	reportVersion   prometheus.Gauge
}

// NewMetrics builds an unregistered Metrics instance. Call InitMetrics to
// register it against a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		tasksAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "dispatcher",
			Name:      "tasks_admitted_total",
			Help:      "Total tasks admitted into the registry, by kind.",
		}, []string{"kind"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "dispatcher",
			Name:      "tasks_finished_total",
			Help:      "Total tasks completed, by kind and status.",
		}, []string{"kind", "status"}),
		finishRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "dispatcher",
			Name:      "finish_retries_total",
			Help:      "Total publish_version engine call retry attempts, by kind.",
		}, []string{"kind"}),
		reportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "dispatcher",
			Name:      "report_failures_total",
			Help:      "Total report RPC failures, by loop.",
		}, []string{"loop"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentd",
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Current per-kind pool queue depth.",
		}, []string{"kind"}),
		reportVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentd",
			Subsystem: "dispatcher",
			Name:      "report_version",
			Help:      "Current value of the monotone report version counter.",
		}),
	}
}

// InitMetrics registers every collector against registry, following the
// per-package InitMetrics(registry) convention used across the stack.
func (m *Metrics) InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(m.tasksAdmitted)
	registry.MustRegister(m.tasksFinished)
	registry.MustRegister(m.finishRetries)
	registry.MustRegister(m.reportFailures)
	registry.MustRegister(m.queueDepth)
	registry.MustRegister(m.reportVersion)
}
