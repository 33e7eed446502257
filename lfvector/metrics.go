// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package lfvector

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional set of Prometheus counters a Vector[T] can
// report push/pop/contention/reclamation activity through. A nil
// *Metrics (the default — see WithMetrics) disables instrumentation
// entirely; the hot path never touches a prometheus type in that case.
//
// Grounded on grafana-tempo's friggdb/pool/pool.go, which wires
// promauto-registered gauges directly into a sync-heavy worker type;
// the teacher's own prometheus usage (cmd/ocprometheus) is an external
// collector binary, out of scope per spec.md §1, so this is the
// library-internal pattern the reference pack demonstrates instead.
type Metrics struct {
	Pushes              prometheus.Counter
	Pops                prometheus.Counter
	CASRetries          prometheus.Counter
	BucketsAllocated    prometheus.Counter
	ReclaimedDescriptor prometheus.Counter
}

// NewMetrics constructs a *Metrics with all five counters registered
// against reg under the "lfvector" namespace. Pass a prometheus.Registry
// you own (or prometheus.DefaultRegisterer) — lfvector never registers
// against a global registry implicitly.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lfvector", Name: "pushes_total",
			Help: "Total number of completed Push calls.",
		}),
		Pops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lfvector", Name: "pops_total",
			Help: "Total number of completed Pop calls, including pops of an empty container.",
		}),
		CASRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lfvector", Name: "cas_retries_total",
			Help: "Total number of lost descriptor-publishing CAS races.",
		}),
		BucketsAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lfvector", Name: "buckets_allocated_total",
			Help: "Total number of buckets actually installed (not merely requested) across all Vector instances sharing this registry.",
		}),
		ReclaimedDescriptor: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lfvector", Name: "reclaimed_descriptors_total",
			Help: "Total number of descriptors and write-descriptors freed by the hazard-pointer domain.",
		}),
	}
	reg.MustRegister(m.Pushes, m.Pops, m.CASRetries, m.BucketsAllocated, m.ReclaimedDescriptor)
	return m
}

func (m *Metrics) incPushes() {
	if m != nil {
		m.Pushes.Inc()
	}
}

func (m *Metrics) incPops() {
	if m != nil {
		m.Pops.Inc()
	}
}

func (m *Metrics) incCASRetries() {
	if m != nil {
		m.CASRetries.Inc()
	}
}

func (m *Metrics) incBucketsAllocated() {
	if m != nil {
		m.BucketsAllocated.Inc()
	}
}

func (m *Metrics) incReclaimedDescriptor() {
	if m != nil {
		m.ReclaimedDescriptor.Inc()
	}
}
