// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics exposes Prometheus counters for votes, consensus changes,
// state transitions and the spread cache, plus an HTTP latency histogram.
// Handler serves them at /metrics.
package metrics
