// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/berthd/berth/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "berth",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status class.",
	}, []string{"method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "berth",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	debug.Registry().MustRegister(httpRequests, httpDuration)
}
