// Copyright 2023 The Cuber Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package metrics

import (
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	// GRPCMetrics instruments the reference RPC backend's grpc client.
	GRPCMetrics = grpcprometheus.NewClientMetrics()

	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goconf",
		Name:      "cache_hits_total",
		Help:      "Object-identity cache hits, by class.",
	}, []string{"class"})

	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goconf",
		Name:      "cache_misses_total",
		Help:      "Object-identity cache misses, by class.",
	}, []string{"class"})

	DispatchBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "goconf",
		Name:      "dispatch_batches_total",
		Help:      "Change batches processed by the notification dispatcher.",
	})

	DispatchCallbackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "goconf",
		Name:      "dispatch_callback_failures_total",
		Help:      "Subscriber callback panics caught by the dispatch firewall.",
	})

	SubscriberCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "goconf",
		Name:      "subscribers",
		Help:      "Currently registered subscribers.",
	})
)

func init() {
	Registry.MustRegister(
		GRPCMetrics,
		CacheHits,
		CacheMisses,
		DispatchBatches,
		DispatchCallbackFailures,
		SubscriberCount,
	)
}
