// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package cache

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/cache"

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
)

func init() {
	meter := otel.Meter(meterName)

	var err error
	cacheHits, err = meter.Int64Counter(
		"tbcbq.metadata_cache.hits",
		metric.WithDescription("Number of catalog lookups answered from the cache"),
	)
	if err != nil {
		slog.Error("failed to create metadata_cache.hits counter", "error", err)
	}

	cacheMisses, err = meter.Int64Counter(
		"tbcbq.metadata_cache.misses",
		metric.WithDescription("Number of catalog lookups that went to the remote service"),
	)
	if err != nil {
		slog.Error("failed to create metadata_cache.misses counter", "error", err)
	}
}

func registerEntriesGauge(r *Registry) {
	meter := otel.Meter(meterName)
	_, err := meter.Int64ObservableGauge(
		"tbcbq.metadata_cache.entries",
		metric.WithDescription("Number of unexpired entries per catalog cache"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, c := range r.snapshot() {
				o.Observe(int64(c.Len()), metric.WithAttributes(attribute.String("catalog", c.identity)))
			}
			return nil
		}),
	)
	if err != nil {
		slog.Error("failed to create metadata_cache.entries gauge", "error", err)
	}
}

func recordLookup(identity string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("catalog", identity))
	if hit {
		if cacheHits != nil {
			cacheHits.Add(context.Background(), 1, attrs)
		}
		return
	}
	if cacheMisses != nil {
		cacheMisses.Add(context.Background(), 1, attrs)
	}
}
