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

package execution

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	queryTimeouts metric.Int64Counter
	queryCancels  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/execution")

	var err error
	queryTimeouts, err = meter.Int64Counter(
		"tbcbq.query.timeouts",
		metric.WithDescription("Number of queries abandoned after the client-side timeout"),
	)
	if err != nil {
		slog.Error("failed to create query.timeouts counter", "error", err)
	}

	queryCancels, err = meter.Int64Counter(
		"tbcbq.query.cancels",
		metric.WithDescription("Number of queries cancelled by the caller"),
	)
	if err != nil {
		slog.Error("failed to create query.cancels counter", "error", err)
	}
}

func recordInterrupted(ctx context.Context, timedOut bool) {
	counter := queryCancels
	if timedOut {
		counter = queryTimeouts
	}
	if counter != nil {
		counter.Add(context.WithoutCancel(ctx), 1)
	}
}
