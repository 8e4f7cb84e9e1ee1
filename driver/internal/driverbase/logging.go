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

package driverbase

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func nilLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nilTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("")
}

// maybeAddTraceParent attaches the most specific non-blank trace parent
// among sources (later wins) to ctx as a remote span context.
func maybeAddTraceParent(ctx context.Context, sources ...tbcbq.OTelTracing) (context.Context, error) {
	var traceParent string
	for _, src := range sources {
		if src == nil {
			continue
		}
		if tp := src.GetTraceParent(); tp != "" {
			traceParent = tp
		}
	}
	if traceParent == "" {
		return ctx, nil
	}

	carrier := propagation.MapCarrier{"traceparent": traceParent}
	spanCtx := trace.SpanContextFromContext(propagation.TraceContext{}.Extract(ctx, carrier))
	if !spanCtx.IsValid() {
		return ctx, errors.New(StatementMessageTraceParentIncorrectFormat)
	}
	return trace.ContextWithRemoteSpanContext(ctx, spanCtx), nil
}
