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

package tbcbq

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DatabaseLogging is a Database that also supports logging information to an
// application-supplied log sink.
type DatabaseLogging interface {
	SetLogger(*slog.Logger)
}

// OTelTracingInit is a Database that also supports OpenTelemetry tracing.
type OTelTracingInit interface {
	InitTracing(ctx context.Context, driverName string, driverVersion string) error
}

// DriverWithContext is an extension interface to allow the creation of a database
// by providing an existing [context.Context] to initialize OpenTelemetry tracing.
type DriverWithContext interface {
	NewDatabaseWithContext(ctx context.Context, opts map[string]string) (Database, error)
}

// OTelTracing is an interface that supports instrumentation of [OpenTelementry tracing].
//
// [OpenTelementry tracing]: https://opentelemetry.io/docs/concepts/signals/traces/
type OTelTracing interface {
	// Sets the trace parent from an external trace span. A blank value, removes the parent relationship.
	SetTraceParent(string)
	// Gets the trace parent from an external trace span. A blank value, indicates no parent relationship.
	GetTraceParent() string
	// Starts a new span. Implementers should enhance the [context.Context]
	// with the provided trace parent value, if it exists.
	StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// Gets the initial span attributes for any newly started span.
	GetInitialSpanAttributes() []attribute.KeyValue
}

// SchemaDescriptor describes one dataset.
type SchemaDescriptor struct {
	Catalog  string
	Name     string
	Location string
}

// TableDescriptor describes one table, view or similar queryable object.
type TableDescriptor struct {
	Catalog string
	Schema  string
	Name    string
	// Kind is one of the values returned by GetTableTypes, e.g. "TABLE"
	// or "VIEW".
	Kind    string
	Remarks string
}

// ColumnDescriptor describes one column of a table.
type ColumnDescriptor struct {
	Catalog string
	Schema  string
	Table   string
	Name    string
	// Ordinal is the 1-based position of the column in its table.
	Ordinal int32
	// TypeName is the BigQuery type, e.g. "STRING" or "ARRAY<INT64>".
	TypeName string
	// XdbcDataType is the JDBC/ODBC type code closest to TypeName.
	XdbcDataType int16
	Nullable     bool
	Remarks      string
}

// CatalogBrowser is a Connection that exposes the catalog as typed
// descriptors rather than Arrow record streams.
//
// Results are ordered by catalog, schema, table and (for columns)
// ordinal position.
type CatalogBrowser interface {
	ListCatalogs(ctx context.Context, catalogPattern *string) ([]string, error)
	ListSchemas(ctx context.Context, catalog, schemaPattern *string) ([]SchemaDescriptor, error)
	ListTables(ctx context.Context, catalog, schemaPattern, tablePattern *string, kinds []string) ([]TableDescriptor, error)
	ListColumns(ctx context.Context, catalog, schemaPattern, tablePattern, columnPattern *string) ([]ColumnDescriptor, error)
}

// CacheStats is a snapshot of metadata cache effectiveness.
type CacheStats struct {
	Hits           int64
	Misses         int64
	HitRatePercent float64
	Entries        int
}

// CatalogCache is a Connection that exposes control over the shared
// metadata cache backing its catalog queries.
type CatalogCache interface {
	// InvalidateCache drops every cached entry whose key starts with
	// prefix, returning the number of entries removed.
	InvalidateCache(prefix string) int
	// ClearCache drops every cached entry.
	ClearCache()
	CacheStats() CacheStats
}
