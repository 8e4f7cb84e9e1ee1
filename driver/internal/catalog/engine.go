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

// Package catalog answers catalog questions (catalogs, schemas, tables,
// columns) by fanning out per-dataset and per-table remote calls,
// filtering the answers with catalog patterns and caching the result.
package catalog

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/cache"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/fanout"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"
)

const (
	opSchemas = "schemas"
	opTables  = "tables"
	opColumns = "columns"

	nilComponent = "<nil>"
)

// Config configures an [Engine].
type Config struct {
	Client remote.CatalogClient
	// Cache stores results; nil disables caching.
	Cache *cache.Cache
	// LazyLoad makes table and column listings return nothing when
	// neither a schema nor a table pattern is given.
	LazyLoad bool
	// ExtraCatalogs are projects listed in addition to the client's
	// own project.
	ExtraCatalogs []string
	Fanout        fanout.Options
	Logger        *slog.Logger
	Tracer        trace.Tracer
}

// Engine is safe for concurrent use.
type Engine struct {
	client   remote.CatalogClient
	cache    *cache.Cache
	lazy     bool
	catalogs []string
	fanout   fanout.Options
	logger   *slog.Logger
	tracer   trace.Tracer

	inflight singleflight.Group
}

func New(cfg Config) *Engine {
	e := &Engine{
		client: cfg.Client,
		cache:  cfg.Cache,
		lazy:   cfg.LazyLoad,
		fanout: cfg.Fanout,
		logger: cfg.Logger,
		tracer: cfg.Tracer,
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("")
	}

	e.catalogs = append(e.catalogs, cfg.Client.Project())
	for _, c := range cfg.ExtraCatalogs {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(e.catalogs, c) {
			e.catalogs = append(e.catalogs, c)
		}
	}
	return e
}

// ListCatalogs returns the known catalogs matching pattern, in
// configuration order.
func (e *Engine) ListCatalogs(_ context.Context, pattern *string) ([]string, error) {
	return e.resolveCatalogs(pattern), nil
}

// ListSchemas returns the datasets matching schemaPattern across the
// catalogs matching catalog.
func (e *Engine) ListSchemas(ctx context.Context, catalog, schemaPattern *string) (out []tbcbq.SchemaDescriptor, err error) {
	ctx, span := e.startSpan(ctx, "ListSchemas", catalog, schemaPattern, nil)
	defer func() { endSpan(span, err) }()

	key := cacheKey(opSchemas, e.catalogComponent(catalog), []*string{schemaPattern}, nil)
	rows, err := e.lookup(ctx, key, schemaColumns, func(ctx context.Context) ([][]any, error) {
		schemas, err := e.fetchSchemas(ctx, catalog, schemaPattern)
		if err != nil {
			return nil, err
		}
		return schemaRows(schemas), nil
	})
	if err != nil {
		return nil, err
	}
	return schemasFromRows(rows), nil
}

// ListTables returns the tables matching the filters. kinds restricts
// the table types; nil or empty allows every kind.
//
// With lazy loading on, a call with neither schemaPattern nor
// tablePattern returns an empty result without contacting the remote
// service.
func (e *Engine) ListTables(ctx context.Context, catalog, schemaPattern, tablePattern *string, kinds []string) (out []tbcbq.TableDescriptor, err error) {
	if e.lazy && schemaPattern == nil && tablePattern == nil {
		e.logger.DebugContext(ctx, "lazy load: table listing deferred until a pattern is given")
		return []tbcbq.TableDescriptor{}, nil
	}

	ctx, span := e.startSpan(ctx, "ListTables", catalog, schemaPattern, tablePattern)
	defer func() { endSpan(span, err) }()

	key := cacheKey(opTables, e.catalogComponent(catalog), []*string{schemaPattern, tablePattern}, kinds)
	rows, err := e.lookup(ctx, key, tableColumns, func(ctx context.Context) ([][]any, error) {
		tables, err := e.fetchTables(ctx, catalog, schemaPattern, tablePattern, kinds)
		if err != nil {
			return nil, err
		}
		return tableRows(tables), nil
	})
	if err != nil {
		return nil, err
	}
	return tablesFromRows(rows), nil
}

// ListColumns returns the columns matching the filters, ordered by
// table and ordinal position. Lazy loading applies as for ListTables.
func (e *Engine) ListColumns(ctx context.Context, catalog, schemaPattern, tablePattern, columnPattern *string) (out []tbcbq.ColumnDescriptor, err error) {
	if e.lazy && schemaPattern == nil && tablePattern == nil {
		e.logger.DebugContext(ctx, "lazy load: column listing deferred until a pattern is given")
		return []tbcbq.ColumnDescriptor{}, nil
	}

	ctx, span := e.startSpan(ctx, "ListColumns", catalog, schemaPattern, tablePattern)
	defer func() { endSpan(span, err) }()

	key := cacheKey(opColumns, e.catalogComponent(catalog), []*string{schemaPattern, tablePattern, columnPattern}, nil)
	rows, err := e.lookup(ctx, key, columnColumns, func(ctx context.Context) ([][]any, error) {
		columns, err := e.fetchColumns(ctx, catalog, schemaPattern, tablePattern, columnPattern)
		if err != nil {
			return nil, err
		}
		return columnRows(columns), nil
	})
	if err != nil {
		return nil, err
	}
	return columnsFromRows(rows), nil
}

// InvalidateListings drops every cached schema, table and column
// listing. A DDL target may sit in any catalog, and a listing cached
// under a catalog pattern cannot be traced back to the catalogs it read.
func (e *Engine) InvalidateListings() int {
	if e.cache == nil {
		return 0
	}
	removed := 0
	for _, op := range []string{opSchemas, opTables, opColumns} {
		removed += e.cache.Invalidate(op + ":")
	}
	return removed
}

// catalogComponent renders the catalog part of a cache key. A literal
// catalog keys as itself; nil and wildcard patterns key as the set of
// catalogs they resolve to, which depends on ExtraCatalogs.
func (e *Engine) catalogComponent(catalog *string) string {
	if lit, ok := internal.LiteralPattern(catalog); ok {
		return lit
	}
	return "{" + strings.Join(e.resolveCatalogs(catalog), ",") + "}"
}

// cacheKey renders "<op>:<catalog>.<p1>.<p2>...|<kinds>", with nil
// parameters as "<nil>".
func cacheKey(op, catalog string, params []*string, kinds []string) string {
	var b strings.Builder
	b.WriteString(op)
	b.WriteByte(':')
	b.WriteString(catalog)
	for _, p := range params {
		b.WriteByte('.')
		if p == nil {
			b.WriteString(nilComponent)
		} else {
			b.WriteString(*p)
		}
	}
	b.WriteByte('|')
	if kinds == nil {
		b.WriteString(nilComponent)
	} else {
		b.WriteString(strings.Join(kinds, ","))
	}
	return b.String()
}

// lookup answers from the cache or runs fetch, coalescing concurrent
// misses for the same key into one fetch.
func (e *Engine) lookup(ctx context.Context, key string, columns []cache.Column, fetch func(context.Context) ([][]any, error)) ([][]any, error) {
	if e.cache != nil {
		if entry, ok := e.cache.Get(key); ok {
			e.logger.DebugContext(ctx, "catalog cache hit", "key", key)
			return entry.Rows, nil
		}
	}

	v, err, shared := e.inflight.Do(key, func() (any, error) {
		rows, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Put(cache.Entry{Key: key, Columns: columns, Rows: rows})
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "catalog cache miss", "key", key, "rows", len(v.([][]any)), "shared", shared)
	return v.([][]any), nil
}

// resolveCatalogs filters the known catalogs by pattern. A pattern
// without wildcards that names an unknown catalog is used as given.
func (e *Engine) resolveCatalogs(pattern *string) []string {
	match := internal.CompilePattern(pattern)
	var out []string
	for _, c := range e.catalogs {
		if match.Match(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		if lit, ok := internal.LiteralPattern(pattern); ok && lit != "" {
			out = append(out, lit)
		}
	}
	return out
}

// absorbNotFound turns a NotFound error for one enumeration unit into
// an empty result.
func (e *Engine) absorbNotFound(ctx context.Context, err error, unit string, args ...any) error {
	if !tbcbq.IsStatus(err, tbcbq.StatusNotFound) {
		return err
	}
	e.logger.WarnContext(ctx, unit+" vanished during catalog enumeration, skipping", append(args, "error", err)...)
	return nil
}

func (e *Engine) containers(ctx context.Context, catalog string, match internal.Pattern) ([]remote.Container, error) {
	all, err := e.client.ListContainers(ctx, catalog)
	if err != nil {
		return nil, e.absorbNotFound(ctx, err, "project", "catalog", catalog)
	}
	out := all[:0:0]
	for _, c := range all {
		if match.Match(c.Name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) fetchSchemas(ctx context.Context, catalog, schemaPattern *string) ([]tbcbq.SchemaDescriptor, error) {
	schemaMatch := internal.CompilePattern(schemaPattern)

	out, err := fanout.FlatMap(ctx, e.fanout, e.resolveCatalogs(catalog), func(ctx context.Context, cat string) ([]tbcbq.SchemaDescriptor, error) {
		containers, err := e.containers(ctx, cat, schemaMatch)
		if err != nil {
			return nil, err
		}
		schemas := make([]tbcbq.SchemaDescriptor, len(containers))
		for i, c := range containers {
			schemas[i] = tbcbq.SchemaDescriptor{Catalog: c.Catalog, Name: c.Name, Location: c.Location}
		}
		return schemas, nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b tbcbq.SchemaDescriptor) int {
		return cmp.Or(cmp.Compare(a.Catalog, b.Catalog), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

func kindAllowed(kinds []string, kind string) bool {
	if len(kinds) == 0 {
		return true
	}
	return slices.ContainsFunc(kinds, func(k string) bool { return strings.EqualFold(k, kind) })
}

// tablesIn lists the entities of one container that pass the filters.
func (e *Engine) tablesIn(ctx context.Context, c remote.Container, tableMatch internal.Pattern, kinds []string) ([]remote.Entity, error) {
	entities, err := e.client.ListEntities(ctx, c)
	if err != nil {
		return nil, e.absorbNotFound(ctx, err, "dataset", "catalog", c.Catalog, "db_schema", c.Name)
	}
	out := entities[:0:0]
	for _, ent := range entities {
		if tableMatch.Match(ent.Name) && kindAllowed(kinds, ent.Kind) {
			out = append(out, ent)
		}
	}
	return out, nil
}

// matchingContainers fans out over catalogs to collect the containers
// passing schemaMatch.
func (e *Engine) matchingContainers(ctx context.Context, catalog *string, schemaMatch internal.Pattern) ([]remote.Container, error) {
	return fanout.FlatMap(ctx, e.fanout, e.resolveCatalogs(catalog), func(ctx context.Context, cat string) ([]remote.Container, error) {
		return e.containers(ctx, cat, schemaMatch)
	})
}

func (e *Engine) fetchTables(ctx context.Context, catalog, schemaPattern, tablePattern *string, kinds []string) ([]tbcbq.TableDescriptor, error) {
	tableMatch := internal.CompilePattern(tablePattern)

	containers, err := e.matchingContainers(ctx, catalog, internal.CompilePattern(schemaPattern))
	if err != nil {
		return nil, err
	}

	// one task per dataset
	out, err := fanout.FlatMap(ctx, e.fanout, containers, func(ctx context.Context, c remote.Container) ([]tbcbq.TableDescriptor, error) {
		entities, err := e.tablesIn(ctx, c, tableMatch, kinds)
		if err != nil {
			return nil, err
		}
		tables := make([]tbcbq.TableDescriptor, len(entities))
		for i, ent := range entities {
			tables[i] = tbcbq.TableDescriptor{
				Catalog: ent.Catalog,
				Schema:  ent.Schema,
				Name:    ent.Name,
				Kind:    ent.Kind,
				Remarks: ent.Remarks,
			}
		}
		return tables, nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b tbcbq.TableDescriptor) int {
		return cmp.Or(
			cmp.Compare(a.Catalog, b.Catalog),
			cmp.Compare(a.Schema, b.Schema),
			cmp.Compare(a.Name, b.Name),
		)
	})
	return out, nil
}

func (e *Engine) fetchColumns(ctx context.Context, catalog, schemaPattern, tablePattern, columnPattern *string) ([]tbcbq.ColumnDescriptor, error) {
	tableMatch := internal.CompilePattern(tablePattern)
	columnMatch := internal.CompilePattern(columnPattern)

	containers, err := e.matchingContainers(ctx, catalog, internal.CompilePattern(schemaPattern))
	if err != nil {
		return nil, err
	}

	// one task per dataset, each fanning out one task per table
	out, err := fanout.FlatMap(ctx, e.fanout, containers, func(ctx context.Context, c remote.Container) ([]tbcbq.ColumnDescriptor, error) {
		entities, err := e.tablesIn(ctx, c, tableMatch, nil)
		if err != nil {
			return nil, err
		}
		return fanout.FlatMap(ctx, e.fanout, entities, func(ctx context.Context, ent remote.Entity) ([]tbcbq.ColumnDescriptor, error) {
			fields, err := e.client.DescribeEntity(ctx, ent)
			if err != nil {
				return nil, e.absorbNotFound(ctx, err, "table", "catalog", ent.Catalog, "db_schema", ent.Schema, "table", ent.Name)
			}
			var cols []tbcbq.ColumnDescriptor
			for _, f := range fields {
				if !columnMatch.Match(f.Name) {
					continue
				}
				cols = append(cols, tbcbq.ColumnDescriptor{
					Catalog:      ent.Catalog,
					Schema:       ent.Schema,
					Table:        ent.Name,
					Name:         f.Name,
					Ordinal:      f.Ordinal,
					TypeName:     f.TypeName,
					XdbcDataType: int16(internal.ToXdbcDataType(f.Type)),
					Nullable:     f.Nullable,
					Remarks:      f.Remarks,
				})
			}
			return cols, nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b tbcbq.ColumnDescriptor) int {
		return cmp.Or(
			cmp.Compare(a.Catalog, b.Catalog),
			cmp.Compare(a.Schema, b.Schema),
			cmp.Compare(a.Table, b.Table),
			cmp.Compare(a.Ordinal, b.Ordinal),
		)
	})
	return out, nil
}

func (e *Engine) startSpan(ctx context.Context, name string, catalog, schema, table *string) (context.Context, trace.Span) {
	attr := func(k string, v *string) attribute.KeyValue {
		if v == nil {
			return attribute.String(k, nilComponent)
		}
		return attribute.String(k, *v)
	}
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attr("db.catalog", catalog),
		attr("db.schema", schema),
		attr("db.table", table),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
