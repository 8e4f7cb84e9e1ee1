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
	"log/slog"
	"strings"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ConnectionMessageOptionUnknown     = "Unknown connection option"
	ConnectionMessageOptionUnsupported = "Unsupported connection option"
	ConnectionMessageAlreadyClosed     = "Trying to close already closed connection"
)

// ConnectionImpl is an interface that drivers implement to provide
// vendor-specific functionality.
type ConnectionImpl interface {
	tbcbq.Connection
	tbcbq.GetSetOptions
	tbcbq.OTelTracing
	Base() *ConnectionImplBase
}

// CurrentNamespacer is an interface that drivers may implement to delegate
// stateful namespacing with DB catalogs and schemas. The appropriate (Get/Set)Options
// implementations will be provided using the results of these methods.
type CurrentNamespacer interface {
	GetCurrentCatalog() (string, error)
	GetCurrentDbSchema() (string, error)
	SetCurrentCatalog(string) error
	SetCurrentDbSchema(string) error
}

// TableTypeLister is an interface that drivers may implement to simplify the
// implementation of tbcbq.Connection.GetTableTypes(). The conversion of the
// result to a RecordReader is handled automatically.
type TableTypeLister interface {
	ListTableTypes(ctx context.Context) ([]string, error)
}

// Connection is the interface satisfied by the result of the NewConnection constructor,
// given that an input is provided satisfying the ConnectionImpl interface.
type Connection interface {
	tbcbq.Connection
	tbcbq.GetSetOptions
	tbcbq.OTelTracing
	tbcbq.CatalogBrowser
	tbcbq.CatalogCache
}

// ConnectionImplBase is a struct that provides default implementations of the
// ConnectionImpl interface. It is meant to be used as a composite struct for a
// driver's ConnectionImpl implementation.
type ConnectionImplBase struct {
	Alloc       memory.Allocator
	ErrorHelper ErrorHelper
	DriverInfo  *DriverInfo
	Logger      *slog.Logger
	Tracer      trace.Tracer

	Closed bool

	db          *DatabaseImplBase
	traceParent string
}

// NewConnectionImplBase instantiates ConnectionImplBase.
//
//   - database is a DatabaseImplBase containing the common resources from the parent
//     database, allowing the Arrow allocator, error handler, and logger to be reused.
func NewConnectionImplBase(database *DatabaseImplBase) ConnectionImplBase {
	return ConnectionImplBase{
		Alloc:       database.Alloc,
		ErrorHelper: database.ErrorHelper,
		DriverInfo:  database.DriverInfo,
		Logger:      database.Logger,
		Tracer:      database.Tracer,
		db:          database,
	}
}

func (base *ConnectionImplBase) Base() *ConnectionImplBase {
	return base
}

func (base *ConnectionImplBase) Commit(ctx context.Context) error {
	return base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "Commit")
}

func (base *ConnectionImplBase) Rollback(context.Context) error {
	return base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "Rollback")
}

func (base *ConnectionImplBase) Close() error {
	return nil
}

func (base *ConnectionImplBase) GetSchemas(ctx context.Context, catalog, dbSchema *string) (array.RecordReader, error) {
	return nil, base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "GetSchemas")
}

func (base *ConnectionImplBase) GetTables(ctx context.Context, catalog, dbSchema, tableName *string, tableType []string) (array.RecordReader, error) {
	return nil, base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "GetTables")
}

func (base *ConnectionImplBase) GetColumns(ctx context.Context, catalog, dbSchema, tableName, columnName *string) (array.RecordReader, error) {
	return nil, base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "GetColumns")
}

func (base *ConnectionImplBase) GetTableSchema(ctx context.Context, catalog *string, dbSchema *string, tableName string) (*arrow.Schema, error) {
	return nil, base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "GetTableSchema")
}

func (base *ConnectionImplBase) GetTableTypes(context.Context) (array.RecordReader, error) {
	return nil, base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "GetTableTypes")
}

func (base *ConnectionImplBase) NewStatement() (tbcbq.Statement, error) {
	return nil, base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "NewStatement")
}

func (base *ConnectionImplBase) GetOption(key string) (string, error) {
	switch key {
	case tbcbq.OptionKeyAutoCommit:
		return tbcbq.OptionValueEnabled, nil
	case tbcbq.OptionKeyTelemetryTraceParent:
		return base.traceParent, nil
	}
	return "", base.ErrorHelper.Errorf(tbcbq.StatusNotFound, "%s '%s'", ConnectionMessageOptionUnknown, key)
}

func (base *ConnectionImplBase) GetOptionDouble(key string) (float64, error) {
	return 0, base.ErrorHelper.Errorf(tbcbq.StatusNotFound, "%s '%s'", ConnectionMessageOptionUnknown, key)
}

func (base *ConnectionImplBase) GetOptionInt(key string) (int64, error) {
	return 0, base.ErrorHelper.Errorf(tbcbq.StatusNotFound, "%s '%s'", ConnectionMessageOptionUnknown, key)
}

func (base *ConnectionImplBase) SetOption(key string, val string) error {
	switch key {
	case tbcbq.OptionKeyAutoCommit:
		if val == tbcbq.OptionValueEnabled {
			return nil
		}
		return base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "%s '%s'", ConnectionMessageOptionUnsupported, key)
	case tbcbq.OptionKeyTelemetryTraceParent:
		base.traceParent = strings.TrimSpace(val)
		return nil
	}
	return base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "%s '%s'", ConnectionMessageOptionUnknown, key)
}

func (base *ConnectionImplBase) SetOptionDouble(key string, val float64) error {
	return base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "%s '%s'", ConnectionMessageOptionUnknown, key)
}

func (base *ConnectionImplBase) SetOptionInt(key string, val int64) error {
	return base.ErrorHelper.Errorf(tbcbq.StatusNotImplemented, "%s '%s'", ConnectionMessageOptionUnknown, key)
}

func (base *ConnectionImplBase) GetTraceParent() string {
	return base.traceParent
}

func (base *ConnectionImplBase) SetTraceParent(traceParent string) {
	base.traceParent = traceParent
}

func (base *ConnectionImplBase) GetInitialSpanAttributes() []attribute.KeyValue {
	return getInitialSpanAttributes(base.DriverInfo)
}

// StartSpan starts a span parented on the connection's trace parent,
// falling back to the database's.
func (base *ConnectionImplBase) StartSpan(
	ctx context.Context,
	spanName string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	var dbTracing tbcbq.OTelTracing
	if base.db != nil {
		dbTracing = base.db
	}
	ctx, _ = maybeAddTraceParent(ctx, dbTracing, base)
	return base.Tracer.Start(ctx, spanName, opts...)
}

type connection struct {
	ConnectionImpl

	catalogBrowser    tbcbq.CatalogBrowser
	catalogCache      tbcbq.CatalogCache
	currentNamespacer CurrentNamespacer
	tableTypeLister   TableTypeLister
}

type ConnectionBuilder struct {
	connection *connection
}

func NewConnectionBuilder(impl ConnectionImpl) *ConnectionBuilder {
	return &ConnectionBuilder{connection: &connection{ConnectionImpl: impl}}
}

// WithCatalogBrowser serves GetSchemas, GetTables and GetColumns from the
// typed descriptors of helper.
func (b *ConnectionBuilder) WithCatalogBrowser(helper tbcbq.CatalogBrowser) *ConnectionBuilder {
	if b == nil {
		panic("nil ConnectionBuilder: cannot reuse after calling Connection()")
	}
	b.connection.catalogBrowser = helper
	return b
}

// WithCatalogCache exposes helper through the connection. Without it the
// cache controls are no-ops.
func (b *ConnectionBuilder) WithCatalogCache(helper tbcbq.CatalogCache) *ConnectionBuilder {
	if b == nil {
		panic("nil ConnectionBuilder: cannot reuse after calling Connection()")
	}
	b.connection.catalogCache = helper
	return b
}

func (b *ConnectionBuilder) WithCurrentNamespacer(helper CurrentNamespacer) *ConnectionBuilder {
	if b == nil {
		panic("nil ConnectionBuilder: cannot reuse after calling Connection()")
	}
	b.connection.currentNamespacer = helper
	return b
}

func (b *ConnectionBuilder) WithTableTypeLister(helper TableTypeLister) *ConnectionBuilder {
	if b == nil {
		panic("nil ConnectionBuilder: cannot reuse after calling Connection()")
	}
	b.connection.tableTypeLister = helper
	return b
}

func (b *ConnectionBuilder) Connection() Connection {
	conn := b.connection
	b.connection = nil
	return conn
}

func (cnxn *connection) notBrowsable(op string) error {
	return cnxn.Base().ErrorHelper.Errorf(tbcbq.StatusNotImplemented, op)
}

func (cnxn *connection) ListCatalogs(ctx context.Context, catalogPattern *string) ([]string, error) {
	if cnxn.catalogBrowser == nil {
		return nil, cnxn.notBrowsable("ListCatalogs")
	}
	return cnxn.catalogBrowser.ListCatalogs(ctx, catalogPattern)
}

func (cnxn *connection) ListSchemas(ctx context.Context, catalog, schemaPattern *string) ([]tbcbq.SchemaDescriptor, error) {
	if cnxn.catalogBrowser == nil {
		return nil, cnxn.notBrowsable("ListSchemas")
	}
	return cnxn.catalogBrowser.ListSchemas(ctx, catalog, schemaPattern)
}

func (cnxn *connection) ListTables(ctx context.Context, catalog, schemaPattern, tablePattern *string, kinds []string) ([]tbcbq.TableDescriptor, error) {
	if cnxn.catalogBrowser == nil {
		return nil, cnxn.notBrowsable("ListTables")
	}
	return cnxn.catalogBrowser.ListTables(ctx, catalog, schemaPattern, tablePattern, kinds)
}

func (cnxn *connection) ListColumns(ctx context.Context, catalog, schemaPattern, tablePattern, columnPattern *string) ([]tbcbq.ColumnDescriptor, error) {
	if cnxn.catalogBrowser == nil {
		return nil, cnxn.notBrowsable("ListColumns")
	}
	return cnxn.catalogBrowser.ListColumns(ctx, catalog, schemaPattern, tablePattern, columnPattern)
}

func (cnxn *connection) InvalidateCache(prefix string) int {
	if cnxn.catalogCache == nil {
		return 0
	}
	return cnxn.catalogCache.InvalidateCache(prefix)
}

func (cnxn *connection) ClearCache() {
	if cnxn.catalogCache != nil {
		cnxn.catalogCache.ClearCache()
	}
}

func (cnxn *connection) CacheStats() tbcbq.CacheStats {
	if cnxn.catalogCache == nil {
		return tbcbq.CacheStats{}
	}
	return cnxn.catalogCache.CacheStats()
}

func (cnxn *connection) GetSchemas(ctx context.Context, catalog, dbSchema *string) (array.RecordReader, error) {
	if cnxn.catalogBrowser == nil {
		return cnxn.ConnectionImpl.GetSchemas(ctx, catalog, dbSchema)
	}
	schemas, err := cnxn.catalogBrowser.ListSchemas(ctx, catalog, dbSchema)
	if err != nil {
		return nil, err
	}
	return SchemasReader(cnxn.Base().Alloc, schemas)
}

func (cnxn *connection) GetTables(ctx context.Context, catalog, dbSchema, tableName *string, tableType []string) (array.RecordReader, error) {
	if cnxn.catalogBrowser == nil {
		return cnxn.ConnectionImpl.GetTables(ctx, catalog, dbSchema, tableName, tableType)
	}
	tables, err := cnxn.catalogBrowser.ListTables(ctx, catalog, dbSchema, tableName, tableType)
	if err != nil {
		return nil, err
	}
	return TablesReader(cnxn.Base().Alloc, tables)
}

func (cnxn *connection) GetColumns(ctx context.Context, catalog, dbSchema, tableName, columnName *string) (array.RecordReader, error) {
	if cnxn.catalogBrowser == nil {
		return cnxn.ConnectionImpl.GetColumns(ctx, catalog, dbSchema, tableName, columnName)
	}
	columns, err := cnxn.catalogBrowser.ListColumns(ctx, catalog, dbSchema, tableName, columnName)
	if err != nil {
		return nil, err
	}
	return ColumnsReader(cnxn.Base().Alloc, columns)
}

func (cnxn *connection) GetOption(key string) (string, error) {
	switch key {
	case tbcbq.OptionKeyCurrentCatalog:
		if cnxn.currentNamespacer != nil {
			val, err := cnxn.currentNamespacer.GetCurrentCatalog()
			if err != nil {
				return "", cnxn.Base().ErrorHelper.Errorf(tbcbq.StatusNotFound, "failed to get current catalog: %s", err)
			}
			return val, nil
		}
	case tbcbq.OptionKeyCurrentDbSchema:
		if cnxn.currentNamespacer != nil {
			val, err := cnxn.currentNamespacer.GetCurrentDbSchema()
			if err != nil {
				return "", cnxn.Base().ErrorHelper.Errorf(tbcbq.StatusNotFound, "failed to get current db schema: %s", err)
			}
			return val, nil
		}
	}
	return cnxn.ConnectionImpl.GetOption(key)
}

func (cnxn *connection) SetOption(key string, val string) error {
	switch key {
	case tbcbq.OptionKeyCurrentCatalog:
		if cnxn.currentNamespacer != nil {
			return cnxn.currentNamespacer.SetCurrentCatalog(val)
		}
	case tbcbq.OptionKeyCurrentDbSchema:
		if cnxn.currentNamespacer != nil {
			return cnxn.currentNamespacer.SetCurrentDbSchema(val)
		}
	}
	return cnxn.ConnectionImpl.SetOption(key, val)
}

func (cnxn *connection) GetTableTypes(ctx context.Context) (array.RecordReader, error) {
	if cnxn.tableTypeLister == nil {
		return cnxn.ConnectionImpl.GetTableTypes(ctx)
	}

	tableTypes, err := cnxn.tableTypeLister.ListTableTypes(ctx)
	if err != nil {
		return nil, err
	}

	bldr := array.NewRecordBuilder(cnxn.Base().Alloc, tbcbq.TableTypesSchema)
	defer bldr.Release()

	bldr.Field(0).(*array.StringBuilder).AppendValues(tableTypes, nil)
	final := bldr.NewRecord()
	defer final.Release()
	return array.NewRecordReader(tbcbq.TableTypesSchema, []arrow.Record{final})
}

func (cnxn *connection) Close() error {
	if cnxn.Base().Closed {
		return cnxn.Base().ErrorHelper.Errorf(tbcbq.StatusInvalidState, ConnectionMessageAlreadyClosed)
	}

	err := cnxn.ConnectionImpl.Close()
	if err == nil {
		cnxn.Base().Closed = true
	}

	return err
}

var (
	_ ConnectionImpl       = (*ConnectionImplBase)(nil)
	_ tbcbq.CatalogBrowser = (*connection)(nil)
	_ tbcbq.CatalogCache   = (*connection)(nil)
)
