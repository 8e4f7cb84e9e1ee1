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

package bigquery

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/cache"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/catalog"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/execution"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/hashicorp/go-multierror"
)

// tableTypes are the entity kinds a dataset can hold.
var tableTypes = []string{"TABLE", "VIEW", "MATERIALIZED VIEW", "EXTERNAL", "SNAPSHOT", "CLONE"}

type connectionImpl struct {
	driverbase.ConnectionImplBase

	db       *databaseImpl
	client   remote.Client
	catalogs *catalog.Engine
	cache    *cache.Cache

	catalog  string
	dbSchema string

	defaultTimeout time.Duration

	mu         sync.Mutex
	statements map[*statement]struct{}
}

// GetCurrentCatalog implements driverbase.CurrentNamespacer.
func (c *connectionImpl) GetCurrentCatalog() (string, error) {
	return c.catalog, nil
}

// GetCurrentDbSchema implements driverbase.CurrentNamespacer.
func (c *connectionImpl) GetCurrentDbSchema() (string, error) {
	return c.dbSchema, nil
}

// SetCurrentCatalog implements driverbase.CurrentNamespacer.
func (c *connectionImpl) SetCurrentCatalog(value string) error {
	sanitizedCatalog, err := sanitize(value)
	if err != nil {
		return err
	}
	c.catalog = sanitizedCatalog
	return nil
}

// SetCurrentDbSchema implements driverbase.CurrentNamespacer.
func (c *connectionImpl) SetCurrentDbSchema(value string) error {
	sanitizedDbSchema, err := sanitize(value)
	if err != nil {
		return err
	}
	c.dbSchema = sanitizedDbSchema
	return nil
}

// ListTableTypes implements driverbase.TableTypeLister.
func (c *connectionImpl) ListTableTypes(ctx context.Context) ([]string, error) {
	return tableTypes, nil
}

func (c *connectionImpl) ListCatalogs(ctx context.Context, catalogPattern *string) ([]string, error) {
	return c.catalogs.ListCatalogs(ctx, catalogPattern)
}

func (c *connectionImpl) ListSchemas(ctx context.Context, catalog, schemaPattern *string) ([]tbcbq.SchemaDescriptor, error) {
	return c.catalogs.ListSchemas(ctx, catalog, schemaPattern)
}

func (c *connectionImpl) ListTables(ctx context.Context, catalog, schemaPattern, tablePattern *string, kinds []string) ([]tbcbq.TableDescriptor, error) {
	return c.catalogs.ListTables(ctx, catalog, schemaPattern, tablePattern, kinds)
}

func (c *connectionImpl) ListColumns(ctx context.Context, catalog, schemaPattern, tablePattern, columnPattern *string) ([]tbcbq.ColumnDescriptor, error) {
	return c.catalogs.ListColumns(ctx, catalog, schemaPattern, tablePattern, columnPattern)
}

// InvalidateCache drops the cached listings whose key starts with
// prefix. Other connections sharing the cache see the change.
func (c *connectionImpl) InvalidateCache(prefix string) int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Invalidate(prefix)
}

func (c *connectionImpl) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

func (c *connectionImpl) CacheStats() tbcbq.CacheStats {
	if c.cache == nil {
		return tbcbq.CacheStats{}
	}
	return c.cache.Stats()
}

// invalidateAfterDDL drops every cached listing. Other connections
// sharing the cache see the change.
func (c *connectionImpl) invalidateAfterDDL(ctx context.Context) {
	removed := c.catalogs.InvalidateListings()
	c.Logger.DebugContext(ctx, "metadata cache invalidated after DDL", "entries", removed)
}

// Close cancels running statements and releases the client. The shared
// metadata cache outlives the connection.
func (c *connectionImpl) Close() error {
	c.mu.Lock()
	open := make([]*statement, 0, len(c.statements))
	for st := range c.statements {
		open = append(open, st)
	}
	c.statements = make(map[*statement]struct{})
	c.mu.Unlock()

	var errs *multierror.Error
	for _, st := range open {
		errs = multierror.Append(errs, st.exec.Close())
	}
	if c.client != nil {
		errs = multierror.Append(errs, c.client.Close())
	}
	return errs.ErrorOrNil()
}

func (c *connectionImpl) GetTableSchema(ctx context.Context, catalog *string, dbSchema *string, tableName string) (*arrow.Schema, error) {
	entity := remote.Entity{Catalog: c.catalog, Schema: c.dbSchema, Name: tableName}
	if catalog != nil {
		entity.Catalog = *catalog
	}
	if dbSchema != nil {
		entity.Schema = *dbSchema
	}
	if entity.Catalog == "" || entity.Schema == "" || entity.Name == "" {
		return nil, c.ErrorHelper.Errorf(tbcbq.StatusInvalidArgument, "GetTableSchema requires catalog, db schema and table name")
	}

	ctx, span := c.StartSpan(ctx, "GetTableSchema")
	defer span.End()

	fields, err := c.client.DescribeEntity(ctx, entity)
	if err != nil {
		return nil, err
	}
	out := make([]arrow.Field, len(fields))
	for i, f := range fields {
		out[i] = arrow.Field{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
	}
	return arrow.NewSchema(out, nil), nil
}

// NewStatement initializes a new statement object tied to this connection
func (c *connectionImpl) NewStatement() (tbcbq.Statement, error) {
	st := &statement{
		StatementImplBase: driverbase.NewStatementImplBase(&c.ConnectionImplBase, c.ErrorHelper),
		cnxn:              c,
		queryOptions: remote.QueryOptions{
			DefaultProjectID: c.catalog,
			DefaultDatasetID: c.dbSchema,
			Location:         c.db.location,
		},
	}
	st.exec = execution.New(execution.Config{
		Client:         c.client,
		DefaultTimeout: c.defaultTimeout,
		ErrorHelper:    c.ErrorHelper,
		Logger:         c.Logger,
	})

	c.mu.Lock()
	c.statements[st] = struct{}{}
	c.mu.Unlock()
	return driverbase.NewStatement(st), nil
}

func (c *connectionImpl) forget(st *statement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statements, st)
}

func (c *connectionImpl) GetOption(key string) (string, error) {
	switch key {
	case OptionDoubleQueryDefaultTimeoutSeconds:
		return strconv.FormatFloat(c.defaultTimeout.Seconds(), 'f', -1, 64), nil
	case OptionStringProjectID, OptionStringDatasetID, OptionStringLocation,
		OptionStringAuthType, OptionStringAuthScopes, OptionStringAdditionalProjects,
		OptionBoolMetadataCacheEnabled, OptionIntMetadataCacheTTLSeconds, OptionBoolMetadataLazyLoad,
		OptionIntMetadataMaxConcurrency, OptionDoubleMetadataRequestsPerSecond, OptionIntResultBufferSize:
		return c.db.GetOption(key)
	}
	return c.ConnectionImplBase.GetOption(key)
}

func (c *connectionImpl) GetOptionDouble(key string) (float64, error) {
	switch key {
	case OptionDoubleQueryDefaultTimeoutSeconds:
		return c.defaultTimeout.Seconds(), nil
	}
	return c.ConnectionImplBase.GetOptionDouble(key)
}

// SetOption changes the timeout applied to statements created from now
// on.
func (c *connectionImpl) SetOption(key string, value string) error {
	switch key {
	case OptionDoubleQueryDefaultTimeoutSeconds:
		timeout, err := parseSeconds(c.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		c.defaultTimeout = timeout
		return nil
	}
	return c.ConnectionImplBase.SetOption(key, value)
}

func (c *connectionImpl) SetOptionDouble(key string, value float64) error {
	switch key {
	case OptionDoubleQueryDefaultTimeoutSeconds:
		timeout, err := secondsToDuration(c.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		c.defaultTimeout = timeout
		return nil
	}
	return c.ConnectionImplBase.SetOptionDouble(key, value)
}

var (
	sanitizedInputRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// sanitize accepts the empty string and plain project or dataset
// identifiers, including domain-scoped project IDs.
func sanitize(value string) (string, error) {
	if value == "" || sanitizedInputRegex.MatchString(value) {
		return value, nil
	}
	return "", tbcbq.Error{
		Code: tbcbq.StatusInvalidArgument,
		Msg:  fmt.Sprintf("invalid characters in value `%s`", value),
	}
}
