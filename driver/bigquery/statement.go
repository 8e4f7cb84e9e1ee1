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
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/execution"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"golang.org/x/exp/slices"
)

type statement struct {
	driverbase.StatementImplBase

	cnxn         *connectionImpl
	exec         *execution.Context
	query        string
	queryOptions remote.QueryOptions
	destination  *bigquery.Table
	timeout      time.Duration
	closed       atomic.Bool
}

// Close releases the open result reader and stops any running job.
//
// A statement instance should not be used after Close is called.
func (st *statement) Close() error {
	if !st.closed.CompareAndSwap(false, true) {
		return nil
	}
	st.cnxn.forget(st)
	return st.exec.Close()
}

func (st *statement) GetOption(key string) (string, error) {
	switch key {
	case OptionDoubleQueryTimeoutSeconds:
		return strconv.FormatFloat(st.timeout.Seconds(), 'f', -1, 64), nil
	case OptionStringQueryDestinationTable:
		return tableToString(st.destination), nil
	case OptionStringQueryDefaultProjectID:
		return st.queryOptions.DefaultProjectID, nil
	case OptionStringQueryDefaultDatasetID:
		return st.queryOptions.DefaultDatasetID, nil
	case OptionStringQueryPriority:
		return st.queryOptions.Priority, nil
	case OptionStringQueryLabels:
		return labelsToString(st.queryOptions.Labels), nil
	case OptionBoolQueryUseLegacySQL:
		return formatBool(st.queryOptions.UseLegacySQL), nil
	case OptionBoolQueryDryRun:
		return formatBool(st.queryOptions.DryRun), nil
	case OptionBoolQueryDisableQueryCache:
		return formatBool(st.queryOptions.DisableCache), nil
	case OptionIntQueryMaxBytesBilled:
		return strconv.FormatInt(st.queryOptions.MaxBytesBilled, 10), nil
	case OptionIntQueryJobTimeout:
		return strconv.FormatInt(st.queryOptions.JobTimeout.Milliseconds(), 10), nil
	case OptionStringProjectID, OptionStringDatasetID, OptionStringLocation:
		return st.cnxn.GetOption(key)
	}
	return st.StatementImplBase.GetOption(key)
}

func (st *statement) GetOptionInt(key string) (int64, error) {
	switch key {
	case OptionIntQueryMaxBytesBilled:
		return st.queryOptions.MaxBytesBilled, nil
	case OptionIntQueryJobTimeout:
		return st.queryOptions.JobTimeout.Milliseconds(), nil
	}
	return st.StatementImplBase.GetOptionInt(key)
}

func (st *statement) GetOptionDouble(key string) (float64, error) {
	switch key {
	case OptionDoubleQueryTimeoutSeconds:
		return st.timeout.Seconds(), nil
	}
	return st.StatementImplBase.GetOptionDouble(key)
}

func (st *statement) SetOption(key string, v string) error {
	var err error
	switch key {
	case OptionDoubleQueryTimeoutSeconds:
		var timeout time.Duration
		if timeout, err = parseSeconds(st.ErrorHelper, key, v); err == nil {
			st.timeout = timeout
		}
	case OptionStringQueryDestinationTable:
		if v == "" {
			st.destination = nil
			return nil
		}
		val, err := stringToTable(st, v)
		if err != nil {
			return err
		}
		st.destination = val
	case OptionStringQueryDefaultProjectID:
		st.queryOptions.DefaultProjectID = v
	case OptionStringQueryDefaultDatasetID:
		st.queryOptions.DefaultDatasetID = v
	case OptionStringQueryPriority:
		var priority string
		if priority, err = stringToQueryPriority(st.ErrorHelper, v); err == nil {
			st.queryOptions.Priority = priority
		}
	case OptionStringQueryLabels:
		var labels map[string]string
		if labels, err = parseLabels(st.ErrorHelper, key, v); err == nil {
			st.queryOptions.Labels = labels
		}
	case OptionBoolQueryUseLegacySQL:
		st.queryOptions.UseLegacySQL, err = parseBool(st.ErrorHelper, key, v)
	case OptionBoolQueryDryRun:
		st.queryOptions.DryRun, err = parseBool(st.ErrorHelper, key, v)
	case OptionBoolQueryDisableQueryCache:
		st.queryOptions.DisableCache, err = parseBool(st.ErrorHelper, key, v)
	case OptionIntQueryMaxBytesBilled, OptionIntQueryJobTimeout:
		var n int64
		if n, err = parseInt(st.ErrorHelper, key, v, 0); err == nil {
			return st.SetOptionInt(key, n)
		}
	default:
		return st.StatementImplBase.SetOption(key, v)
	}
	return err
}

func (st *statement) SetOptionInt(key string, value int64) error {
	if value < 0 {
		return st.ErrorHelper.Errorf(tbcbq.StatusInvalidArgument, "invalid value for %s: %d is negative", key, value)
	}
	switch key {
	case OptionIntQueryMaxBytesBilled:
		st.queryOptions.MaxBytesBilled = value
	case OptionIntQueryJobTimeout:
		st.queryOptions.JobTimeout = time.Duration(value) * time.Millisecond
	default:
		return st.StatementImplBase.SetOptionInt(key, value)
	}
	return nil
}

func (st *statement) SetOptionDouble(key string, value float64) error {
	switch key {
	case OptionDoubleQueryTimeoutSeconds:
		timeout, err := secondsToDuration(st.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		st.timeout = timeout
		return nil
	}
	return st.StatementImplBase.SetOptionDouble(key, value)
}

// SetSqlQuery sets the query string to be executed.
func (st *statement) SetSqlQuery(query string) error {
	st.query = query
	return nil
}

func (st *statement) options() remote.QueryOptions {
	opts := st.queryOptions
	if st.destination != nil {
		opts.Destination = &remote.TableRef{
			Project: st.destination.ProjectID,
			Dataset: st.destination.DatasetID,
			Table:   st.destination.TableID,
		}
	}
	return opts
}

func (st *statement) execute(ctx context.Context, spanName string) (*execution.Cursor, error) {
	if st.closed.Load() {
		return nil, st.ErrorHelper.Errorf(tbcbq.StatusInvalidState, "statement is closed")
	}
	if strings.TrimSpace(st.query) == "" {
		return nil, st.ErrorHelper.Errorf(tbcbq.StatusInvalidState, "no query set")
	}

	ctx, span := st.StartSpan(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("db.system.name", "gcp.bigquery"), semconv.DBQueryTextKey.String(st.query))

	cur, err := st.exec.Execute(ctx, st.query, st.options(), st.timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tbcbq.job_id", cur.JobID),
		attribute.String("tbcbq.statement_type", cur.StatementType),
	)

	if isDDL(cur.StatementType) {
		st.cnxn.invalidateAfterDDL(ctx)
	}
	return cur, nil
}

// ExecuteQuery executes the current query and returns a RecordReader for
// the results along with the number of rows affected if known, otherwise
// it will be -1.
//
// This invalidates any prior result sets on this statement.
func (st *statement) ExecuteQuery(ctx context.Context) (array.RecordReader, int64, error) {
	cur, err := st.execute(ctx, "ExecuteQuery")
	if err != nil {
		return nil, -1, err
	}
	if cur.AffectedRows >= 0 {
		return cur, cur.AffectedRows, nil
	}
	return cur, cur.TotalRows, nil
}

// ExecuteUpdate executes a statement that does not generate a result
// set. It returns the number of rows affected if known, otherwise -1.
func (st *statement) ExecuteUpdate(ctx context.Context) (int64, error) {
	cur, err := st.execute(ctx, "ExecuteUpdate")
	if err != nil {
		return -1, err
	}
	defer st.exec.CloseCursor()
	return cur.AffectedRows, nil
}

// Cancel stops the running job, if any. It may be called from another
// goroutine.
func (st *statement) Cancel() error {
	st.exec.Cancel()
	return nil
}

func stringToQueryPriority(helper driverbase.ErrorHelper, value string) (string, error) {
	switch strings.ToUpper(value) {
	case "":
		return "", nil
	case OptionValueQueryPriorityBatch:
		return string(bigquery.BatchPriority), nil
	case OptionValueQueryPriorityInteractive:
		return string(bigquery.InteractivePriority), nil
	}
	return "", helper.Errorf(tbcbq.StatusInvalidArgument, "unknown query priority '%s'", value)
}

// stringToTable resolves "table", "dataset.table" or
// "project.dataset.table" against the connection's current namespace.
func stringToTable(st *statement, value string) (*bigquery.Table, error) {
	parts := strings.Split(value, ".")
	table := &bigquery.Table{
		ProjectID: st.cnxn.catalog,
		DatasetID: st.cnxn.dbSchema,
	}
	switch len(parts) {
	case 1:
		table.TableID = parts[0]
	case 2:
		table.DatasetID, table.TableID = parts[0], parts[1]
	case 3:
		table.ProjectID, table.DatasetID, table.TableID = parts[0], parts[1], parts[2]
	default:
		return nil, tbcbq.Error{
			Code: tbcbq.StatusInvalidArgument,
			Msg:  fmt.Sprintf("invalid table reference `%s`: expected [[project.]dataset.]table", value),
		}
	}
	for _, part := range parts {
		if part == "" {
			return nil, tbcbq.Error{
				Code: tbcbq.StatusInvalidArgument,
				Msg:  fmt.Sprintf("invalid table reference `%s`: empty component", value),
			}
		}
	}
	return table, nil
}

func tableToString(table *bigquery.Table) string {
	if table == nil {
		return ""
	}
	return fmt.Sprintf("%s.%s.%s", table.ProjectID, table.DatasetID, table.TableID)
}

func labelsToString(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + labels[k]
	}
	return strings.Join(parts, ",")
}
