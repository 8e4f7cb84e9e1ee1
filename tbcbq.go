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

// Package tbcbq defines the client-facing interfaces for relational
// access to BigQuery.
//
// A [Driver] opens a [Database] from a map of string options, a Database
// opens [Connection] handles, and a Connection creates [Statement]
// handles. Statements turn the job-oriented remote API into blocking
// "execute and wait" calls with a client-side timeout and cooperative
// cancellation. Connections answer catalog questions (schemas, tables,
// columns) through a cached, concurrent metadata engine.
//
// Result sets are delivered as Arrow record streams.
//
// Objects allow serialized access from multiple goroutines. The one
// exception is [StatementCancel.Cancel], which may be called
// concurrently with an execution on the same statement.
package tbcbq

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type Status -linecomment

// ErrorDetail is additional driver-specific error metadata.
//
// This allows the driver to return structured error information (for
// example the remote job identifier) that callers can inspect without
// parsing the error message.
type ErrorDetail interface {
	// Get an identifier for the detail.
	Key() string
	// Serialize the detail value to a byte array.
	Serialize() ([]byte, error)
}

// ProtobufErrorDetail is an ErrorDetail backed by a Protobuf message.
type ProtobufErrorDetail struct {
	Name    string
	Message proto.Message
}

func (d *ProtobufErrorDetail) Key() string {
	return d.Name
}

// Serialize serializes the Protobuf message (wrapped in Any).
func (d *ProtobufErrorDetail) Serialize() ([]byte, error) {
	any, err := anypb.New(d.Message)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(any)
}

// TextErrorDetail is an ErrorDetail backed by a human-readable string.
type TextErrorDetail struct {
	Name   string
	Detail string
}

func (d *TextErrorDetail) Key() string {
	return d.Name
}

func (d *TextErrorDetail) Serialize() ([]byte, error) {
	return []byte(d.Detail), nil
}

// Well-known error detail keys.
const (
	// DetailJobID carries the identifier of the remote job that failed,
	// timed out or was cancelled.
	DetailJobID = "bigquery.job_id"
	// DetailJobLocation carries the location of the remote job.
	DetailJobLocation = "bigquery.job_location"
	// DetailReason carries the remote error reason (e.g. "invalidQuery").
	DetailReason = "bigquery.reason"
	// DetailHTTPStatus carries the HTTP status code of a failed REST call.
	DetailHTTPStatus = "bigquery.http_status"
	// DetailGRPCStatus carries the serialized gRPC status of a failed call.
	DetailGRPCStatus = "grpc-status-details-bin"
)

// Error is the detailed error for an operation
type Error struct {
	// Msg is a string representing a human readable error message
	Msg string
	// Code is the status representing this error
	Code Status
	// VendorCode is a vendor-specific error code, if applicable
	VendorCode int32
	// SqlState is a SQLSTATE error code, if provided, as defined
	// by the SQL:2003 standard. If not set, it will be "\0\0\0\0\0"
	SqlState [5]byte
	// Details is an array of additional driver-specific error details.
	Details []ErrorDetail
}

func (e Error) Error() string {
	if e.SqlState[0] != 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Msg, string(e.SqlState[:]))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Detail returns the value of the first text detail with the given key.
func (e Error) Detail(key string) (string, bool) {
	for _, d := range e.Details {
		if d.Key() != key {
			continue
		}
		if txt, ok := d.(*TextErrorDetail); ok {
			return txt.Detail, true
		}
	}
	return "", false
}

// IsStatus reports whether err (or anything it wraps) is an [Error]
// with the given status code.
func IsStatus(err error, code Status) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// JobIDFromError extracts the remote job identifier attached to err,
// if any.
func JobIDFromError(err error) (string, bool) {
	var e Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Detail(DetailJobID)
}

// Status represents an error code for operations that may fail
type Status uint8

const (
	// No Error
	StatusOK Status = iota // OK
	// An unknown error occurred.
	StatusUnknown // Unknown
	// The operation is not implemented or supported.
	StatusNotImplemented // Not Implemented
	// A requested resource was not found.
	//
	// Returned for datasets or tables that vanished while the catalog
	// was being enumerated.
	StatusNotFound // Not Found
	// A requested resource already exists
	StatusAlreadyExists // Already Exists
	// The arguments are invalid, likely a programming error.
	//
	// For instance, they may be of the wrong format, or out of range.
	StatusInvalidArgument // Invalid Argument
	// The preconditions for the operation are not met, likely a
	// programming error.
	//
	// For instance, the object may be uninitialized, or may already
	// be closed.
	StatusInvalidState // Invalid State
	// Invalid data was processed (not a programming error)
	StatusInvalidData // Invalid Data
	// The database's integrity was affected.
	StatusIntegrity // Integrity Issue
	// An error internal to the driver or the remote service occurred.
	StatusInternal // Internal
	// An I/O error occurred.
	//
	// For instance the remote service may be unavailable.
	StatusIO // I/O
	// The operation was cancelled, not due to a timeout.
	StatusCancelled // Cancelled
	// The operation was cancelled due to a timeout.
	StatusTimeout // Timeout
	// Authentication failed.
	StatusUnauthenticated // Unauthenticated
	// The client is not authorized to perform the given operation.
	StatusUnauthorized // Unauthorized
)

// Canonical option values
const (
	OptionValueEnabled  = "true"
	OptionValueDisabled = "false"
	OptionKeyAutoCommit = "tbcbq.connection.autocommit"
	// The current catalog (project).
	OptionKeyCurrentCatalog = "tbcbq.connection.catalog"
	// The current schema (dataset).
	OptionKeyCurrentDbSchema = "tbcbq.connection.db_schema"
	// EXPERIMENTAL. Sets/Gets the trace parent on OpenTelemetry traces
	OptionKeyTelemetryTraceParent = "tbcbq.telemetry.trace_parent"
)

// OptionTelemetryExporter names a trace exporter, selected through the
// OTEL_TRACES_EXPORTER environment variable.
type OptionTelemetryExporter string

const (
	TelemetryExporterNone    OptionTelemetryExporter = "none"
	TelemetryExporterOtlp    OptionTelemetryExporter = "otlp"
	TelemetryExporterConsole OptionTelemetryExporter = "console"
)

// Driver is the entry point for the interface. It is similar to
// [database/sql.Driver] taking a map of keys and values as options
// to initialize a [Database]. State shared between every connection
// opened through the driver (such as the metadata cache registry)
// lives in the Driver itself.
type Driver interface {
	NewDatabase(opts map[string]string) (Database, error)
}

// Database holds the configuration needed to open connections.
type Database interface {
	SetOptions(map[string]string) error
	Open(ctx context.Context) (Connection, error)

	// Close closes this database and releases any associated resources.
	Close() error
}

// Connection is a logical session against one BigQuery project.
//
// Connections are not required to be safe for concurrent use; use one
// connection per goroutine or serialize access.
type Connection interface {
	// GetTableTypes returns the table types the catalog engine knows
	// about, as a stream of [TableTypesSchema] records.
	GetTableTypes(context.Context) (array.RecordReader, error)

	// GetSchemas returns the datasets matching the pattern as a stream
	// of [SchemasSchema] records.
	//
	// Patterns use the catalog filter syntax: '%' matches any run of
	// characters, '_' matches exactly one, and a backslash escapes
	// '%', '_' or itself. A nil pattern matches everything.
	GetSchemas(ctx context.Context, catalog, dbSchema *string) (array.RecordReader, error)

	// GetTables returns the tables matching the filters as a stream of
	// [TablesSchema] records. A nil or empty tableType list means no
	// restriction on kind.
	GetTables(ctx context.Context, catalog, dbSchema, tableName *string, tableType []string) (array.RecordReader, error)

	// GetColumns returns the columns matching the filters as a stream
	// of [ColumnsSchema] records.
	GetColumns(ctx context.Context, catalog, dbSchema, tableName, columnName *string) (array.RecordReader, error)

	// GetTableSchema returns the Arrow schema of a single table.
	//
	// If catalog or dbSchema is nil, the connection defaults are used.
	GetTableSchema(ctx context.Context, catalog, dbSchema *string, tableName string) (*arrow.Schema, error)

	// Commit and Rollback are not supported; BigQuery has no
	// client-visible transactions and both return StatusNotImplemented.
	Commit(context.Context) error
	Rollback(context.Context) error

	// NewStatement initializes a new statement object tied to this
	// connection.
	NewStatement() (Statement, error)

	// Close closes this connection. Shared metadata caches are left
	// intact for other connections.
	Close() error
}

// PostInitOptions is an interface which can be implemented by drivers
// which allow modifying and setting options after initializing the
// connection or statement.
type PostInitOptions interface {
	SetOption(key, value string) error
}

// Statement is an execution context: it owns at most one running job
// and at most one open result reader at a time.
type Statement interface {
	// Close releases any relevant resources associated with this
	// statement, including an open result reader and any in-flight job.
	//
	// Closing a statement twice is a no-op.
	Close() error

	// SetOption sets a string option on this statement
	SetOption(key, val string) error

	// SetSqlQuery sets the query string to be executed.
	SetSqlQuery(query string) error

	// ExecuteQuery executes the current query and returns a
	// RecordReader for the results along with the number of rows
	// affected if known, otherwise it will be -1.
	//
	// A reader returned by a previous call on this statement is closed
	// before the new job is submitted.
	//
	// The call blocks until the job completes, the configured timeout
	// elapses (StatusTimeout), or the job is cancelled through ctx or
	// Cancel (StatusCancelled). On a timeout the remote job is asked
	// to stop.
	ExecuteQuery(context.Context) (array.RecordReader, int64, error)

	// ExecuteUpdate executes a statement that does not generate a
	// result set. It returns the number of rows affected if known,
	// otherwise -1.
	ExecuteUpdate(context.Context) (int64, error)
}

// StatementCancel is a Statement whose in-flight execution can be
// cancelled from another goroutine.
type StatementCancel interface {
	// Cancel asks the running job, if any, to stop. It is a no-op when
	// nothing is running.
	Cancel() error
}

// GetSetOptions is a PostInitOptions that also supports getting and
// setting option values of different types.
//
// GetOption functions should return an error with StatusNotFound for
// unsupported options. SetOption functions should return an error with
// StatusNotImplemented for unsupported options.
type GetSetOptions interface {
	PostInitOptions

	SetOptionInt(key string, value int64) error
	SetOptionDouble(key string, value float64) error
	GetOption(key string) (string, error)
	GetOptionInt(key string) (int64, error)
	GetOptionDouble(key string) (float64, error)
}
