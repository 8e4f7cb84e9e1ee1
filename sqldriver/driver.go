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

package sqldriver

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

func parseConnectStr(str string) (ret map[string]string, err error) {
	ret = make(map[string]string)
	for _, kv := range strings.Split(str, ";") {
		if strings.TrimSpace(kv) == "" {
			continue
		}
		parsed := strings.SplitN(kv, "=", 2)
		if len(parsed) != 2 {
			return nil, tbcbq.Error{
				Msg:  "invalid format for connection string",
				Code: tbcbq.StatusInvalidArgument,
			}
		}

		ret[strings.TrimSpace(parsed[0])] = strings.TrimSpace(parsed[1])
	}
	return
}

type connector struct {
	db  tbcbq.Database
	drv tbcbq.Driver
}

// Connect returns a connection to the database. Connect may
// return a cached connection (one previously closed), but doing
// so is unnecessary; the sql package maintains a pool of idle
// connections for efficient re-use.
//
// The returned connection is only used by one goroutine at a time.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	cnxn, err := c.db.Open(ctx)
	if err != nil {
		return nil, err
	}

	return &conn{Conn: cnxn}, nil
}

// Driver returns the underlying Driver of the connector,
// mainly to maintain compatibility with the Driver method on sql.DB
func (c *connector) Driver() driver.Driver { return Driver{c.drv} }

// Close closes the underlying database handle that the connector was using.
//
// By implementing the io.Closer interface, sql.DB will correctly call
// Close on the connector when sql.DB.Close is called.
func (c *connector) Close() error {
	return c.db.Close()
}

type Driver struct {
	Driver tbcbq.Driver
}

// Open returns a new connection to the database. The name
// should be semi-colon separated key-value pairs of the form:
// key=value;key2=value2;.....
//
// The returned connection is only used by one goroutine at a time.
func (d Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector expects the same format as driver.Open
func (d Driver) OpenConnector(name string) (driver.Connector, error) {
	opts, err := parseConnectStr(name)
	if err != nil {
		return nil, err
	}

	db, err := d.Driver.NewDatabase(opts)
	if err != nil {
		return nil, err
	}

	return &connector{db, d.Driver}, nil
}

// conn is a connection to a database. It is not used concurrently by
// multiple goroutines.
type conn struct {
	Conn tbcbq.Connection
}

// Close invalidates any open statements and marks this connection as
// no longer in use.
func (c *conn) Close() error {
	return c.Conn.Close()
}

func (c *conn) newStatement(query string) (tbcbq.Statement, error) {
	s, err := c.Conn.NewStatement()
	if err != nil {
		return nil, err
	}

	if err = s.SetSqlQuery(query); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := checkNoArgs(args); err != nil {
		return nil, err
	}
	s, err := c.newStatement(query)
	if err != nil {
		return nil, err
	}

	rows, err := (&stmt{stmt: s}).query(ctx, true)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return rows, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := checkNoArgs(args); err != nil {
		return nil, err
	}
	s, err := c.newStatement(query)
	if err != nil {
		return nil, err
	}

	res, err := (&stmt{stmt: s}).ExecContext(ctx, nil)
	return res, errors.Join(err, s.Close())
}

func checkNoArgs(args []driver.NamedValue) error {
	if len(args) == 0 {
		return nil
	}
	return tbcbq.Error{
		Msg:  "query parameters are not supported",
		Code: tbcbq.StatusNotImplemented,
	}
}

// Begin exists to fulfill the Conn interface, but will return an error.
//
// Deprecated
func (c *conn) Begin() (driver.Tx, error) {
	return nil, tbcbq.Error{Msg: "transactions are not supported", Code: tbcbq.StatusNotImplemented}
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return c.Begin()
}

// Prepare returns a prepared statement, bound to this connection.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext returns a statement bound to this connection. Nothing is
// sent to the server until the statement is executed.
func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	s, err := c.newStatement(query)
	if err != nil {
		return nil, err
	}
	return &stmt{stmt: s}, nil
}

type stmt struct {
	stmt tbcbq.Statement
}

func (s *stmt) Close() error {
	return s.stmt.Close()
}

// NumInput reports zero so that database/sql rejects arguments before
// they reach the driver.
func (s *stmt) NumInput() int {
	return 0
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := checkNoArgs(args); err != nil {
		return nil, err
	}

	affected, err := s.stmt.ExecuteUpdate(ctx)
	if err != nil {
		return nil, err
	}

	return driver.RowsAffected(affected), nil
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := checkNoArgs(args); err != nil {
		return nil, err
	}
	return s.query(ctx, false)
}

// query runs the statement. When ownsStmt is set the rows close the
// statement along with the reader.
func (s *stmt) query(ctx context.Context, ownsStmt bool) (driver.Rows, error) {
	rdr, affected, err := s.stmt.ExecuteQuery(ctx)
	if err != nil {
		return nil, err
	}

	r := &rows{rdr: rdr, rowsAffected: affected}
	if ownsStmt {
		r.stmt = s
	}
	return r, nil
}

type rows struct {
	rdr          array.RecordReader
	curRow       int64
	curRecord    arrow.Record
	rowsAffected int64
	stmt         *stmt
}

func (r *rows) Columns() (out []string) {
	out = make([]string, len(r.rdr.Schema().Fields()))
	for i, f := range r.rdr.Schema().Fields() {
		out[i] = f.Name
	}
	return
}

func (r *rows) Close() error {
	r.curRecord = nil
	if r.rdr != nil {
		r.rdr.Release()
		r.rdr = nil
	}

	if r.stmt == nil {
		return nil
	}
	err := r.stmt.Close()
	r.stmt = nil
	return err
}

func (r *rows) Next(dest []driver.Value) error {
	if r.curRecord != nil && r.curRow == r.curRecord.NumRows() {
		r.curRecord = nil
	}

	for r.curRecord == nil {
		if !r.rdr.Next() {
			if err := r.rdr.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		r.curRecord = r.rdr.Record()
		r.curRow = 0
		if r.curRecord.NumRows() == 0 {
			r.curRecord = nil
		}
	}

	for i, col := range r.curRecord.Columns() {
		v, err := columnValue(col, int(r.curRow))
		if err != nil {
			return err
		}
		dest[i] = v
	}

	r.curRow++
	return nil
}

// columnValue converts one cell to a driver.Value. Decimals are returned
// as their exact decimal text; nested and interval values are returned as
// their JSON text.
func columnValue(col arrow.Array, row int) (driver.Value, error) {
	if col.IsNull(row) {
		return nil, nil
	}
	switch col := col.(type) {
	case *array.Boolean:
		return col.Value(row), nil
	case *array.Int64:
		return col.Value(row), nil
	case *array.Float64:
		return col.Value(row), nil
	case *array.String:
		return col.Value(row), nil
	case *array.Binary:
		return col.Value(row), nil
	case *array.Date32:
		return col.Value(row).ToTime(), nil
	case *array.Time64:
		return col.Value(row).ToTime(col.DataType().(*arrow.Time64Type).Unit), nil
	case *array.Timestamp:
		return col.Value(row).ToTime(col.DataType().(*arrow.TimestampType).Unit), nil
	case *array.Decimal128, *array.Decimal256:
		return col.ValueStr(row), nil
	case *array.Struct, *array.List, *array.MonthDayNanoInterval:
		return col.ValueStr(row), nil
	}
	return nil, tbcbq.Error{
		Code: tbcbq.StatusNotImplemented,
		Msg:  "not yet implemented populating from columns of type " + col.DataType().String(),
	}
}

func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return r.rdr.Schema().Field(index).Type.String()
}

func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	return r.rdr.Schema().Field(index).Nullable, true
}

func (r *rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	typ := r.rdr.Schema().Field(index).Type
	switch dt := typ.(type) {
	case *arrow.Decimal128Type:
		return int64(dt.Precision), int64(dt.Scale), true
	case *arrow.Decimal256Type:
		return int64(dt.Precision), int64(dt.Scale), true
	}
	return 0, 0, false
}

func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	switch r.rdr.Schema().Field(index).Type.ID() {
	case arrow.BOOL:
		return reflect.TypeOf(false)
	case arrow.INT64:
		return reflect.TypeOf(int64(0))
	case arrow.FLOAT64:
		return reflect.TypeOf(float64(0))
	case arrow.BINARY:
		return reflect.TypeOf([]byte{})
	case arrow.STRING, arrow.DECIMAL128, arrow.DECIMAL256, arrow.STRUCT, arrow.LIST, arrow.INTERVAL_MONTH_DAY_NANO:
		return reflect.TypeOf("")
	case arrow.TIME64, arrow.DATE32, arrow.TIMESTAMP:
		return reflect.TypeOf(time.Time{})
	}
	return nil
}
