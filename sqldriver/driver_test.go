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

package sqldriver_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/sqldriver"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/suite"
)

// The fakes embed the tbcbq interfaces; calling a method they do not
// override panics, which flags unexpected use.

type fakeDriver struct {
	db *fakeDatabase
}

func (d *fakeDriver) NewDatabase(opts map[string]string) (tbcbq.Database, error) {
	d.db.opts = opts
	return d.db, nil
}

type fakeDatabase struct {
	tbcbq.Database

	mem    memory.Allocator
	opts   map[string]string
	mu     sync.Mutex
	stmts  []*fakeStatement
	closed bool
}

func (db *fakeDatabase) Open(context.Context) (tbcbq.Connection, error) {
	return &fakeConnection{db: db}, nil
}

func (db *fakeDatabase) Close() error {
	db.closed = true
	return nil
}

type fakeConnection struct {
	tbcbq.Connection

	db *fakeDatabase
}

func (c *fakeConnection) NewStatement() (tbcbq.Statement, error) {
	s := &fakeStatement{mem: c.db.mem}
	c.db.mu.Lock()
	c.db.stmts = append(c.db.stmts, s)
	c.db.mu.Unlock()
	return s, nil
}

func (c *fakeConnection) Close() error { return nil }

type fakeStatement struct {
	tbcbq.Statement

	mem        memory.Allocator
	query      string
	executions int
	closes     int
}

func (s *fakeStatement) SetSqlQuery(query string) error {
	s.query = query
	return nil
}

func (s *fakeStatement) Close() error {
	s.closes++
	return nil
}

func (s *fakeStatement) ExecuteUpdate(context.Context) (int64, error) {
	s.executions++
	if strings.HasPrefix(s.query, "CREATE") {
		return -1, nil
	}
	return 3, nil
}

func (s *fakeStatement) ExecuteQuery(context.Context) (array.RecordReader, int64, error) {
	s.executions++
	if s.query == "SELECT broken" {
		return nil, -1, tbcbq.Error{Msg: "syntax error", Code: tbcbq.StatusInvalidArgument}
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(s.mem, schema)
	defer bldr.Release()

	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	bldr.Field(1).(*array.StringBuilder).AppendValues([]string{"ada", ""}, []bool{true, false})
	first := bldr.NewRecord()
	defer first.Release()
	empty := bldr.NewRecord()
	defer empty.Release()
	bldr.Field(0).(*array.Int64Builder).Append(3)
	bldr.Field(1).(*array.StringBuilder).Append("grace")
	second := bldr.NewRecord()
	defer second.Release()

	rdr, err := array.NewRecordReader(schema, []arrow.Record{first, empty, second})
	if err != nil {
		return nil, -1, err
	}
	return rdr, 3, nil
}

type SQLDriverSuite struct {
	suite.Suite

	mem *memory.CheckedAllocator
	fdb *fakeDatabase
	db  *sql.DB
}

func (s *SQLDriverSuite) SetupTest() {
	s.mem = memory.NewCheckedAllocator(memory.DefaultAllocator)
	s.fdb = &fakeDatabase{mem: s.mem}

	drv := sqldriver.Driver{Driver: &fakeDriver{db: s.fdb}}
	connector, err := drv.OpenConnector("bq.project_id=test-project;bq.dataset_id=sales")
	s.Require().NoError(err)
	s.db = sql.OpenDB(connector)
}

func (s *SQLDriverSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
	s.True(s.fdb.closed)
	s.mem.AssertSize(s.T(), 0)
}

func (s *SQLDriverSuite) TestOptionsFromDSN() {
	s.Require().NoError(s.db.Ping())
	s.Equal(map[string]string{
		"bq.project_id": "test-project",
		"bq.dataset_id": "sales",
	}, s.fdb.opts)
}

func (s *SQLDriverSuite) TestQuery() {
	rows, err := s.db.QueryContext(context.Background(), "SELECT id, name FROM orders")
	s.Require().NoError(err)

	cols, err := rows.Columns()
	s.Require().NoError(err)
	s.Equal([]string{"id", "name"}, cols)

	types, err := rows.ColumnTypes()
	s.Require().NoError(err)
	nullable, ok := types[1].Nullable()
	s.True(ok)
	s.True(nullable)
	s.Equal("int64", types[0].DatabaseTypeName())

	type row struct {
		id   int64
		name sql.NullString
	}
	var got []row
	for rows.Next() {
		var r row
		s.Require().NoError(rows.Scan(&r.id, &r.name))
		got = append(got, r)
	}
	s.Require().NoError(rows.Err())
	s.Require().NoError(rows.Close())

	s.Equal([]row{
		{1, sql.NullString{String: "ada", Valid: true}},
		{2, sql.NullString{}},
		{3, sql.NullString{String: "grace", Valid: true}},
	}, got)

	s.Require().Len(s.fdb.stmts, 1)
	s.Equal(1, s.fdb.stmts[0].closes)
}

func (s *SQLDriverSuite) TestQueryError() {
	_, err := s.db.QueryContext(context.Background(), "SELECT broken")
	var tbErr tbcbq.Error
	s.Require().ErrorAs(err, &tbErr)
	s.Equal(tbcbq.StatusInvalidArgument, tbErr.Code)

	s.Require().Len(s.fdb.stmts, 1)
	s.Equal(1, s.fdb.stmts[0].closes)
}

func (s *SQLDriverSuite) TestExec() {
	res, err := s.db.ExecContext(context.Background(), "UPDATE orders SET status = 'x' WHERE TRUE")
	s.Require().NoError(err)
	n, err := res.RowsAffected()
	s.Require().NoError(err)
	s.EqualValues(3, n)

	s.Require().Len(s.fdb.stmts, 1)
	s.Equal(1, s.fdb.stmts[0].closes)
}

func (s *SQLDriverSuite) TestArgumentsRejected() {
	_, err := s.db.QueryContext(context.Background(), "SELECT ?", 1)
	var tbErr tbcbq.Error
	s.Require().ErrorAs(err, &tbErr)
	s.Equal(tbcbq.StatusNotImplemented, tbErr.Code)

	stmt, err := s.db.Prepare("SELECT id FROM orders WHERE id = ?")
	s.Require().NoError(err)
	defer stmt.Close()
	_, err = stmt.Exec(1)
	s.ErrorContains(err, "expected 0 arguments, got 1")
}

func (s *SQLDriverSuite) TestTransactionsUnsupported() {
	_, err := s.db.BeginTx(context.Background(), nil)
	var tbErr tbcbq.Error
	s.Require().ErrorAs(err, &tbErr)
	s.Equal(tbcbq.StatusNotImplemented, tbErr.Code)
}

func (s *SQLDriverSuite) TestPreparedStatementReuse() {
	stmt, err := s.db.Prepare("SELECT id, name FROM orders")
	s.Require().NoError(err)

	for i := 0; i < 2; i++ {
		rows, err := stmt.Query()
		s.Require().NoError(err)
		count := 0
		for rows.Next() {
			count++
		}
		s.Require().NoError(rows.Err())
		s.Require().NoError(rows.Close())
		s.Equal(3, count)
	}

	s.Require().Len(s.fdb.stmts, 1)
	fake := s.fdb.stmts[0]
	s.Equal(2, fake.executions)
	s.Equal(0, fake.closes)

	s.Require().NoError(stmt.Close())
	s.Equal(1, fake.closes)
}

func TestSQLDriver(t *testing.T) {
	suite.Run(t, new(SQLDriverSuite))
}
