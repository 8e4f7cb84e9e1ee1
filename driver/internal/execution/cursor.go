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
	"sync/atomic"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Cursor is the result of a successful execution. It is an
// [array.RecordReader]; dropping the last reference, or closing it,
// releases the underlying stream.
type Cursor struct {
	rdr      array.RecordReader
	refCount atomic.Int64
	closed   atomic.Bool
	onClose  func()

	JobID         string
	TotalRows     int64
	AffectedRows  int64
	StatementType string
}

var _ array.RecordReader = (*Cursor)(nil)

func newCursor(res remote.Result, onClose func()) *Cursor {
	c := &Cursor{
		rdr:           res.Reader,
		onClose:       onClose,
		JobID:         res.JobID,
		TotalRows:     res.TotalRows,
		AffectedRows:  res.AffectedRows,
		StatementType: res.StatementType,
	}
	c.refCount.Store(1)
	return c
}

// Close releases the stream regardless of outstanding references. It
// is safe to call more than once.
func (c *Cursor) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.rdr != nil {
		c.rdr.Release()
	}
	if c.onClose != nil {
		c.onClose()
	}
}

// Closed reports whether the cursor has been closed.
func (c *Cursor) Closed() bool { return c.closed.Load() }

func (c *Cursor) Retain() { c.refCount.Add(1) }

func (c *Cursor) Release() {
	if c.refCount.Add(-1) == 0 {
		c.Close()
	}
}

func (c *Cursor) Schema() *arrow.Schema {
	if c.rdr == nil {
		return arrow.NewSchema(nil, nil)
	}
	return c.rdr.Schema()
}

func (c *Cursor) Next() bool {
	if c.closed.Load() || c.rdr == nil {
		return false
	}
	return c.rdr.Next()
}

func (c *Cursor) Record() arrow.Record {
	if c.closed.Load() || c.rdr == nil {
		return nil
	}
	return c.rdr.Record()
}

func (c *Cursor) Err() error {
	if c.rdr == nil {
		return nil
	}
	return c.rdr.Err()
}
