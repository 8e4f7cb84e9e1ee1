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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

const nullString = "NULL"

// render writes v as indented JSON, or headers and rows as an aligned
// table, depending on the configured output format.
func render(w io.Writer, format string, v any, headers []string, rows [][]string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// recordRows accumulates up to limit rows from a record stream, both as
// display strings and as JSON-ready maps. It reports whether rows were
// dropped.
type recordRows struct {
	limit     int
	headers   []string
	rows      [][]string
	objects   []map[string]any
	truncated bool
}

func (r *recordRows) consume(rdr array.RecordReader) error {
	if r.headers == nil {
		for _, f := range rdr.Schema().Fields() {
			r.headers = append(r.headers, f.Name)
		}
	}
	for rdr.Next() {
		if r.add(rdr.Record()) {
			r.truncated = true
			break
		}
	}
	return rdr.Err()
}

// add appends the rows of rec and reports whether the limit was reached
// before the record was exhausted.
func (r *recordRows) add(rec arrow.Record) bool {
	cols := rec.Columns()
	for i := 0; i < int(rec.NumRows()); i++ {
		if r.limit > 0 && len(r.rows) >= r.limit {
			return true
		}
		row := make([]string, len(cols))
		obj := make(map[string]any, len(cols))
		for j, col := range cols {
			obj[r.headers[j]] = col.GetOneForMarshal(i)
			if col.IsNull(i) {
				row[j] = nullString
				continue
			}
			row[j] = col.ValueStr(i)
		}
		r.rows = append(r.rows, row)
		r.objects = append(r.objects, obj)
	}
	return false
}
