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

package catalog

import (
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/cache"
	"github.com/apache/arrow-go/v18/arrow"
)

var (
	schemaColumns = []cache.Column{
		{Name: "catalog_name", Type: arrow.BinaryTypes.String},
		{Name: "db_schema_name", Type: arrow.BinaryTypes.String},
		{Name: "location", Type: arrow.BinaryTypes.String},
	}

	tableColumns = []cache.Column{
		{Name: "catalog_name", Type: arrow.BinaryTypes.String},
		{Name: "db_schema_name", Type: arrow.BinaryTypes.String},
		{Name: "table_name", Type: arrow.BinaryTypes.String},
		{Name: "table_type", Type: arrow.BinaryTypes.String},
		{Name: "remarks", Type: arrow.BinaryTypes.String},
	}

	columnColumns = []cache.Column{
		{Name: "catalog_name", Type: arrow.BinaryTypes.String},
		{Name: "db_schema_name", Type: arrow.BinaryTypes.String},
		{Name: "table_name", Type: arrow.BinaryTypes.String},
		{Name: "column_name", Type: arrow.BinaryTypes.String},
		{Name: "ordinal_position", Type: arrow.PrimitiveTypes.Int32},
		{Name: "xdbc_type_name", Type: arrow.BinaryTypes.String},
		{Name: "xdbc_data_type", Type: arrow.PrimitiveTypes.Int16},
		{Name: "xdbc_nullable", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "remarks", Type: arrow.BinaryTypes.String},
	}
)

func schemaRows(in []tbcbq.SchemaDescriptor) [][]any {
	rows := make([][]any, len(in))
	for i, s := range in {
		rows[i] = []any{s.Catalog, s.Name, s.Location}
	}
	return rows
}

func schemasFromRows(rows [][]any) []tbcbq.SchemaDescriptor {
	out := make([]tbcbq.SchemaDescriptor, len(rows))
	for i, r := range rows {
		out[i] = tbcbq.SchemaDescriptor{Catalog: r[0].(string), Name: r[1].(string), Location: r[2].(string)}
	}
	return out
}

func tableRows(in []tbcbq.TableDescriptor) [][]any {
	rows := make([][]any, len(in))
	for i, t := range in {
		rows[i] = []any{t.Catalog, t.Schema, t.Name, t.Kind, t.Remarks}
	}
	return rows
}

func tablesFromRows(rows [][]any) []tbcbq.TableDescriptor {
	out := make([]tbcbq.TableDescriptor, len(rows))
	for i, r := range rows {
		out[i] = tbcbq.TableDescriptor{
			Catalog: r[0].(string),
			Schema:  r[1].(string),
			Name:    r[2].(string),
			Kind:    r[3].(string),
			Remarks: r[4].(string),
		}
	}
	return out
}

func columnRows(in []tbcbq.ColumnDescriptor) [][]any {
	rows := make([][]any, len(in))
	for i, c := range in {
		rows[i] = []any{c.Catalog, c.Schema, c.Table, c.Name, c.Ordinal, c.TypeName, c.XdbcDataType, c.Nullable, c.Remarks}
	}
	return rows
}

func columnsFromRows(rows [][]any) []tbcbq.ColumnDescriptor {
	out := make([]tbcbq.ColumnDescriptor, len(rows))
	for i, r := range rows {
		out[i] = tbcbq.ColumnDescriptor{
			Catalog:      r[0].(string),
			Schema:       r[1].(string),
			Table:        r[2].(string),
			Name:         r[3].(string),
			Ordinal:      r[4].(int32),
			TypeName:     r[5].(string),
			XdbcDataType: r[6].(int16),
			Nullable:     r[7].(bool),
			Remarks:      r[8].(string),
		}
	}
	return out
}
