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
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const (
	xdbcColumnNoNulls  int16 = 0
	xdbcColumnNullable int16 = 1
)

func appendOptionalString(bldr *array.StringBuilder, v string) {
	if v == "" {
		bldr.AppendNull()
		return
	}
	bldr.Append(v)
}

func singleRecordReader(bldr *array.RecordBuilder, schema *arrow.Schema) (array.RecordReader, error) {
	rec := bldr.NewRecord()
	defer rec.Release()
	return array.NewRecordReader(schema, []arrow.Record{rec})
}

// SchemasReader renders schemas as a single [tbcbq.SchemasSchema] record.
func SchemasReader(alloc memory.Allocator, schemas []tbcbq.SchemaDescriptor) (array.RecordReader, error) {
	bldr := array.NewRecordBuilder(alloc, tbcbq.SchemasSchema)
	defer bldr.Release()
	bldr.Reserve(len(schemas))

	catalogs := bldr.Field(0).(*array.StringBuilder)
	names := bldr.Field(1).(*array.StringBuilder)
	locations := bldr.Field(2).(*array.StringBuilder)
	for _, s := range schemas {
		catalogs.Append(s.Catalog)
		names.Append(s.Name)
		appendOptionalString(locations, s.Location)
	}
	return singleRecordReader(bldr, tbcbq.SchemasSchema)
}

// TablesReader renders tables as a single [tbcbq.TablesSchema] record.
func TablesReader(alloc memory.Allocator, tables []tbcbq.TableDescriptor) (array.RecordReader, error) {
	bldr := array.NewRecordBuilder(alloc, tbcbq.TablesSchema)
	defer bldr.Release()
	bldr.Reserve(len(tables))

	catalogs := bldr.Field(0).(*array.StringBuilder)
	schemas := bldr.Field(1).(*array.StringBuilder)
	names := bldr.Field(2).(*array.StringBuilder)
	kinds := bldr.Field(3).(*array.StringBuilder)
	remarks := bldr.Field(4).(*array.StringBuilder)
	for _, t := range tables {
		catalogs.Append(t.Catalog)
		schemas.Append(t.Schema)
		names.Append(t.Name)
		kinds.Append(t.Kind)
		appendOptionalString(remarks, t.Remarks)
	}
	return singleRecordReader(bldr, tbcbq.TablesSchema)
}

// ColumnsReader renders columns as a single [tbcbq.ColumnsSchema] record.
func ColumnsReader(alloc memory.Allocator, columns []tbcbq.ColumnDescriptor) (array.RecordReader, error) {
	bldr := array.NewRecordBuilder(alloc, tbcbq.ColumnsSchema)
	defer bldr.Release()
	bldr.Reserve(len(columns))

	catalogs := bldr.Field(0).(*array.StringBuilder)
	schemas := bldr.Field(1).(*array.StringBuilder)
	tables := bldr.Field(2).(*array.StringBuilder)
	names := bldr.Field(3).(*array.StringBuilder)
	ordinals := bldr.Field(4).(*array.Int32Builder)
	dataTypes := bldr.Field(5).(*array.Int16Builder)
	typeNames := bldr.Field(6).(*array.StringBuilder)
	nullable := bldr.Field(7).(*array.Int16Builder)
	isNullable := bldr.Field(8).(*array.StringBuilder)
	remarks := bldr.Field(9).(*array.StringBuilder)
	for _, c := range columns {
		catalogs.Append(c.Catalog)
		schemas.Append(c.Schema)
		tables.Append(c.Table)
		names.Append(c.Name)
		ordinals.Append(c.Ordinal)
		dataTypes.Append(c.XdbcDataType)
		appendOptionalString(typeNames, c.TypeName)
		if c.Nullable {
			nullable.Append(xdbcColumnNullable)
			isNullable.Append("YES")
		} else {
			nullable.Append(xdbcColumnNoNulls)
			isNullable.Append("NO")
		}
		appendOptionalString(remarks, c.Remarks)
	}
	return singleRecordReader(bldr, tbcbq.ColumnsSchema)
}
