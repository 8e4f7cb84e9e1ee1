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

package tbcbq

import "github.com/apache/arrow-go/v18/arrow"

var (
	TableTypesSchema = arrow.NewSchema([]arrow.Field{{Name: "table_type", Type: arrow.BinaryTypes.String}}, nil)

	SchemasSchema = arrow.NewSchema([]arrow.Field{
		{Name: "catalog_name", Type: arrow.BinaryTypes.String},
		{Name: "db_schema_name", Type: arrow.BinaryTypes.String},
		{Name: "location", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	TablesSchema = arrow.NewSchema([]arrow.Field{
		{Name: "catalog_name", Type: arrow.BinaryTypes.String},
		{Name: "db_schema_name", Type: arrow.BinaryTypes.String},
		{Name: "table_name", Type: arrow.BinaryTypes.String},
		{Name: "table_type", Type: arrow.BinaryTypes.String},
		{Name: "remarks", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	ColumnsSchema = arrow.NewSchema([]arrow.Field{
		{Name: "catalog_name", Type: arrow.BinaryTypes.String},
		{Name: "db_schema_name", Type: arrow.BinaryTypes.String},
		{Name: "table_name", Type: arrow.BinaryTypes.String},
		{Name: "column_name", Type: arrow.BinaryTypes.String},
		{Name: "ordinal_position", Type: arrow.PrimitiveTypes.Int32},
		{Name: "xdbc_data_type", Type: arrow.PrimitiveTypes.Int16, Nullable: true},
		{Name: "xdbc_type_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "xdbc_nullable", Type: arrow.PrimitiveTypes.Int16, Nullable: true},
		{Name: "xdbc_is_nullable", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "remarks", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
)
