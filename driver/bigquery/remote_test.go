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
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildField(t *testing.T) {
	tests := []struct {
		name            string
		schema          *bigquery.FieldSchema
		expectedTypeStr string
		expectError     bool
	}{
		{
			name: "ArrayOfScalar",
			schema: &bigquery.FieldSchema{
				Name:        "test_array_scalar_field",
				Type:        bigquery.IntegerFieldType,
				Repeated:    true,
				Description: "Test array field with scalar type",
			},
			expectedTypeStr: "list<item: int64, nullable>",
		},
		{
			name: "ArrayOfRecordWithMultipleFields",
			schema: &bigquery.FieldSchema{
				Name:     "test_array_field",
				Type:     bigquery.RecordFieldType,
				Repeated: true,
				Schema: []*bigquery.FieldSchema{
					{Name: "field1", Type: bigquery.StringFieldType},
					{Name: "field2", Type: bigquery.IntegerFieldType},
				},
			},
			expectedTypeStr: "list<item: struct<field1: utf8, field2: int64>, nullable>",
		},
		{
			name: "NonRepeatedRecord",
			schema: &bigquery.FieldSchema{
				Name: "test_struct_field",
				Type: bigquery.RecordFieldType,
				Schema: []*bigquery.FieldSchema{
					{Name: "nested_string", Type: bigquery.StringFieldType},
					{Name: "nested_int", Type: bigquery.IntegerFieldType, Required: true},
				},
			},
			expectedTypeStr: "struct<nested_string: utf8, nested_int: int64>",
		},
		{
			name:            "Timestamp",
			schema:          &bigquery.FieldSchema{Name: "ts", Type: bigquery.TimestampFieldType},
			expectedTypeStr: "timestamp[us, tz=UTC]",
		},
		{
			name:            "DateTime",
			schema:          &bigquery.FieldSchema{Name: "dt", Type: bigquery.DateTimeFieldType},
			expectedTypeStr: "timestamp[us]",
		},
		{
			name:            "NumericDefault",
			schema:          &bigquery.FieldSchema{Name: "n", Type: bigquery.NumericFieldType},
			expectedTypeStr: "decimal(38, 9)",
		},
		{
			name:            "NumericParameterized",
			schema:          &bigquery.FieldSchema{Name: "n", Type: bigquery.NumericFieldType, Precision: 10, Scale: 2},
			expectedTypeStr: "decimal(10, 2)",
		},
		{
			name:            "BigNumeric",
			schema:          &bigquery.FieldSchema{Name: "n", Type: bigquery.BigNumericFieldType},
			expectedTypeStr: "decimal256(76, 38)",
		},
		{
			name: "RangeOfDate",
			schema: &bigquery.FieldSchema{
				Name:             "r",
				Type:             bigquery.RangeFieldType,
				RangeElementType: &bigquery.RangeElementType{Type: bigquery.DateFieldType},
			},
			expectedTypeStr: "struct<start: date32, end: date32>",
		},
		{
			name:        "RangeWithoutElement",
			schema:      &bigquery.FieldSchema{Name: "r", Type: bigquery.RangeFieldType},
			expectError: true,
		},
		{
			name:        "Unsupported",
			schema:      &bigquery.FieldSchema{Name: "x", Type: bigquery.FieldType("FOO")},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, err := buildField(tt.schema, 0)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error for test case %s, but got nil", tt.name)
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error for test case %s, got: %v", tt.name, err)
			}

			if field.Name != tt.schema.Name {
				t.Errorf("Expected field name '%s', got '%s'", tt.schema.Name, field.Name)
			}

			typeStr := field.Type.String()
			if typeStr != tt.expectedTypeStr {
				t.Errorf("Expected field type string to be '%s', got '%s'", tt.expectedTypeStr, typeStr)
			}
		})
	}
}

func TestBuildFieldNullability(t *testing.T) {
	f, err := buildField(&bigquery.FieldSchema{Name: "a", Type: bigquery.StringFieldType}, 0)
	require.NoError(t, err)
	assert.True(t, f.Nullable)

	f, err = buildField(&bigquery.FieldSchema{Name: "a", Type: bigquery.StringFieldType, Required: true}, 0)
	require.NoError(t, err)
	assert.False(t, f.Nullable)

	f, err = buildField(&bigquery.FieldSchema{Name: "a", Type: bigquery.StringFieldType, Repeated: true}, 0)
	require.NoError(t, err)
	assert.False(t, f.Nullable)
}

func TestBuildFieldMetadata(t *testing.T) {
	f, err := buildField(&bigquery.FieldSchema{
		Name:                   "a",
		Type:                   bigquery.IntegerFieldType,
		Description:            "the answer",
		DefaultValueExpression: "42",
	}, 0)
	require.NoError(t, err)

	desc, ok := f.Metadata.GetValue("Description")
	require.True(t, ok)
	assert.Equal(t, "the answer", desc)
	def, ok := f.Metadata.GetValue("DefaultValueExpression")
	require.True(t, ok)
	assert.Equal(t, "42", def)

	f, err = buildField(&bigquery.FieldSchema{Name: "b", Type: bigquery.IntegerFieldType}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Metadata.Len())
}

func TestBuildFieldDepthLimit(t *testing.T) {
	leaf := &bigquery.FieldSchema{Name: "leaf", Type: bigquery.StringFieldType}
	fs := leaf
	for i := 0; i <= maxNestingDepth; i++ {
		fs = &bigquery.FieldSchema{Name: "rec", Type: bigquery.RecordFieldType, Schema: []*bigquery.FieldSchema{fs}}
	}
	_, err := buildField(fs, 0)
	require.Error(t, err)

	_, err = buildField(fs.Schema[0], 0)
	require.NoError(t, err)
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		schema   *bigquery.FieldSchema
		expected string
	}{
		{&bigquery.FieldSchema{Type: bigquery.IntegerFieldType}, "INT64"},
		{&bigquery.FieldSchema{Type: bigquery.FloatFieldType}, "FLOAT64"},
		{&bigquery.FieldSchema{Type: bigquery.BooleanFieldType}, "BOOL"},
		{&bigquery.FieldSchema{Type: bigquery.StringFieldType}, "STRING"},
		{&bigquery.FieldSchema{Type: bigquery.StringFieldType, MaxLength: 10}, "STRING(10)"},
		{&bigquery.FieldSchema{Type: bigquery.NumericFieldType, Precision: 10, Scale: 2}, "NUMERIC(10, 2)"},
		{&bigquery.FieldSchema{Type: bigquery.IntegerFieldType, Repeated: true}, "ARRAY<INT64>"},
		{&bigquery.FieldSchema{
			Type: bigquery.RangeFieldType, RangeElementType: &bigquery.RangeElementType{Type: bigquery.DateFieldType},
		}, "RANGE<DATE>"},
		{&bigquery.FieldSchema{
			Type:     bigquery.RecordFieldType,
			Repeated: true,
			Schema: []*bigquery.FieldSchema{
				{Name: "a", Type: bigquery.StringFieldType},
				{Name: "b", Type: bigquery.IntegerFieldType, Repeated: true},
			},
		}, "ARRAY<STRUCT<a STRING, b ARRAY<INT64>>>"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, typeName(tt.schema))
		})
	}
}

func TestFieldsFromSchema(t *testing.T) {
	fields, err := fieldsFromSchema(bigquery.Schema{
		{Name: "id", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "name", Type: bigquery.StringFieldType, Description: "display name"},
		{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
	})
	require.NoError(t, err)
	require.Len(t, fields, 3)

	assert.Equal(t, int32(1), fields[0].Ordinal)
	assert.Equal(t, "INT64", fields[0].TypeName)
	assert.False(t, fields[0].Nullable)
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int64, fields[0].Type))

	assert.Equal(t, int32(2), fields[1].Ordinal)
	assert.Equal(t, "display name", fields[1].Remarks)
	assert.True(t, fields[1].Nullable)

	assert.Equal(t, "ARRAY<STRING>", fields[2].TypeName)
	assert.False(t, fields[2].Nullable)
}

func TestStatementTypes(t *testing.T) {
	assert.True(t, producesRows("SELECT"))
	assert.True(t, producesRows("SCRIPT"))
	assert.True(t, producesRows(""))
	assert.False(t, producesRows("INSERT"))
	assert.False(t, producesRows("CREATE_TABLE"))

	assert.True(t, isDML("MERGE"))
	assert.False(t, isDML("SELECT"))

	assert.True(t, isDDL("CREATE_TABLE"))
	assert.True(t, isDDL("DROP_VIEW"))
	assert.True(t, isDDL("ALTER_TABLE"))
	assert.False(t, isDDL("INSERT"))
	assert.False(t, isDDL("CREATE"))
}

func TestQuoteIdentifier(t *testing.T) {
	q, err := quoteIdentifier("example.com:my-project")
	require.NoError(t, err)
	assert.Equal(t, "`example.com:my-project`", q)

	for _, bad := range []string{"", "a`b", "a\\b", "a\nb"} {
		_, err := quoteIdentifier(bad)
		assert.Error(t, err, bad)
	}
}

func TestEntityKind(t *testing.T) {
	assert.Equal(t, "TABLE", entityKind("BASE TABLE"))
	assert.Equal(t, "VIEW", entityKind("VIEW"))
	assert.Equal(t, "MATERIALIZED VIEW", entityKind("MATERIALIZED VIEW"))
}
