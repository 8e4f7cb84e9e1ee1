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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/bigquery"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoBackend = errors.New("no backend")

// captureDriver records the options it is given and refuses to open.
type captureDriver struct {
	opts map[string]string
}

func (d *captureDriver) NewDatabase(opts map[string]string) (tbcbq.Database, error) {
	d.opts = opts
	return nil, errNoBackend
}

func newTestApp(t *testing.T) (*app, *captureDriver, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	drv := &captureDriver{}
	a.newDriver = func() tbcbq.Driver { return drv }
	return a, drv, &stdout, &stderr
}

func run(a *app, args ...string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.ExecuteContext(context.Background())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tbcbq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRequiresProject(t *testing.T) {
	a, drv, _, _ := newTestApp(t)
	err := run(a, "tables")
	require.ErrorContains(t, err, "a project is required")
	assert.Nil(t, drv.opts)
}

func TestRejectsOutputFormat(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	err := run(a, "--project", "p", "-o", "xml", "schemas")
	require.ErrorContains(t, err, `unsupported output format "xml"`)
}

func TestFlagsReachDriver(t *testing.T) {
	a, drv, _, _ := newTestApp(t)
	err := run(a,
		"--project", "my-project",
		"--dataset", "sales",
		"--location", "EU",
		"--additional-projects", "bigquery-public-data,other",
		"--cache-ttl", "60",
		"--max-concurrency", "4",
		"--rps", "2.5",
		"--lazy",
		"tables", "--schema", "s%")
	require.ErrorIs(t, err, errNoBackend)

	assert.Equal(t, map[string]string{
		bigquery.OptionStringProjectID:                 "my-project",
		bigquery.OptionStringDatasetID:                 "sales",
		bigquery.OptionStringLocation:                  "EU",
		bigquery.OptionStringAdditionalProjects:        "bigquery-public-data,other",
		bigquery.OptionStringAuthType:                  bigquery.OptionValueAuthTypeDefault,
		bigquery.OptionBoolMetadataCacheEnabled:        "true",
		bigquery.OptionBoolMetadataLazyLoad:            "true",
		bigquery.OptionIntMetadataCacheTTLSeconds:      "60",
		bigquery.OptionIntMetadataMaxConcurrency:       "4",
		bigquery.OptionDoubleMetadataRequestsPerSecond: "2.5",
	}, drv.opts)
}

func TestNoCacheFlag(t *testing.T) {
	a, drv, _, _ := newTestApp(t)
	err := run(a, "--project", "p", "--no-cache", "schemas")
	require.ErrorIs(t, err, errNoBackend)
	assert.Equal(t, "false", drv.opts[bigquery.OptionBoolMetadataCacheEnabled])
}

func TestConfigPrecedence(t *testing.T) {
	path := writeConfig(t, `
project: from-file
dataset: file_ds
metadata:
  cache_ttl_seconds: 120
  cache_enabled: false
auth:
  type: json_credential_file
  credentials: /etc/sa.json
query:
  timeout_seconds: 30
`)

	a, drv, _, _ := newTestApp(t)
	t.Setenv("TBCBQ_DATASET", "env_ds")
	t.Setenv("TBCBQ_METADATA_CACHE_TTL_SECONDS", "90")

	err := run(a, "--config", path, "--project", "from-flag", "schemas")
	require.ErrorIs(t, err, errNoBackend)

	assert.Equal(t, "from-flag", drv.opts[bigquery.OptionStringProjectID])
	assert.Equal(t, "env_ds", drv.opts[bigquery.OptionStringDatasetID])
	assert.Equal(t, "90", drv.opts[bigquery.OptionIntMetadataCacheTTLSeconds])
	assert.Equal(t, "false", drv.opts[bigquery.OptionBoolMetadataCacheEnabled])
	assert.Equal(t, bigquery.OptionValueAuthTypeJSONCredentialFile, drv.opts[bigquery.OptionStringAuthType])
	assert.Equal(t, "/etc/sa.json", drv.opts[bigquery.OptionStringAuthCredentials])
	assert.Equal(t, "30", drv.opts[bigquery.OptionDoubleQueryDefaultTimeoutSeconds])
}

func TestMissingExplicitConfigFile(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	err := run(a, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "--project", "p", "schemas")
	require.ErrorContains(t, err, "reading config")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TBCBQ_PROJECT", "env-project")
	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "env-project", cfg.Project)
	assert.True(t, cfg.Metadata.CacheEnabled)
	assert.Equal(t, 300, cfg.Metadata.CacheTTLSeconds)
	assert.Equal(t, 16, cfg.Metadata.MaxConcurrency)
	assert.Equal(t, 100, cfg.Query.MaxRows)
	assert.Equal(t, "table", cfg.Output)
}

func TestInvalidLogLevel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TBCBQ_PROJECT", "p")
	t.Setenv("TBCBQ_LOG_LEVEL", "chatty")
	_, err := loadConfig(viper.New(), "")
	require.ErrorContains(t, err, `invalid log level "chatty"`)
}

func TestLoggerFanout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tbcbq.log")
	var stderr bytes.Buffer

	logger, closeLog, err := newLogger(logConfig{Level: "info", File: path}, &stderr)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("listed tables", "tables", 3)
	require.NoError(t, closeLog())

	assert.Contains(t, stderr.String(), "listed tables")
	assert.NotContains(t, stderr.String(), "hidden")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &rec))
	assert.Equal(t, "listed tables", rec["msg"])
	assert.EqualValues(t, 3, rec["tables"])
}

func TestStatementOptions(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	a.cfg = &config{Dataset: "ds", Query: queryConfig{TimeoutSeconds: 10, Priority: "interactive"}}

	cmd := a.queryCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--priority", "batch", "--label", "team=data", "--label", "env=dev", "--destination", "ds.out"}))
	f := &queryFlags{priority: "batch", labels: []string{"team=data", "env=dev"}, destination: "ds.out"}

	assert.Equal(t, map[string]string{
		bigquery.OptionDoubleQueryTimeoutSeconds:   "10",
		bigquery.OptionStringQueryPriority:         bigquery.OptionValueQueryPriorityBatch,
		bigquery.OptionStringQueryLabels:           "team=data,env=dev",
		bigquery.OptionStringQueryDestinationTable: "ds.out",
		bigquery.OptionStringQueryDefaultDatasetID: "ds",
	}, a.statementOptions(cmd, f))
}

func TestReadQuery(t *testing.T) {
	q, err := readQuery([]string{"SELECT 1"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", q)

	q, err = readQuery([]string{"-"}, strings.NewReader("  SELECT 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", q)

	_, err = readQuery([]string{"-"}, strings.NewReader("\n"))
	require.ErrorContains(t, err, "empty query")
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "table", nil, []string{"CATALOG", "SCHEMA"},
		[][]string{{"p", "sales"}, {"p", "hr"}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "CATALOG  SCHEMA", lines[0])
	assert.Equal(t, "p        sales", lines[1])
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	schemas := []tbcbq.SchemaDescriptor{{Catalog: "p", Name: "sales", Location: "US"}}
	require.NoError(t, render(&buf, "json", schemas, nil, nil))

	var got []tbcbq.SchemaDescriptor
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, schemas, got)
}

func TestColumnRows(t *testing.T) {
	rows := columnRows([]tbcbq.ColumnDescriptor{{
		Catalog: "p", Schema: "s", Table: "t", Name: "id",
		Ordinal: 1, TypeName: "INT64", Nullable: false,
	}})
	assert.Equal(t, [][]string{{"p", "s", "t", "id", "1", "INT64", "false"}}, rows)
}

func TestRecordRows(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	bldr.Field(1).(*array.StringBuilder).AppendValues([]string{"a", "", "c"}, []bool{true, false, true})
	rec := bldr.NewRecord()
	defer rec.Release()

	rdr, err := array.NewRecordReader(schema, []arrow.Record{rec, rec})
	require.NoError(t, err)
	defer rdr.Release()

	out := recordRows{limit: 4}
	require.NoError(t, out.consume(rdr))

	assert.Equal(t, []string{"id", "name"}, out.headers)
	assert.True(t, out.truncated)
	assert.Equal(t, [][]string{{"1", "a"}, {"2", nullString}, {"3", "c"}, {"1", "a"}}, out.rows)
	assert.Nil(t, out.objects[1]["name"])
	assert.Equal(t, "c", out.objects[2]["name"])
}
