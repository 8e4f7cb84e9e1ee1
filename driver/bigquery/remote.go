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
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"golang.org/x/oauth2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

const (
	jobIDPrefix = "tbcbq_"
	// BigQuery rejects schemas nested deeper than this.
	maxNestingDepth = 15
)

type impersonateConfig struct {
	TargetPrincipal string
	Delegates       []string
	Scopes          []string
	Lifetime        time.Duration
}

type clientConfig struct {
	ProjectID        string
	Location         string
	AuthType         string
	Credentials      string
	AccessToken      string
	Scopes           []string
	Impersonate      impersonateConfig
	Alloc            memory.Allocator
	ResultBufferSize int
	Logger           *slog.Logger
	ErrorHelper      driverbase.ErrorHelper
}

type clientFactory func(ctx context.Context, cfg clientConfig) (remote.Client, error)

func clientOptions(ctx context.Context, cfg clientConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	switch cfg.AuthType {
	case "", OptionValueAuthTypeDefault:
	case OptionValueAuthTypeJSONCredentialFile:
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	case OptionValueAuthTypeJSONCredentialString:
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Credentials)))
	case OptionValueAuthTypeAccessToken:
		if cfg.AccessToken == "" {
			return nil, cfg.ErrorHelper.Errorf(tbcbq.StatusInvalidArgument, "%s requires %s", OptionValueAuthTypeAccessToken, OptionStringAuthAccessToken)
		}
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})))
	default:
		return nil, cfg.ErrorHelper.Errorf(tbcbq.StatusInvalidArgument, "unknown auth type '%s'", cfg.AuthType)
	}
	if len(cfg.Scopes) > 0 {
		opts = append(opts, option.WithScopes(cfg.Scopes...))
	}

	if cfg.Impersonate.TargetPrincipal == "" {
		return opts, nil
	}
	scopes := cfg.Impersonate.Scopes
	if len(scopes) == 0 {
		scopes = []string{bigquery.Scope}
	}
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: cfg.Impersonate.TargetPrincipal,
		Delegates:       cfg.Impersonate.Delegates,
		Scopes:          scopes,
		Lifetime:        cfg.Impersonate.Lifetime,
	}, opts...)
	if err != nil {
		return nil, errorFromRemote(cfg.ErrorHelper, err, "impersonate %s", cfg.Impersonate.TargetPrincipal)
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

// bqClient is the remote surface backed by the BigQuery REST API, with
// query results read through the Storage Read API.
type bqClient struct {
	client     *bigquery.Client
	alloc      memory.Allocator
	bufferSize int
	logger     *slog.Logger
	errs       driverbase.ErrorHelper
}

func newBigQueryClient(ctx context.Context, cfg clientConfig) (remote.Client, error) {
	opts, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errorFromRemote(cfg.ErrorHelper, err, "create client for project %s", cfg.ProjectID)
	}
	client.Location = cfg.Location

	readOpts := append(slices.Clone(opts),
		option.WithGRPCDialOption(grpc.WithChainUnaryInterceptor(makeUnaryLoggingInterceptor(cfg.Logger))),
		option.WithGRPCDialOption(grpc.WithChainStreamInterceptor(makeStreamLoggingInterceptor(cfg.Logger))),
	)
	if err := client.EnableStorageReadClient(ctx, readOpts...); err != nil {
		err = errors.Join(errorFromRemote(cfg.ErrorHelper, err, "enable storage read client"), client.Close())
		return nil, err
	}

	return &bqClient{
		client:     client,
		alloc:      cfg.Alloc,
		bufferSize: cmp.Or(cfg.ResultBufferSize, defaultResultBufferSize),
		logger:     cfg.Logger,
		errs:       cfg.ErrorHelper,
	}, nil
}

func (c *bqClient) Project() string { return c.client.Project() }

func (c *bqClient) Close() error {
	return c.client.Close()
}

type bqJob struct {
	job         *bigquery.Job
	submittedAt time.Time
	dryRun      bool
}

func (j *bqJob) ID() string             { return j.job.ID() }
func (j *bqJob) Location() string       { return j.job.Location() }
func (j *bqJob) SubmittedAt() time.Time { return j.submittedAt }

func (c *bqClient) SubmitQuery(ctx context.Context, sql string, opts remote.QueryOptions) (remote.Job, error) {
	q := c.client.Query(sql)
	q.JobID = jobIDPrefix + uuid.NewString()
	q.Location = cmp.Or(opts.Location, c.client.Location)
	q.DefaultProjectID = opts.DefaultProjectID
	q.DefaultDatasetID = opts.DefaultDatasetID
	q.UseLegacySQL = opts.UseLegacySQL
	q.DisableQueryCache = opts.DisableCache
	q.DryRun = opts.DryRun
	q.MaxBytesBilled = opts.MaxBytesBilled
	q.Priority = bigquery.QueryPriority(opts.Priority)
	q.JobTimeout = opts.JobTimeout
	q.Labels = opts.Labels
	if dst := opts.Destination; dst != nil {
		q.Dst = c.client.DatasetInProject(dst.Project, dst.Dataset).Table(dst.Table)
	}

	job, err := q.Run(ctx)
	if err != nil {
		return nil, errorFromRemote(c.errs, err, "submit query")
	}
	return &bqJob{job: job, submittedAt: time.Now(), dryRun: opts.DryRun}, nil
}

// producesRows reports whether a statement type yields a result set.
// Scripts and unknown types are read like queries.
func producesRows(statementType string) bool {
	switch statementType {
	case "SELECT", "SCRIPT", "":
		return true
	}
	return false
}

func isDML(statementType string) bool {
	switch statementType {
	case "INSERT", "UPDATE", "DELETE", "MERGE":
		return true
	}
	return false
}

func isDDL(statementType string) bool {
	for _, prefix := range []string{"CREATE_", "DROP_", "ALTER_"} {
		if strings.HasPrefix(statementType, prefix) {
			return true
		}
	}
	return false
}

func (c *bqClient) AwaitCompletion(ctx context.Context, j remote.Job) (remote.Result, error) {
	job, ok := j.(*bqJob)
	if !ok {
		return remote.Result{}, c.errs.Errorf(tbcbq.StatusInternal, "unexpected job type %T", j)
	}

	var status *bigquery.JobStatus
	if job.dryRun {
		status = job.job.LastStatus()
	} else {
		var err error
		status, err = job.job.Wait(ctx)
		if err != nil {
			return remote.Result{}, errorFromRemote(c.errs, err, "wait for job %s", job.ID())
		}
	}
	if err := status.Err(); err != nil {
		return remote.Result{}, errorFromRemote(c.errs, err, "job %s", job.ID())
	}

	res := remote.Result{JobID: job.ID(), TotalRows: -1, AffectedRows: -1}
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			res.StatementType = stats.StatementType
			if isDML(stats.StatementType) {
				res.AffectedRows = stats.NumDMLAffectedRows
			}
		}
	}

	if job.dryRun || !producesRows(res.StatementType) {
		rdr, err := ipcReaderFromArrowIterator(emptyArrowIterator{}, c.alloc)
		if err != nil {
			return remote.Result{}, c.errs.Errorf(tbcbq.StatusInternal, "empty result: %s", err)
		}
		res.TotalRows = 0
		res.Reader = rdr
		return res, nil
	}

	it, err := job.job.Read(ctx)
	if err != nil {
		return remote.Result{}, errorFromRemote(c.errs, err, "read job %s", job.ID())
	}
	arrowIt, err := it.ArrowIterator()
	if err != nil {
		return remote.Result{}, errorFromRemote(c.errs, err, "read job %s", job.ID())
	}
	rdr, err := ipcReaderFromArrowIterator(arrowIt, c.alloc)
	if err != nil {
		return remote.Result{}, errorFromRemote(c.errs, err, "decode results of job %s", job.ID())
	}
	res.TotalRows = int64(it.TotalRows)
	jobID := job.ID()
	res.Reader = newRecordReader(ctx, rdr, c.bufferSize, func(err error) error {
		return driverbase.WithDetail(errorFromRemote(c.errs, err, "read job %s", jobID), tbcbq.DetailJobID, jobID)
	})
	return res, nil
}

func (c *bqClient) Cancel(ctx context.Context, j remote.Job) error {
	job, ok := j.(*bqJob)
	if !ok {
		return c.errs.Errorf(tbcbq.StatusInternal, "unexpected job type %T", j)
	}
	if job.dryRun {
		return nil
	}
	return errorFromRemote(c.errs, job.job.Cancel(ctx), "cancel job %s", job.ID())
}

func (c *bqClient) ListContainers(ctx context.Context, catalog string) ([]remote.Container, error) {
	out := []remote.Container{}
	it := c.client.DatasetsInProject(ctx, catalog)
	for {
		ds, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errorFromRemote(c.errs, err, "list datasets in %s", catalog)
		}
		// the listing does not carry the dataset location
		out = append(out, remote.Container{Catalog: ds.ProjectID, Name: ds.DatasetID})
	}
	return out, nil
}

// quoteIdentifier renders a project or dataset name as a quoted
// identifier path component.
func quoteIdentifier(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "`\\\n") {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}

func entityKind(tableType string) string {
	switch tableType {
	case "BASE TABLE":
		return "TABLE"
	}
	return tableType
}

func (c *bqClient) ListEntities(ctx context.Context, container remote.Container) ([]remote.Entity, error) {
	project, err := quoteIdentifier(container.Catalog)
	if err != nil {
		return nil, c.errs.Errorf(tbcbq.StatusInvalidArgument, "list tables: %s", err)
	}
	dataset, err := quoteIdentifier(container.Name)
	if err != nil {
		return nil, c.errs.Errorf(tbcbq.StatusInvalidArgument, "list tables: %s", err)
	}
	prefix := project + "." + dataset + ".INFORMATION_SCHEMA"

	q := c.client.Query(fmt.Sprintf(`SELECT t.table_name, t.table_type, o.option_value
FROM %[1]s.TABLES AS t
LEFT JOIN %[1]s.TABLE_OPTIONS AS o
  ON o.table_name = t.table_name AND o.option_name = 'description'
ORDER BY t.table_name`, prefix))
	q.JobID = jobIDPrefix + uuid.NewString()
	q.Location = container.Location

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errorFromRemote(c.errs, err, "list tables in %s.%s", container.Catalog, container.Name)
	}

	out := []remote.Entity{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errorFromRemote(c.errs, err, "list tables in %s.%s", container.Catalog, container.Name)
		}
		e := remote.Entity{Catalog: container.Catalog, Schema: container.Name}
		e.Name, _ = row[0].(string)
		tableType, _ := row[1].(string)
		e.Kind = entityKind(tableType)
		if remarks, ok := row[2].(string); ok {
			// option values are string literals
			if unquoted, err := strconv.Unquote(remarks); err == nil {
				remarks = unquoted
			}
			e.Remarks = remarks
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *bqClient) DescribeEntity(ctx context.Context, entity remote.Entity) ([]remote.Field, error) {
	md, err := c.client.DatasetInProject(entity.Catalog, entity.Schema).Table(entity.Name).Metadata(ctx)
	if err != nil {
		return nil, errorFromRemote(c.errs, err, "describe %s.%s.%s", entity.Catalog, entity.Schema, entity.Name)
	}
	return fieldsFromSchema(md.Schema)
}

func fieldsFromSchema(schema bigquery.Schema) ([]remote.Field, error) {
	out := make([]remote.Field, 0, len(schema))
	for i, fs := range schema {
		f, err := buildField(fs, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, remote.Field{
			Name:     fs.Name,
			Ordinal:  int32(i + 1),
			TypeName: typeName(fs),
			Type:     f.Type,
			Nullable: f.Nullable,
			Remarks:  fs.Description,
		})
	}
	return out, nil
}

func scalarType(fs *bigquery.FieldSchema, level uint) (arrow.DataType, error) {
	switch fs.Type {
	case bigquery.StringFieldType, bigquery.GeographyFieldType, bigquery.JSONFieldType:
		return arrow.BinaryTypes.String, nil
	case bigquery.BytesFieldType:
		return arrow.BinaryTypes.Binary, nil
	case bigquery.IntegerFieldType:
		return arrow.PrimitiveTypes.Int64, nil
	case bigquery.FloatFieldType:
		return arrow.PrimitiveTypes.Float64, nil
	case bigquery.BooleanFieldType:
		return arrow.FixedWidthTypes.Boolean, nil
	case bigquery.TimestampFieldType:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	case bigquery.DateTimeFieldType:
		return &arrow.TimestampType{Unit: arrow.Microsecond}, nil
	case bigquery.DateFieldType:
		return arrow.FixedWidthTypes.Date32, nil
	case bigquery.TimeFieldType:
		return arrow.FixedWidthTypes.Time64us, nil
	case bigquery.NumericFieldType:
		precision, scale := int32(38), int32(9)
		if fs.Precision > 0 {
			precision, scale = int32(fs.Precision), int32(fs.Scale)
		}
		return &arrow.Decimal128Type{Precision: precision, Scale: scale}, nil
	case bigquery.BigNumericFieldType:
		precision, scale := int32(76), int32(38)
		if fs.Precision > 0 {
			precision, scale = int32(fs.Precision), int32(fs.Scale)
		}
		return &arrow.Decimal256Type{Precision: precision, Scale: scale}, nil
	case bigquery.IntervalFieldType:
		return arrow.FixedWidthTypes.MonthDayNanoInterval, nil
	case bigquery.RangeFieldType:
		if fs.RangeElementType == nil {
			return nil, fmt.Errorf("range field %s has no element type", fs.Name)
		}
		elem, err := scalarType(&bigquery.FieldSchema{Name: fs.Name, Type: fs.RangeElementType.Type}, level+1)
		if err != nil {
			return nil, err
		}
		return arrow.StructOf(
			arrow.Field{Name: "start", Type: elem, Nullable: true},
			arrow.Field{Name: "end", Type: elem, Nullable: true},
		), nil
	case bigquery.RecordFieldType:
		children := make([]arrow.Field, len(fs.Schema))
		for i, child := range fs.Schema {
			f, err := buildField(child, level+1)
			if err != nil {
				return nil, err
			}
			children[i] = f
		}
		return arrow.StructOf(children...), nil
	}
	return nil, fmt.Errorf("unsupported field type %s for %s", fs.Type, fs.Name)
}

// buildField converts a BigQuery column to the Arrow field its values
// are read as. level is the nesting depth of fs.
func buildField(fs *bigquery.FieldSchema, level uint) (arrow.Field, error) {
	if level > maxNestingDepth {
		return arrow.Field{}, fmt.Errorf("field %s nested deeper than %d levels", fs.Name, maxNestingDepth)
	}
	dt, err := scalarType(fs, level)
	if err != nil {
		return arrow.Field{}, err
	}

	field := arrow.Field{Name: fs.Name, Type: dt, Nullable: !fs.Required}
	if fs.Repeated {
		// arrays are never NULL, only empty
		field.Type = arrow.ListOf(dt)
		field.Nullable = false
	}

	var keys, values []string
	if fs.Description != "" {
		keys, values = append(keys, "Description"), append(values, fs.Description)
	}
	if fs.DefaultValueExpression != "" {
		keys, values = append(keys, "DefaultValueExpression"), append(values, fs.DefaultValueExpression)
	}
	if len(keys) > 0 {
		field.Metadata = arrow.NewMetadata(keys, values)
	}
	return field, nil
}

// typeName renders the GoogleSQL type of a column, e.g. INT64,
// ARRAY<STRUCT<a STRING>> or NUMERIC(10, 2).
func typeName(fs *bigquery.FieldSchema) string {
	var base string
	switch fs.Type {
	case bigquery.IntegerFieldType:
		base = "INT64"
	case bigquery.FloatFieldType:
		base = "FLOAT64"
	case bigquery.BooleanFieldType:
		base = "BOOL"
	case bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		base = string(fs.Type)
		if fs.Precision > 0 {
			base = fmt.Sprintf("%s(%d, %d)", fs.Type, fs.Precision, fs.Scale)
		}
	case bigquery.StringFieldType, bigquery.BytesFieldType:
		base = string(fs.Type)
		if fs.MaxLength > 0 {
			base = fmt.Sprintf("%s(%d)", fs.Type, fs.MaxLength)
		}
	case bigquery.RangeFieldType:
		if fs.RangeElementType != nil {
			base = fmt.Sprintf("RANGE<%s>", fs.RangeElementType.Type)
		} else {
			base = "RANGE"
		}
	case bigquery.RecordFieldType:
		parts := make([]string, len(fs.Schema))
		for i, child := range fs.Schema {
			parts[i] = child.Name + " " + typeName(child)
		}
		base = "STRUCT<" + strings.Join(parts, ", ") + ">"
	default:
		base = string(fs.Type)
	}
	if fs.Repeated {
		return "ARRAY<" + base + ">"
	}
	return base
}
