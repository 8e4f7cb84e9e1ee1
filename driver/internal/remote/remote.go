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

// Package remote defines the narrow view of the BigQuery service that
// the execution and catalog engines depend on.
package remote

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Job is a handle on one submitted query job.
type Job interface {
	ID() string
	Location() string
	SubmittedAt() time.Time
}

// QueryOptions is the job configuration for a single submission.
type QueryOptions struct {
	DefaultProjectID string
	DefaultDatasetID string
	Location         string
	UseLegacySQL     bool
	DisableCache     bool
	DryRun           bool
	MaxBytesBilled   int64
	Priority         string
	// JobTimeout is enforced by the service, independently of the
	// client-side timeout.
	JobTimeout time.Duration
	Labels     map[string]string
	// Destination, when set, receives the query results.
	Destination *TableRef
}

// TableRef names a table by its fully qualified path.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// Result is the outcome of a completed job.
//
// The caller owns Reader and must release it.
type Result struct {
	Reader        array.RecordReader
	TotalRows     int64
	AffectedRows  int64
	StatementType string
	JobID         string
}

// JobClient submits and controls query jobs.
type JobClient interface {
	// SubmitQuery starts a job and returns without waiting for it.
	SubmitQuery(ctx context.Context, sql string, opts QueryOptions) (Job, error)
	// AwaitCompletion blocks until the job finishes or ctx is done. A
	// job that finished with an error returns that error.
	AwaitCompletion(ctx context.Context, job Job) (Result, error)
	// Cancel asks the service to stop the job. It does not wait.
	Cancel(ctx context.Context, job Job) error
}

// Container is a dataset.
type Container struct {
	Catalog  string
	Name     string
	Location string
}

// Entity is a table, view or other queryable object in a container.
type Entity struct {
	Catalog string
	Schema  string
	Name    string
	Kind    string
	Remarks string
}

// Field is one column of an entity.
type Field struct {
	Name     string
	Ordinal  int32
	TypeName string
	Type     arrow.DataType
	Nullable bool
	Remarks  string
}

// CatalogClient lists catalog entities one level at a time.
//
// Implementations return an error with status NotFound when the
// container or entity no longer exists.
type CatalogClient interface {
	// Project is the project the client is billed against; it is the
	// default catalog.
	Project() string
	ListContainers(ctx context.Context, catalog string) ([]Container, error)
	ListEntities(ctx context.Context, container Container) ([]Entity, error)
	DescribeEntity(ctx context.Context, entity Entity) ([]Field, error)
}

// Client is the full remote surface.
type Client interface {
	JobClient
	CatalogClient
	Close() error
}
