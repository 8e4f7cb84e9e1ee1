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

// Package remotetest provides in-memory, call-counting implementations
// of the remote interfaces for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// NotFound returns the error a real client reports for a vanished
// container or entity.
func NotFound(what string) error {
	return tbcbq.Error{Code: tbcbq.StatusNotFound, Msg: fmt.Sprintf("not found: %s", what)}
}

// Unavailable returns a communication error.
func Unavailable() error {
	return tbcbq.Error{Code: tbcbq.StatusIO, Msg: "service unavailable"}
}

// Catalog is a fake remote.CatalogClient backed by maps.
type Catalog struct {
	project string
	// Delay is slept before answering each call.
	Delay time.Duration

	mu         sync.Mutex
	containers map[string][]remote.Container
	entities   map[string][]remote.Entity
	fields     map[string][]remote.Field
	errs       map[string]error

	containerCalls atomic.Int64
	entityCalls    atomic.Int64
	describeCalls  atomic.Int64
}

var _ remote.CatalogClient = (*Catalog)(nil)

func NewCatalog(project string) *Catalog {
	return &Catalog{
		project:    project,
		containers: make(map[string][]remote.Container),
		entities:   make(map[string][]remote.Entity),
		fields:     make(map[string][]remote.Field),
		errs:       make(map[string]error),
	}
}

func containerKey(catalog, schema string) string { return catalog + "." + schema }
func entityKey(catalog, schema, name string) string {
	return catalog + "." + schema + "." + name
}

// AddContainer registers an empty dataset.
func (c *Catalog) AddContainer(catalog, schema string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.containers[catalog] {
		if existing.Name == schema {
			return
		}
	}
	c.containers[catalog] = append(c.containers[catalog], remote.Container{Catalog: catalog, Name: schema, Location: "US"})
}

// AddTable registers a table (and its dataset) with the given columns.
// Ordinals are assigned in order.
func (c *Catalog) AddTable(catalog, schema, table, kind string, columns ...string) {
	c.AddContainer(catalog, schema)

	c.mu.Lock()
	defer c.mu.Unlock()
	key := containerKey(catalog, schema)
	c.entities[key] = append(c.entities[key], remote.Entity{Catalog: catalog, Schema: schema, Name: table, Kind: kind})

	fields := make([]remote.Field, len(columns))
	for i, name := range columns {
		fields[i] = remote.Field{
			Name:     name,
			Ordinal:  int32(i + 1),
			TypeName: "STRING",
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
		}
	}
	c.fields[entityKey(catalog, schema, table)] = fields
}

// FailContainers makes ListContainers(catalog) return err.
func (c *Catalog) FailContainers(catalog string, err error) {
	c.setErr("containers:"+catalog, err)
}

// FailEntities makes ListEntities for the dataset return err.
func (c *Catalog) FailEntities(catalog, schema string, err error) {
	c.setErr("entities:"+containerKey(catalog, schema), err)
}

// FailDescribe makes DescribeEntity for the table return err.
func (c *Catalog) FailDescribe(catalog, schema, table string, err error) {
	c.setErr("describe:"+entityKey(catalog, schema, table), err)
}

func (c *Catalog) setErr(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[key] = err
}

func (c *Catalog) errFor(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[key]
}

func (c *Catalog) wait(ctx context.Context) error {
	if c.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) Project() string { return c.project }

func (c *Catalog) ListContainers(ctx context.Context, catalog string) ([]remote.Container, error) {
	c.containerCalls.Add(1)
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if err := c.errFor("containers:" + catalog); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.Container(nil), c.containers[catalog]...), nil
}

func (c *Catalog) ListEntities(ctx context.Context, container remote.Container) ([]remote.Entity, error) {
	c.entityCalls.Add(1)
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	key := containerKey(container.Catalog, container.Name)
	if err := c.errFor("entities:" + key); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.Entity(nil), c.entities[key]...), nil
}

func (c *Catalog) DescribeEntity(ctx context.Context, entity remote.Entity) ([]remote.Field, error) {
	c.describeCalls.Add(1)
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	key := entityKey(entity.Catalog, entity.Schema, entity.Name)
	if err := c.errFor("describe:" + key); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.Field(nil), c.fields[key]...), nil
}

func (c *Catalog) ContainerCalls() int64 { return c.containerCalls.Load() }
func (c *Catalog) EntityCalls() int64    { return c.entityCalls.Load() }
func (c *Catalog) DescribeCalls() int64  { return c.describeCalls.Load() }

// Calls is the total number of remote calls made.
func (c *Catalog) Calls() int64 {
	return c.ContainerCalls() + c.EntityCalls() + c.DescribeCalls()
}

// Job is a fake remote.Job.
type Job struct {
	JobID     string
	Submitted time.Time
}

func (j *Job) ID() string             { return j.JobID }
func (j *Job) Location() string       { return "US" }
func (j *Job) SubmittedAt() time.Time { return j.Submitted }

// Jobs is a fake remote.JobClient. By default every job completes at
// once with an empty result tracked by a [Reader].
type Jobs struct {
	// SubmitFunc, if set, runs before a job handle is returned.
	SubmitFunc func(ctx context.Context, sql string) error
	// AwaitFunc, if set, decides the outcome of AwaitCompletion.
	AwaitFunc func(ctx context.Context, job remote.Job) (remote.Result, error)
	// CancelErr is returned by every Cancel call.
	CancelErr error

	seq       atomic.Int64
	submitted atomic.Int64
	cancels   atomic.Int64

	mu        sync.Mutex
	cancelled []string
	readers   []*Reader
}

var _ remote.JobClient = (*Jobs)(nil)

func (f *Jobs) SubmitQuery(ctx context.Context, sql string, _ remote.QueryOptions) (remote.Job, error) {
	if f.SubmitFunc != nil {
		if err := f.SubmitFunc(ctx, sql); err != nil {
			return nil, err
		}
	}
	f.submitted.Add(1)
	return &Job{JobID: fmt.Sprintf("job_%d", f.seq.Add(1)), Submitted: time.Now()}, nil
}

func (f *Jobs) AwaitCompletion(ctx context.Context, job remote.Job) (remote.Result, error) {
	if f.AwaitFunc != nil {
		return f.AwaitFunc(ctx, job)
	}
	return f.NewResult(job), nil
}

// NewResult builds a successful empty result for job and remembers its
// reader.
func (f *Jobs) NewResult(job remote.Job) remote.Result {
	rdr := NewReader()
	f.mu.Lock()
	f.readers = append(f.readers, rdr)
	f.mu.Unlock()
	return remote.Result{Reader: rdr, JobID: job.ID(), StatementType: "SELECT"}
}

func (f *Jobs) Cancel(_ context.Context, job remote.Job) error {
	f.cancels.Add(1)
	f.mu.Lock()
	f.cancelled = append(f.cancelled, job.ID())
	f.mu.Unlock()
	return f.CancelErr
}

func (f *Jobs) Submitted() int64 { return f.submitted.Load() }
func (f *Jobs) Cancels() int64   { return f.cancels.Load() }

func (f *Jobs) CancelledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// Readers returns every reader handed out by NewResult, oldest first.
func (f *Jobs) Readers() []*Reader {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Reader(nil), f.readers...)
}

var emptySchema = arrow.NewSchema([]arrow.Field{{Name: "f0", Type: arrow.PrimitiveTypes.Int64}}, nil)

// Reader is an empty record reader that remembers whether it has been
// released.
type Reader struct {
	refCount atomic.Int64
	released atomic.Bool
}

var _ array.RecordReader = (*Reader)(nil)

func NewReader() *Reader {
	r := &Reader{}
	r.refCount.Store(1)
	return r
}

func (r *Reader) Retain() { r.refCount.Add(1) }

func (r *Reader) Release() {
	if r.refCount.Add(-1) == 0 {
		r.released.Store(true)
	}
}

func (r *Reader) Released() bool        { return r.released.Load() }
func (r *Reader) Schema() *arrow.Schema { return emptySchema }
func (r *Reader) Next() bool            { return false }
func (r *Reader) Record() arrow.Record  { return nil }
func (r *Reader) Err() error            { return nil }

// Client combines a fake Catalog and fake Jobs into a remote.Client.
type Client struct {
	*Catalog
	*Jobs

	closed atomic.Bool
}

var _ remote.Client = (*Client)(nil)

func NewClient(project string) *Client {
	return &Client{Catalog: NewCatalog(project), Jobs: &Jobs{}}
}

func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Client) Closed() bool { return c.closed.Load() }
