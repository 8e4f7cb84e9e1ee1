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
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/bigquery"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/api/iterator"
)

// reader streams records decoded by a background goroutine through a
// bounded channel.
type reader struct {
	refCount int64
	schema   *arrow.Schema
	ch       chan arrow.Record
	rec      arrow.Record

	mu  sync.Mutex
	err error

	cancelFn context.CancelFunc
}

func checkContext(ctx context.Context, maybeErr error) error {
	if maybeErr != nil {
		return maybeErr
	} else if errors.Is(ctx.Err(), context.Canceled) {
		return tbcbq.Error{Msg: ctx.Err().Error(), Code: tbcbq.StatusCancelled}
	} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return tbcbq.Error{Msg: ctx.Err().Error(), Code: tbcbq.StatusTimeout}
	}
	return ctx.Err()
}

func ipcReaderFromArrowIterator(arrowIterator bigquery.ArrowIterator, alloc memory.Allocator) (*ipc.Reader, error) {
	arrowItReader := bigquery.NewArrowIteratorReader(arrowIterator)
	rdr, err := ipc.NewReader(arrowItReader, ipc.WithAllocator(alloc))
	if err != nil {
		return nil, err
	}
	return rdr, nil
}

// newRecordReader drains rdr on a goroutine. wrap is applied to a
// terminal read error before it is surfaced by Err.
func newRecordReader(ctx context.Context, rdr *ipc.Reader, bufferSize int, wrap func(error) error) *reader {
	ch := make(chan arrow.Record, bufferSize)
	ctx, cancelFn := context.WithCancel(ctx)

	r := &reader{
		refCount: 1,
		ch:       ch,
		cancelFn: cancelFn,
		schema:   rdr.Schema(),
	}

	go func() {
		defer close(ch)
		defer rdr.Release()
		for rdr.Next() && ctx.Err() == nil {
			rec := rdr.Record()
			rec.Retain()
			select {
			case ch <- rec:
			case <-ctx.Done():
				rec.Release()
			}
		}

		if err := checkContext(ctx, rdr.Err()); err != nil {
			var tbErr tbcbq.Error
			if !errors.As(err, &tbErr) && wrap != nil {
				err = wrap(err)
			}
			r.setErr(err)
		}
	}()

	return r
}

func (r *reader) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *reader) Retain() {
	atomic.AddInt64(&r.refCount, 1)
}

func (r *reader) Release() {
	if atomic.AddInt64(&r.refCount, -1) == 0 {
		if r.rec != nil {
			r.rec.Release()
			r.rec = nil
		}
		r.cancelFn()
		for rec := range r.ch {
			rec.Release()
		}
	}
}

func (r *reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *reader) Next() bool {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}

	r.rec = <-r.ch
	return r.rec != nil
}

func (r *reader) Schema() *arrow.Schema {
	return r.schema
}

func (r *reader) Record() arrow.Record {
	return r.rec
}

// emptyArrowIterator stands in for the result of statements that
// produce no rows.
type emptyArrowIterator struct{}

func (emptyArrowIterator) Next() (*bigquery.ArrowRecordBatch, error) {
	return nil, iterator.Done
}

func (emptyArrowIterator) Schema() bigquery.Schema {
	return bigquery.Schema{}
}

func (emptyArrowIterator) SerializedArrowSchema() []byte {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(arrow.NewSchema(nil, nil)))
	if err := w.Close(); err != nil {
		return nil
	}
	return buf.Bytes()
}
