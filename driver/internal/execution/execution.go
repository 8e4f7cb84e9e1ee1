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

// Package execution turns the submit-then-poll job API into a blocking
// execute call with a client-side timeout and cooperative
// cancellation.
//
// A [Context] is the per-statement execution context. It holds at most
// one in-flight job and at most one open [Cursor]. Starting a new
// execution closes the previous cursor first.
package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
)

// remoteCancelTimeout bounds the best-effort cancel request sent after
// a timeout or cancellation.
const remoteCancelTimeout = 5 * time.Second

var (
	errCancelled    = errors.New("execution cancelled")
	errTimedOut     = errors.New("execution timed out")
	errFinished     = errors.New("execution finished")
	errCursorClosed = errors.New("cursor closed")
)

// execution is one submitted query. Its state is written only by the
// goroutine running Execute; cancel may be called from anywhere.
type execution struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	state  atomic.Int32
	job    atomic.Pointer[remote.Job]
}

func newExecution(parent context.Context) *execution {
	ctx, cancel := context.WithCancelCause(parent)
	return &execution{ctx: ctx, cancel: cancel}
}

func (x *execution) State() State { return State(x.state.Load()) }

func (x *execution) transition(from, to State) bool {
	return x.state.CompareAndSwap(int32(from), int32(to))
}

func (x *execution) finish(to State) {
	for {
		cur := x.State()
		if cur.Terminal() || x.transition(cur, to) {
			return
		}
	}
}

type outcome struct {
	res remote.Result
	err error
}

// Config configures a [Context].
type Config struct {
	Client remote.JobClient
	// DefaultTimeout applies when Execute is given no timeout. Zero
	// means wait indefinitely.
	DefaultTimeout time.Duration
	ErrorHelper    driverbase.ErrorHelper
	Logger         *slog.Logger
}

// Context is safe for concurrent use, but executions on one Context
// are serialized.
type Context struct {
	client         remote.JobClient
	defaultTimeout time.Duration
	errs           driverbase.ErrorHelper
	logger         *slog.Logger

	current atomic.Pointer[execution]
	last    atomic.Pointer[execution]

	mu     sync.Mutex
	cursor *Cursor
	closed bool
}

func New(cfg Config) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Context{
		client:         cfg.Client,
		defaultTimeout: cfg.DefaultTimeout,
		errs:           cfg.ErrorHelper,
		logger:         logger,
	}
}

// Execute submits sql and blocks until the job completes, the timeout
// elapses, ctx is done or Cancel is called.
//
// A zero timeout falls back to the configured default. On timeout or
// cancellation the remote job is asked to stop; the returned error has
// status Timeout or Cancelled either way. A result arriving after that
// point is released and discarded.
func (c *Context) Execute(ctx context.Context, sql string, opts remote.QueryOptions, timeout time.Duration) (*Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, c.errs.Errorf(tbcbq.StatusInvalidState, "execution context is closed")
	}
	c.closeCursorLocked()

	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	x := newExecution(ctx)
	c.last.Store(x)
	c.current.Store(x)
	defer c.current.CompareAndSwap(x, nil)

	// the timeout covers submission as well as the wait
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() { x.cancel(errTimedOut) })
		defer timer.Stop()
	}

	start := time.Now()
	job, err := c.client.SubmitQuery(x.ctx, sql, opts)
	if err != nil {
		if x.ctx.Err() != nil {
			return nil, c.interrupted(ctx, x, nil, context.Cause(x.ctx), nil)
		}
		x.finish(StateError)
		x.cancel(errFinished)
		return nil, err
	}
	x.job.Store(&job)
	x.transition(StateIdle, StateSubmitted)
	c.logger.DebugContext(ctx, "query submitted", "job_id", job.ID(), "location", job.Location())

	// a cancel that raced the submission still reaches the job
	if x.ctx.Err() != nil {
		return nil, c.interrupted(ctx, x, job, context.Cause(x.ctx), nil)
	}

	done := make(chan outcome, 1)
	x.transition(StateSubmitted, StateRunning)
	go func() {
		res, err := c.client.AwaitCompletion(x.ctx, job)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if timer != nil {
			timer.Stop()
		}
		if x.ctx.Err() != nil {
			if out.err == nil && out.res.Reader != nil {
				out.res.Reader.Release()
			}
			return nil, c.interrupted(ctx, x, job, context.Cause(x.ctx), nil)
		}
		if out.err != nil {
			x.finish(StateError)
			x.cancel(errFinished)
			c.logger.DebugContext(ctx, "query failed", "job_id", job.ID(), "error", out.err)
			return nil, driverbase.WithDetail(out.err, tbcbq.DetailJobID, job.ID())
		}
		x.finish(StateDone)
		if out.res.JobID == "" {
			out.res.JobID = job.ID()
		}
		c.logger.DebugContext(ctx, "query completed", "job_id", job.ID(), "elapsed", time.Since(start))
		c.cursor = newCursor(out.res, func() { x.cancel(errCursorClosed) })
		return c.cursor, nil
	case <-x.ctx.Done():
		return nil, c.interrupted(ctx, x, job, context.Cause(x.ctx), done)
	}
}

// interrupted moves x to Cancelled or TimedOut, asks the service to
// stop job (if known) and builds the error returned to the caller.
// Any result still pending on done is drained and released.
func (c *Context) interrupted(ctx context.Context, x *execution, job remote.Job, cause error, done <-chan outcome) error {
	timedOut := errors.Is(cause, errTimedOut) || errors.Is(cause, context.DeadlineExceeded)

	code, what := tbcbq.StatusCancelled, "cancelled"
	if timedOut {
		x.finish(StateTimedOut)
		code, what = tbcbq.StatusTimeout, "timed out"
	} else {
		x.finish(StateCancelled)
	}
	x.cancel(cause)

	if done != nil {
		go func() {
			if out := <-done; out.err == nil && out.res.Reader != nil {
				out.res.Reader.Release()
			}
		}()
	}

	if job == nil {
		recordInterrupted(ctx, timedOut)
		return c.errs.Errorf(code, "query %s before submission completed", what)
	}

	if timedOut {
		c.logger.InfoContext(ctx, "query timed out, cancelling job", "job_id", job.ID())
	} else {
		c.logger.DebugContext(ctx, "query cancelled, cancelling job", "job_id", job.ID())
	}
	c.cancelRemote(ctx, job)
	recordInterrupted(ctx, timedOut)

	return c.errs.Error(code, "query "+what+" (job "+job.ID()+")",
		&tbcbq.TextErrorDetail{Name: tbcbq.DetailJobID, Detail: job.ID()},
		&tbcbq.TextErrorDetail{Name: tbcbq.DetailJobLocation, Detail: job.Location()},
	)
}

// cancelRemote sends one best-effort cancel for job. Failures are
// logged and otherwise ignored.
func (c *Context) cancelRemote(ctx context.Context, job remote.Job) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteCancelTimeout)
	defer cancel()
	if err := c.client.Cancel(cctx, job); err != nil {
		c.logger.WarnContext(ctx, "failed to cancel remote job", "job_id", job.ID(), "error", err)
	}
}

// Cancel stops the in-flight execution, if any. It may be called from
// any goroutine and is a no-op when nothing is running.
func (c *Context) Cancel() {
	if x := c.current.Load(); x != nil {
		x.cancel(errCancelled)
	}
}

// State returns the state of the most recent execution, or StateIdle
// if there has been none.
func (c *Context) State() State {
	if x := c.last.Load(); x != nil {
		return x.State()
	}
	return StateIdle
}

// CurrentJobID returns the identifier of the in-flight job, if any.
func (c *Context) CurrentJobID() (string, bool) {
	x := c.current.Load()
	if x == nil {
		return "", false
	}
	if job := x.job.Load(); job != nil {
		return (*job).ID(), true
	}
	return "", false
}

// CloseCursor closes the open cursor, if any.
func (c *Context) CloseCursor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCursorLocked()
}

func (c *Context) closeCursorLocked() {
	if c.cursor != nil {
		c.cursor.Close()
		c.cursor = nil
	}
}

// Close cancels any in-flight execution and closes the open cursor.
// Closing twice is a no-op.
func (c *Context) Close() error {
	c.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCursorLocked()
	return nil
}
