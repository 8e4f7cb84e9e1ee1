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

package execution_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/execution"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(jobs *remotetest.Jobs, defaultTimeout time.Duration) *execution.Context {
	return execution.New(execution.Config{
		Client:         jobs,
		DefaultTimeout: defaultTimeout,
		ErrorHelper:    driverbase.ErrorHelper{DriverName: "BigQuery"},
	})
}

// blockUntilDone never completes on its own.
func blockUntilDone(ctx context.Context, _ remote.Job) (remote.Result, error) {
	<-ctx.Done()
	return remote.Result{}, ctx.Err()
}

func TestExecuteSuccess(t *testing.T) {
	jobs := &remotetest.Jobs{}
	ec := newContext(jobs, 0)

	cur, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "job_1", cur.JobID)
	assert.Equal(t, execution.StateDone, ec.State())
	assert.False(t, cur.Next())

	_, running := ec.CurrentJobID()
	assert.False(t, running)

	cur.Release()
	assert.True(t, cur.Closed())
	assert.True(t, jobs.Readers()[0].Released())
	assert.Zero(t, jobs.Cancels())
}

func TestTimeoutCancelsRemoteJobOnce(t *testing.T) {
	jobs := &remotetest.Jobs{AwaitFunc: blockUntilDone}
	ec := newContext(jobs, 0)

	start := time.Now()
	cur, err := ec.Execute(context.Background(), "SELECT slow()", remote.QueryOptions{}, time.Second)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, cur)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusTimeout), err.Error())
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 1500*time.Millisecond)

	assert.EqualValues(t, 1, jobs.Cancels())
	assert.Equal(t, []string{"job_1"}, jobs.CancelledJobs())
	assert.Equal(t, execution.StateTimedOut, ec.State())

	jobID, ok := tbcbq.JobIDFromError(err)
	require.True(t, ok)
	assert.Equal(t, "job_1", jobID)
}

func TestDefaultTimeoutApplies(t *testing.T) {
	jobs := &remotetest.Jobs{AwaitFunc: blockUntilDone}
	ec := newContext(jobs, 50*time.Millisecond)

	_, err := ec.Execute(context.Background(), "SELECT slow()", remote.QueryOptions{}, 0)
	require.Error(t, err)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusTimeout))
	assert.EqualValues(t, 1, jobs.Cancels())
}

func TestTimeoutSurvivesFailedRemoteCancel(t *testing.T) {
	jobs := &remotetest.Jobs{AwaitFunc: blockUntilDone, CancelErr: errors.New("cancel rejected")}
	ec := newContext(jobs, 0)

	_, err := ec.Execute(context.Background(), "SELECT slow()", remote.QueryOptions{}, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusTimeout))
	assert.EqualValues(t, 1, jobs.Cancels())
}

func TestLateResultIsDiscarded(t *testing.T) {
	jobs := &remotetest.Jobs{}
	release := make(chan struct{})
	jobs.AwaitFunc = func(_ context.Context, job remote.Job) (remote.Result, error) {
		// ignores cancellation and completes anyway
		<-release
		return jobs.NewResult(job), nil
	}
	ec := newContext(jobs, 0)

	_, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, execution.StateTimedOut, ec.State())

	close(release)
	require.Eventually(t, func() bool {
		rdrs := jobs.Readers()
		return len(rdrs) == 1 && rdrs[0].Released()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, execution.StateTimedOut, ec.State())
}

func TestRemoteQueryErrorCarriesJobID(t *testing.T) {
	remoteErr := tbcbq.Error{
		Code: tbcbq.StatusInvalidArgument,
		Msg:  "Syntax error: Unexpected keyword FORM at [1:10]",
	}
	jobs := &remotetest.Jobs{AwaitFunc: func(context.Context, remote.Job) (remote.Result, error) {
		return remote.Result{}, remoteErr
	}}
	ec := newContext(jobs, 0)

	_, err := ec.Execute(context.Background(), "SELECT * FORM t", remote.QueryOptions{}, time.Second)
	require.Error(t, err)

	var got tbcbq.Error
	require.ErrorAs(t, err, &got)
	assert.Equal(t, tbcbq.StatusInvalidArgument, got.Code)
	assert.Equal(t, remoteErr.Msg, got.Msg)
	jobID, ok := tbcbq.JobIDFromError(err)
	require.True(t, ok)
	assert.Equal(t, "job_1", jobID)

	assert.Equal(t, execution.StateError, ec.State())
	assert.Zero(t, jobs.Cancels())
}

func TestSubmitErrorPropagates(t *testing.T) {
	submitErr := tbcbq.Error{Code: tbcbq.StatusUnauthenticated, Msg: "invalid credentials"}
	jobs := &remotetest.Jobs{SubmitFunc: func(context.Context, string) error { return submitErr }}
	ec := newContext(jobs, 0)

	_, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 0)
	assert.Equal(t, submitErr, err)
	assert.Equal(t, execution.StateError, ec.State())
}

func TestSecondExecuteClosesFirstCursor(t *testing.T) {
	jobs := &remotetest.Jobs{}
	var closedBeforeSecondSubmit atomic.Bool
	jobs.SubmitFunc = func(context.Context, string) error {
		if rdrs := jobs.Readers(); len(rdrs) == 1 {
			closedBeforeSecondSubmit.Store(rdrs[0].Released())
		}
		return nil
	}
	ec := newContext(jobs, 0)

	first, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 0)
	require.NoError(t, err)
	second, err := ec.Execute(context.Background(), "SELECT 2", remote.QueryOptions{}, 0)
	require.NoError(t, err)

	assert.True(t, closedBeforeSecondSubmit.Load())
	assert.True(t, first.Closed())
	assert.False(t, first.Next())
	assert.False(t, second.Closed())

	// the caller releasing the forced-closed cursor is harmless
	first.Release()
	rdrs := jobs.Readers()
	require.Len(t, rdrs, 2)
	assert.True(t, rdrs[0].Released())
	assert.False(t, rdrs[1].Released())

	require.NoError(t, ec.Close())
	assert.True(t, rdrs[1].Released())
}

func TestCancelWithNothingInFlight(t *testing.T) {
	jobs := &remotetest.Jobs{}
	ec := newContext(jobs, 0)

	ec.Cancel()
	assert.Equal(t, execution.StateIdle, ec.State())

	_, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 0)
	require.NoError(t, err)
	ec.Cancel()
	assert.Equal(t, execution.StateDone, ec.State())
	assert.Zero(t, jobs.Cancels())
}

func TestCancelFromAnotherGoroutine(t *testing.T) {
	jobs := &remotetest.Jobs{AwaitFunc: blockUntilDone}
	ec := newContext(jobs, 0)

	go func() {
		assert.Eventually(t, func() bool {
			_, ok := ec.CurrentJobID()
			return ok
		}, time.Second, time.Millisecond)
		ec.Cancel()
	}()

	_, err := ec.Execute(context.Background(), "SELECT slow()", remote.QueryOptions{}, 0)
	require.Error(t, err)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusCancelled), err.Error())
	assert.Equal(t, execution.StateCancelled, ec.State())
	assert.EqualValues(t, 1, jobs.Cancels())
}

func TestCancelDuringSubmitReachesJob(t *testing.T) {
	jobs := &remotetest.Jobs{}
	var ec *execution.Context
	jobs.SubmitFunc = func(context.Context, string) error {
		// submission succeeds even though the caller gave up meanwhile
		ec.Cancel()
		return nil
	}
	ec = newContext(jobs, 0)

	_, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 0)
	require.Error(t, err)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusCancelled))
	assert.EqualValues(t, 1, jobs.Cancels())
	assert.Empty(t, jobs.Readers())
}

func TestTimeoutCoversHungSubmission(t *testing.T) {
	jobs := &remotetest.Jobs{}
	jobs.SubmitFunc = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ec := newContext(jobs, 0)

	start := time.Now()
	_, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusTimeout), err.Error())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, execution.StateTimedOut, ec.State())
	assert.Zero(t, jobs.Cancels())
}

func TestSlowSubmissionPastTimeoutCancelsJob(t *testing.T) {
	jobs := &remotetest.Jobs{AwaitFunc: blockUntilDone}
	jobs.SubmitFunc = func(context.Context, string) error {
		// the insert call ignores cancellation and lands late
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	ec := newContext(jobs, 0)

	_, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusTimeout), err.Error())
	assert.EqualValues(t, 1, jobs.Cancels())
	assert.Empty(t, jobs.Readers())
}

func TestCallerContextCancellation(t *testing.T) {
	jobs := &remotetest.Jobs{AwaitFunc: blockUntilDone}
	ec := newContext(jobs, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ec.Execute(ctx, "SELECT slow()", remote.QueryOptions{}, 0)
	require.Error(t, err)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusTimeout))
	assert.EqualValues(t, 1, jobs.Cancels())
}

func TestCloseIsIdempotent(t *testing.T) {
	ec := newContext(&remotetest.Jobs{}, 0)
	require.NoError(t, ec.Close())
	require.NoError(t, ec.Close())

	_, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, 0)
	assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusInvalidState))
}

func TestCloseCancelsInFlight(t *testing.T) {
	jobs := &remotetest.Jobs{AwaitFunc: blockUntilDone}
	ec := newContext(jobs, 0)

	errCh := make(chan error, 1)
	go func() {
		_, err := ec.Execute(context.Background(), "SELECT slow()", remote.QueryOptions{}, 0)
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		_, ok := ec.CurrentJobID()
		return ok
	}, time.Second, time.Millisecond)

	require.NoError(t, ec.Close())
	select {
	case err := <-errCh:
		assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusCancelled))
	case <-time.After(time.Second):
		t.Fatal("execute did not return after close")
	}
}

func TestCrossGoroutineCancelStress(t *testing.T) {
	jobs := &remotetest.Jobs{}
	jobs.AwaitFunc = func(ctx context.Context, job remote.Job) (remote.Result, error) {
		select {
		case <-time.After(time.Duration(rand.Intn(500)) * time.Microsecond):
			return jobs.NewResult(job), nil
		case <-ctx.Done():
			return remote.Result{}, ctx.Err()
		}
	}

	const workers, iterations = 4, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ec := newContext(jobs, 0)
			defer ec.Close()

			for i := 0; i < iterations; i++ {
				stop := make(chan struct{})
				go func() {
					time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)
					ec.Cancel()
					close(stop)
				}()

				cur, err := ec.Execute(context.Background(), "SELECT 1", remote.QueryOptions{}, time.Second)
				switch ec.State() {
				case execution.StateDone:
					assert.NoError(t, err)
					assert.NotNil(t, cur)
				case execution.StateCancelled:
					assert.True(t, tbcbq.IsStatus(err, tbcbq.StatusCancelled), "%v", err)
					assert.Nil(t, cur)
				default:
					t.Errorf("unexpected terminal state %s (err %v)", ec.State(), err)
				}
				<-stop
			}
		}()
	}
	wg.Wait()

	// every reader handed out is eventually released
	require.Eventually(t, func() bool {
		for _, r := range jobs.Readers() {
			if !r.Released() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}
