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

// Package fanout runs one task per input item concurrently and
// gathers the results.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options bound a fan-out. The zero value runs every task at once.
type Options struct {
	// Limit caps the number of tasks in flight for one call. Zero or
	// negative means no cap. Nested calls each get their own cap.
	Limit int
	// Limiter, if set, is waited on before each task starts. One
	// limiter may be shared across calls and nesting levels to bound
	// the request rate against the remote service.
	Limiter *rate.Limiter
}

// Map calls fn once per item, concurrently, and returns the results in
// input order.
//
// A failing task does not stop its siblings. Once every task has
// returned, the first error observed is returned as is and the
// results are discarded.
func Map[T, R any](ctx context.Context, opts Options, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))

	var g errgroup.Group
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}
	for i, item := range items {
		g.Go(func() error {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(ctx); err != nil {
					return err
				}
			}
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FlatMap is Map for tasks that each produce a slice. The slices are
// concatenated in input order.
func FlatMap[T, R any](ctx context.Context, opts Options, items []T, fn func(context.Context, T) ([]R, error)) ([]R, error) {
	parts, err := Map(ctx, opts, items, fn)
	if err != nil {
		return nil, err
	}

	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]R, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}
