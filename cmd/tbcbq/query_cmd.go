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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/bigquery"
	"github.com/spf13/cobra"
)

type queryFlags struct {
	timeout     float64
	priority    string
	dryRun      bool
	maxRows     int
	update      bool
	labels      []string
	destination string
}

// statementOptions translates the command line into statement options.
// Flags left unset fall back to the config file.
func (a *app) statementOptions(cmd *cobra.Command, f *queryFlags) map[string]string {
	opts := map[string]string{}
	timeout := a.cfg.Query.TimeoutSeconds
	if cmd.Flags().Changed("timeout") {
		timeout = f.timeout
	}
	if timeout > 0 {
		opts[bigquery.OptionDoubleQueryTimeoutSeconds] = strconv.FormatFloat(timeout, 'f', -1, 64)
	}
	priority := a.cfg.Query.Priority
	if cmd.Flags().Changed("priority") {
		priority = f.priority
	}
	if priority != "" {
		opts[bigquery.OptionStringQueryPriority] = strings.ToUpper(priority)
	}
	if f.dryRun || a.cfg.Query.DryRun {
		opts[bigquery.OptionBoolQueryDryRun] = "true"
	}
	if len(f.labels) > 0 {
		opts[bigquery.OptionStringQueryLabels] = strings.Join(f.labels, ",")
	}
	if f.destination != "" {
		opts[bigquery.OptionStringQueryDestinationTable] = f.destination
	}
	if a.cfg.Dataset != "" {
		opts[bigquery.OptionStringQueryDefaultDatasetID] = a.cfg.Dataset
	}
	return opts
}

func readQuery(args []string, stdin io.Reader) (string, error) {
	if args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading query from stdin: %w", err)
	}
	q := strings.TrimSpace(string(b))
	if q == "" {
		return "", fmt.Errorf("empty query on stdin")
	}
	return q, nil
}

func (a *app) queryCmd() *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query SQL|-",
		Short: "Run a query and print its result",
		Long:  "Run a GoogleSQL query. Pass - to read the query from standard input.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args, os.Stdin)
			if err != nil {
				return err
			}
			maxRows := a.cfg.Query.MaxRows
			if cmd.Flags().Changed("max-rows") {
				maxRows = f.maxRows
			}
			return a.withSession(cmd, func(s *session) error {
				return a.runQuery(cmd, s, query, a.statementOptions(cmd, f), f.update, maxRows)
			})
		},
	}
	cmd.Flags().Float64Var(&f.timeout, "timeout", 0, "query timeout in seconds (0 for none)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "INTERACTIVE or BATCH")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "validate the query without running it")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 100, "maximum rows to print (0 for all)")
	cmd.Flags().BoolVar(&f.update, "update", false, "run as an update and print the affected row count")
	cmd.Flags().StringSliceVar(&f.labels, "label", nil, "job label as key=value (repeatable)")
	cmd.Flags().StringVar(&f.destination, "destination", "", "write results to [project.]dataset.table")
	return cmd
}

func (a *app) runQuery(cmd *cobra.Command, s *session, query string, opts map[string]string, update bool, maxRows int) (err error) {
	stmt, err := s.cnxn.NewStatement()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for k, v := range opts {
		if err := stmt.SetOption(k, v); err != nil {
			return err
		}
	}
	if err := stmt.SetSqlQuery(query); err != nil {
		return err
	}

	if update {
		n, err := stmt.ExecuteUpdate(cmd.Context())
		if err != nil {
			return err
		}
		return render(a.stdout, a.cfg.Output, map[string]int64{"affected_rows": n},
			[]string{"AFFECTED ROWS"}, [][]string{{strconv.FormatInt(n, 10)}})
	}

	rdr, n, err := stmt.ExecuteQuery(cmd.Context())
	if err != nil {
		return err
	}
	defer rdr.Release()

	out := recordRows{limit: maxRows}
	if err := out.consume(rdr); err != nil {
		return err
	}
	if err := render(a.stdout, a.cfg.Output, out.objects, out.headers, out.rows); err != nil {
		return err
	}
	if a.cfg.Output != "json" {
		switch {
		case out.truncated:
			fmt.Fprintf(a.stderr, "(showing first %d rows)\n", len(out.rows))
		case n >= 0:
			fmt.Fprintf(a.stderr, "(%d rows)\n", n)
		}
	}
	return nil
}
