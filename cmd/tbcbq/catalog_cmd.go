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
	"strconv"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/spf13/cobra"
)

// patternFlag returns nil for an unset flag so that it matches
// everything; an explicitly empty flag matches only empty names.
func patternFlag(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func addCatalogFlags(cmd *cobra.Command, table, column bool) {
	cmd.Flags().String("catalog", "", "catalog (project) pattern")
	cmd.Flags().String("schema", "", "schema (dataset) pattern")
	if table {
		cmd.Flags().String("table", "", "table pattern")
	}
	if column {
		cmd.Flags().String("column", "", "column pattern")
	}
}

// withSession opens a session for the duration of fn.
func (a *app) withSession(cmd *cobra.Command, fn func(*session) error) (err error) {
	s, err := a.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func (a *app) schemasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(s *session) error {
				b, err := s.browser()
				if err != nil {
					return err
				}
				schemas, err := b.ListSchemas(cmd.Context(), patternFlag(cmd, "catalog"), patternFlag(cmd, "schema"))
				if err != nil {
					return err
				}
				rows := make([][]string, len(schemas))
				for i, sc := range schemas {
					rows[i] = []string{sc.Catalog, sc.Name, sc.Location}
				}
				return render(a.stdout, a.cfg.Output, schemas, []string{"CATALOG", "SCHEMA", "LOCATION"}, rows)
			})
		},
	}
	addCatalogFlags(cmd, false, false)
	return cmd
}

func (a *app) tablesCmd() *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List tables, views and other table-like objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(s *session) error {
				b, err := s.browser()
				if err != nil {
					return err
				}
				tables, err := b.ListTables(cmd.Context(),
					patternFlag(cmd, "catalog"), patternFlag(cmd, "schema"), patternFlag(cmd, "table"), kinds)
				if err != nil {
					return err
				}
				rows := make([][]string, len(tables))
				for i, t := range tables {
					rows[i] = []string{t.Catalog, t.Schema, t.Name, t.Kind, t.Remarks}
				}
				return render(a.stdout, a.cfg.Output, tables, []string{"CATALOG", "SCHEMA", "TABLE", "TYPE", "REMARKS"}, rows)
			})
		},
	}
	addCatalogFlags(cmd, true, false)
	cmd.Flags().StringSliceVar(&kinds, "type", nil, "restrict to these table types")
	return cmd
}

func (a *app) columnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "List columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(s *session) error {
				b, err := s.browser()
				if err != nil {
					return err
				}
				cols, err := b.ListColumns(cmd.Context(),
					patternFlag(cmd, "catalog"), patternFlag(cmd, "schema"), patternFlag(cmd, "table"), patternFlag(cmd, "column"))
				if err != nil {
					return err
				}
				return render(a.stdout, a.cfg.Output, cols,
					[]string{"CATALOG", "SCHEMA", "TABLE", "COLUMN", "ORDINAL", "TYPE", "NULLABLE"}, columnRows(cols))
			})
		},
	}
	addCatalogFlags(cmd, true, true)
	return cmd
}

func columnRows(cols []tbcbq.ColumnDescriptor) [][]string {
	rows := make([][]string, len(cols))
	for i, c := range cols {
		rows[i] = []string{
			c.Catalog, c.Schema, c.Table, c.Name,
			strconv.Itoa(int(c.Ordinal)), c.TypeName, strconv.FormatBool(c.Nullable),
		}
	}
	return rows
}

func (a *app) tableTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "table-types",
		Short: "List the table types the catalog knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(s *session) error {
				rdr, err := s.cnxn.GetTableTypes(cmd.Context())
				if err != nil {
					return err
				}
				defer rdr.Release()
				out := recordRows{}
				if err := out.consume(rdr); err != nil {
					return err
				}
				return render(a.stdout, a.cfg.Output, out.objects, out.headers, out.rows)
			})
		},
	}
}

// cacheStatsCmd lists tables the given number of times on one connection
// and reports how the metadata cache behaved.
func (a *app) cacheStatsCmd() *cobra.Command {
	var passes int
	cmd := &cobra.Command{
		Use:   "cache-stats",
		Short: "Warm the metadata cache and report its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passes < 1 {
				return fmt.Errorf("--passes must be at least 1")
			}
			return a.withSession(cmd, func(s *session) error {
				b, err := s.browser()
				if err != nil {
					return err
				}
				cc, ok := s.cnxn.(tbcbq.CatalogCache)
				if !ok {
					return fmt.Errorf("connection does not expose its metadata cache")
				}
				for i := 0; i < passes; i++ {
					tables, err := b.ListTables(cmd.Context(),
						patternFlag(cmd, "catalog"), patternFlag(cmd, "schema"), patternFlag(cmd, "table"), nil)
					if err != nil {
						return err
					}
					a.logger.Info("listed tables", "pass", i+1, "tables", len(tables))
				}
				stats := cc.CacheStats()
				rows := [][]string{{
					strconv.FormatInt(stats.Hits, 10),
					strconv.FormatInt(stats.Misses, 10),
					strconv.FormatFloat(stats.HitRatePercent, 'f', 1, 64),
					strconv.Itoa(stats.Entries),
				}}
				return render(a.stdout, a.cfg.Output, stats, []string{"HITS", "MISSES", "HIT RATE %", "ENTRIES"}, rows)
			})
		},
	}
	addCatalogFlags(cmd, true, false)
	cmd.Flags().IntVar(&passes, "passes", 2, "number of listing passes")
	return cmd
}
