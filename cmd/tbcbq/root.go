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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/bigquery"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// app carries the state shared by every subcommand once the persistent
// pre-run hook has resolved the configuration.
type app struct {
	v        *viper.Viper
	cfg      *config
	logger   *slog.Logger
	closeLog func() error

	stdout io.Writer
	stderr io.Writer

	newDriver func() tbcbq.Driver
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
		newDriver: func() tbcbq.Driver {
			return bigquery.NewDriver(memory.DefaultAllocator)
		},
	}
}

func execute(ctx context.Context, args []string) int {
	a := newApp(os.Stdout, os.Stderr)
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "tbcbq",
		Short:         "Browse BigQuery metadata and run queries",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.v, configFile)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg.Log, a.stderr)
			if err != nil {
				return err
			}
			a.cfg, a.logger, a.closeLog = cfg, logger, closeLog
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./tbcbq.yaml or ~/.config/tbcbq/tbcbq.yaml)")
	flags.String("project", "", "BigQuery project ID")
	flags.String("dataset", "", "default dataset")
	flags.String("location", "", "job location, e.g. US or europe-west1")
	flags.StringSlice("additional-projects", nil, "extra projects listed as catalogs")
	flags.String("auth-type", bigquery.OptionValueAuthTypeDefault, "default, json_credential_file, json_credential_string or access_token")
	flags.String("credentials", "", "credential file path or JSON, depending on --auth-type")
	flags.String("impersonate-service-account", "", "service account to impersonate")
	flags.Bool("no-cache", false, "disable the metadata cache")
	flags.Int("cache-ttl", 300, "metadata cache TTL in seconds")
	flags.Bool("lazy", false, "skip column enumeration when no column pattern is given")
	flags.Int("max-concurrency", 16, "maximum concurrent metadata requests per level")
	flags.Float64("rps", 0, "metadata request rate limit per second (0 for none)")
	flags.String("log-level", "warn", "debug, info, warn or error")
	flags.String("log-file", "", "also write JSON logs to this file")
	flags.StringP("output", "o", "table", "output format (table, json)")

	for key, flag := range map[string]string{
		"project":                          "project",
		"dataset":                          "dataset",
		"location":                         "location",
		"additional_projects":              "additional-projects",
		"auth.type":                        "auth-type",
		"auth.credentials":                 "credentials",
		"auth.impersonate_service_account": "impersonate-service-account",
		"metadata.cache_ttl_seconds":       "cache-ttl",
		"metadata.lazy_load":               "lazy",
		"metadata.max_concurrency":         "max-concurrency",
		"metadata.requests_per_second":     "rps",
		"log.level":                        "log-level",
		"log.file":                         "log-file",
		"output":                           "output",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}
	_ = a.v.BindPFlag("no_cache", flags.Lookup("no-cache"))

	root.AddCommand(
		a.schemasCmd(),
		a.tablesCmd(),
		a.columnsCmd(),
		a.tableTypesCmd(),
		a.cacheStatsCmd(),
		a.queryCmd(),
	)
	return root
}

type session struct {
	cnxn  tbcbq.Connection
	close func() error
}

// connect opens a database and connection from the resolved config. The
// returned session must be closed by the caller.
func (a *app) connect(ctx context.Context) (*session, error) {
	opts := a.cfg.driverOptions()
	if a.v.GetBool("no_cache") {
		opts[bigquery.OptionBoolMetadataCacheEnabled] = "false"
	}

	drv := a.newDriver()
	var (
		db  tbcbq.Database
		err error
	)
	if d, ok := drv.(tbcbq.DriverWithContext); ok {
		db, err = d.NewDatabaseWithContext(ctx, opts)
	} else {
		db, err = drv.NewDatabase(opts)
	}
	if err != nil {
		return nil, err
	}
	if l, ok := db.(tbcbq.DatabaseLogging); ok {
		l.SetLogger(a.logger)
	}

	cnxn, err := db.Open(ctx)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			a.logger.Warn("closing database", "error", cerr)
		}
		return nil, err
	}
	a.logger.Debug("connected", "project", a.cfg.Project, "options", len(opts))
	return &session{
		cnxn: cnxn,
		close: func() error {
			var merr *multierror.Error
			merr = multierror.Append(merr, cnxn.Close())
			merr = multierror.Append(merr, db.Close())
			return merr.ErrorOrNil()
		},
	}, nil
}

func (s *session) browser() (tbcbq.CatalogBrowser, error) {
	b, ok := s.cnxn.(tbcbq.CatalogBrowser)
	if !ok {
		return nil, fmt.Errorf("connection does not support catalog browsing")
	}
	return b, nil
}
