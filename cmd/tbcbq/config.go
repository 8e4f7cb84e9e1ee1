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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/bigquery"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/viper"
)

// config is the CLI view of the driver options. Keys are read from
// tbcbq.yaml, TBCBQ_* environment variables and command-line flags, in
// increasing order of precedence.
type config struct {
	Project            string   `mapstructure:"project"`
	Dataset            string   `mapstructure:"dataset"`
	Location           string   `mapstructure:"location"`
	AdditionalProjects []string `mapstructure:"additional_projects"`

	Auth     authConfig     `mapstructure:"auth"`
	Metadata metadataConfig `mapstructure:"metadata"`
	Query    queryConfig    `mapstructure:"query"`
	Log      logConfig      `mapstructure:"log"`

	Output string `mapstructure:"output"`
}

type authConfig struct {
	Type        string `mapstructure:"type"`
	Credentials string `mapstructure:"credentials"`
	AccessToken string `mapstructure:"access_token"`
	// ImpersonateServiceAccount, when set, mints tokens for this
	// principal from the base credentials.
	ImpersonateServiceAccount string `mapstructure:"impersonate_service_account"`
}

type metadataConfig struct {
	CacheEnabled      bool    `mapstructure:"cache_enabled"`
	CacheTTLSeconds   int     `mapstructure:"cache_ttl_seconds"`
	LazyLoad          bool    `mapstructure:"lazy_load"`
	MaxConcurrency    int     `mapstructure:"max_concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type queryConfig struct {
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
	Priority       string  `mapstructure:"priority"`
	DryRun         bool    `mapstructure:"dry_run"`
	MaxRows        int     `mapstructure:"max_rows"`
}

type logConfig struct {
	Level string `mapstructure:"level"`
	// File, when set, receives a JSON copy of every log record.
	File string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.type", bigquery.OptionValueAuthTypeDefault)
	v.SetDefault("metadata.cache_enabled", true)
	v.SetDefault("metadata.cache_ttl_seconds", 300)
	v.SetDefault("metadata.max_concurrency", 16)
	v.SetDefault("query.max_rows", 100)
	v.SetDefault("log.level", "warn")
	v.SetDefault("output", "table")
}

// loadConfig resolves the configuration held by v. A missing config file
// is not an error; a malformed one is.
func loadConfig(v *viper.Viper, configFile string) (*config, error) {
	setDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tbcbq")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/tbcbq")
		}
	}
	v.SetEnvPrefix("TBCBQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, config{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.validate()
}

// bindEnvs registers every key of cfg with v so that environment
// variables are seen by Unmarshal even when no config file sets them.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, reflect.Zero(f.Type).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

func (c *config) validate() error {
	if c.Project == "" {
		return fmt.Errorf("a project is required: set --project, TBCBQ_PROJECT or 'project' in tbcbq.yaml")
	}
	switch c.Output {
	case "", "table", "json":
	default:
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", c.Output)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// driverOptions renders c as the option map understood by the BigQuery
// driver. Zero values are omitted so that the driver defaults apply.
func (c *config) driverOptions() map[string]string {
	opts := map[string]string{
		bigquery.OptionStringProjectID:          c.Project,
		bigquery.OptionBoolMetadataCacheEnabled: strconv.FormatBool(c.Metadata.CacheEnabled),
		bigquery.OptionBoolMetadataLazyLoad:     strconv.FormatBool(c.Metadata.LazyLoad),
	}
	set := func(key, value string) {
		if value != "" {
			opts[key] = value
		}
	}
	set(bigquery.OptionStringDatasetID, c.Dataset)
	set(bigquery.OptionStringLocation, c.Location)
	set(bigquery.OptionStringAdditionalProjects, strings.Join(c.AdditionalProjects, ","))
	set(bigquery.OptionStringAuthType, c.Auth.Type)
	set(bigquery.OptionStringAuthCredentials, c.Auth.Credentials)
	set(bigquery.OptionStringAuthAccessToken, c.Auth.AccessToken)
	set(bigquery.OptionStringImpersonateTargetPrincipal, c.Auth.ImpersonateServiceAccount)

	if c.Metadata.CacheTTLSeconds > 0 {
		opts[bigquery.OptionIntMetadataCacheTTLSeconds] = strconv.Itoa(c.Metadata.CacheTTLSeconds)
	}
	if c.Metadata.MaxConcurrency > 0 {
		opts[bigquery.OptionIntMetadataMaxConcurrency] = strconv.Itoa(c.Metadata.MaxConcurrency)
	}
	if c.Metadata.RequestsPerSecond > 0 {
		opts[bigquery.OptionDoubleMetadataRequestsPerSecond] = strconv.FormatFloat(c.Metadata.RequestsPerSecond, 'f', -1, 64)
	}
	if c.Query.TimeoutSeconds > 0 {
		opts[bigquery.OptionDoubleQueryDefaultTimeoutSeconds] = strconv.FormatFloat(c.Query.TimeoutSeconds, 'f', -1, 64)
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newLogger builds the CLI logger: text records go to stderr and, when a
// log file is configured, a JSON copy goes to that file.
func newLogger(cfg logConfig, stderr io.Writer) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	text := slog.NewTextHandler(stderr, opts)
	if cfg.File == "" {
		return slog.New(text), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := slog.New(slogmulti.Fanout(text, slog.NewJSONHandler(f, opts)))
	return logger, f.Close, nil
}
