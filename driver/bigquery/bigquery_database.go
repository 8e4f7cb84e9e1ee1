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
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/cache"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/catalog"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/fanout"
	"golang.org/x/time/rate"
)

type databaseImpl struct {
	driverbase.DatabaseImplBase
	drv *driverImpl

	projectID   string
	datasetID   string
	location    string
	authType    string
	credentials string
	accessToken string
	authScopes  string

	impersonateTargetPrincipal string
	impersonateDelegates       string
	impersonateScopes          string
	impersonateLifetime        time.Duration

	additionalProjects []string

	cacheEnabled      bool
	cacheTTL          time.Duration
	lazyLoad          bool
	maxConcurrency    int
	requestsPerSecond float64
	defaultTimeout    time.Duration
	resultBufferSize  int
}

func newDatabaseImpl(base driverbase.DatabaseImplBase, drv *driverImpl) *databaseImpl {
	return &databaseImpl{
		DatabaseImplBase: base,
		drv:              drv,
		authType:         OptionValueAuthTypeDefault,
		cacheEnabled:     true,
		cacheTTL:         defaultCacheTTLSeconds * time.Second,
		maxConcurrency:   defaultMaxConcurrency,
		resultBufferSize: defaultResultBufferSize,
	}
}

func (d *databaseImpl) clientConfig() clientConfig {
	return clientConfig{
		ProjectID:   d.projectID,
		Location:    d.location,
		AuthType:    d.authType,
		Credentials: d.credentials,
		AccessToken: d.accessToken,
		Scopes:      splitList(d.authScopes),
		Impersonate: impersonateConfig{
			TargetPrincipal: d.impersonateTargetPrincipal,
			Delegates:       splitList(d.impersonateDelegates),
			Scopes:          splitList(d.impersonateScopes),
			Lifetime:        d.impersonateLifetime,
		},
		Alloc:            d.Alloc,
		ResultBufferSize: d.resultBufferSize,
		Logger:           d.Logger,
		ErrorHelper:      d.ErrorHelper,
	}
}

// fanoutOptions bounds the remote calls a single listing may issue.
func (d *databaseImpl) fanoutOptions() fanout.Options {
	opts := fanout.Options{Limit: d.maxConcurrency}
	if d.requestsPerSecond > 0 {
		burst := max(1, int(d.requestsPerSecond))
		opts.Limiter = rate.NewLimiter(rate.Limit(d.requestsPerSecond), burst)
	}
	return opts
}

// metadataCache returns the cache shared by every connection to this
// project with the same TTL, or nil when caching is off.
func (d *databaseImpl) metadataCache() *cache.Cache {
	if !d.cacheEnabled || d.cacheTTL <= 0 {
		return nil
	}
	return d.drv.registry.Cache(d.projectID, d.cacheTTL)
}

func (d *databaseImpl) Open(ctx context.Context) (tbcbq.Connection, error) {
	if d.projectID == "" {
		return nil, d.ErrorHelper.Errorf(tbcbq.StatusInvalidArgument, "%s is required", OptionStringProjectID)
	}

	client, err := d.drv.newClient(ctx, d.clientConfig())
	if err != nil {
		return nil, err
	}

	metadata := d.metadataCache()
	conn := &connectionImpl{
		ConnectionImplBase: driverbase.NewConnectionImplBase(&d.DatabaseImplBase),
		db:                 d,
		client:             client,
		cache:              metadata,
		catalog:            d.projectID,
		dbSchema:           d.datasetID,
		defaultTimeout:     d.defaultTimeout,
		statements:         make(map[*statement]struct{}),
	}
	conn.catalogs = catalog.New(catalog.Config{
		Client:        client,
		Cache:         metadata,
		LazyLoad:      d.lazyLoad,
		ExtraCatalogs: d.additionalProjects,
		Fanout:        d.fanoutOptions(),
		Logger:        d.Logger,
		Tracer:        d.Tracer,
	})

	return driverbase.NewConnectionBuilder(conn).
		WithCurrentNamespacer(conn).
		WithTableTypeLister(conn).
		WithCatalogBrowser(conn).
		WithCatalogCache(conn).
		Connection(), nil
}

func (d *databaseImpl) Close() error {
	return nil
}

func (d *databaseImpl) GetOption(key string) (string, error) {
	switch key {
	case OptionStringProjectID:
		return d.projectID, nil
	case OptionStringDatasetID:
		return d.datasetID, nil
	case OptionStringLocation:
		return d.location, nil
	case OptionStringAuthType:
		return d.authType, nil
	case OptionStringAuthCredentials:
		return d.credentials, nil
	case OptionStringAuthAccessToken:
		return d.accessToken, nil
	case OptionStringAuthScopes:
		return d.authScopes, nil
	case OptionStringImpersonateTargetPrincipal:
		return d.impersonateTargetPrincipal, nil
	case OptionStringImpersonateDelegates:
		return d.impersonateDelegates, nil
	case OptionStringImpersonateScopes:
		return d.impersonateScopes, nil
	case OptionIntImpersonateLifetime:
		return strconv.FormatInt(int64(d.impersonateLifetime/time.Second), 10), nil
	case OptionStringAdditionalProjects:
		return strings.Join(d.additionalProjects, ","), nil
	case OptionBoolMetadataCacheEnabled:
		return formatBool(d.cacheEnabled), nil
	case OptionIntMetadataCacheTTLSeconds:
		return strconv.FormatInt(int64(d.cacheTTL/time.Second), 10), nil
	case OptionBoolMetadataLazyLoad:
		return formatBool(d.lazyLoad), nil
	case OptionIntMetadataMaxConcurrency:
		return strconv.Itoa(d.maxConcurrency), nil
	case OptionDoubleMetadataRequestsPerSecond:
		return strconv.FormatFloat(d.requestsPerSecond, 'f', -1, 64), nil
	case OptionDoubleQueryDefaultTimeoutSeconds:
		return strconv.FormatFloat(d.defaultTimeout.Seconds(), 'f', -1, 64), nil
	case OptionIntResultBufferSize:
		return strconv.Itoa(d.resultBufferSize), nil
	}
	return d.DatabaseImplBase.GetOption(key)
}

func (d *databaseImpl) GetOptionInt(key string) (int64, error) {
	switch key {
	case OptionIntMetadataCacheTTLSeconds:
		return int64(d.cacheTTL / time.Second), nil
	case OptionIntMetadataMaxConcurrency:
		return int64(d.maxConcurrency), nil
	case OptionIntResultBufferSize:
		return int64(d.resultBufferSize), nil
	case OptionIntImpersonateLifetime:
		return int64(d.impersonateLifetime / time.Second), nil
	}
	return d.DatabaseImplBase.GetOptionInt(key)
}

func (d *databaseImpl) GetOptionDouble(key string) (float64, error) {
	switch key {
	case OptionDoubleMetadataRequestsPerSecond:
		return d.requestsPerSecond, nil
	case OptionDoubleQueryDefaultTimeoutSeconds:
		return d.defaultTimeout.Seconds(), nil
	}
	return d.DatabaseImplBase.GetOptionDouble(key)
}

func (d *databaseImpl) SetOptions(options map[string]string) error {
	for k, v := range options {
		if err := d.SetOption(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (d *databaseImpl) SetOption(key string, value string) error {
	var err error
	switch key {
	case OptionStringProjectID:
		d.projectID = strings.TrimSpace(value)
	case OptionStringDatasetID:
		d.datasetID = strings.TrimSpace(value)
	case OptionStringLocation:
		d.location = strings.TrimSpace(value)
	case OptionStringAuthType:
		switch value {
		case OptionValueAuthTypeDefault,
			OptionValueAuthTypeJSONCredentialFile,
			OptionValueAuthTypeJSONCredentialString,
			OptionValueAuthTypeAccessToken:
			d.authType = value
		default:
			return d.ErrorHelper.Errorf(tbcbq.StatusInvalidArgument, "unknown auth type '%s'", value)
		}
	case OptionStringAuthCredentials:
		d.credentials = value
	case OptionStringAuthAccessToken:
		d.accessToken = value
	case OptionStringAuthScopes:
		d.authScopes = value
	case OptionStringImpersonateTargetPrincipal:
		d.impersonateTargetPrincipal = strings.TrimSpace(value)
	case OptionStringImpersonateDelegates:
		d.impersonateDelegates = value
	case OptionStringImpersonateScopes:
		d.impersonateScopes = value
	case OptionIntImpersonateLifetime:
		var n int64
		if n, err = parseInt(d.ErrorHelper, key, value, 0); err == nil {
			d.impersonateLifetime = time.Duration(n) * time.Second
		}
	case OptionStringAdditionalProjects:
		d.additionalProjects = splitList(value)
	case OptionBoolMetadataCacheEnabled:
		d.cacheEnabled, err = parseBool(d.ErrorHelper, key, value)
	case OptionIntMetadataCacheTTLSeconds:
		var n int64
		if n, err = parseInt(d.ErrorHelper, key, value, 0); err == nil {
			d.cacheTTL = time.Duration(n) * time.Second
		}
	case OptionBoolMetadataLazyLoad:
		d.lazyLoad, err = parseBool(d.ErrorHelper, key, value)
	case OptionIntMetadataMaxConcurrency:
		var n int64
		if n, err = parseInt(d.ErrorHelper, key, value, 1); err == nil {
			d.maxConcurrency = int(n)
		}
	case OptionDoubleMetadataRequestsPerSecond:
		var f float64
		if f, err = strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return d.ErrorHelper.Errorf(tbcbq.StatusInvalidArgument, "invalid value for %s: %s", key, value)
		}
		return d.SetOptionDouble(key, f)
	case OptionDoubleQueryDefaultTimeoutSeconds:
		var timeout time.Duration
		if timeout, err = parseSeconds(d.ErrorHelper, key, value); err == nil {
			d.defaultTimeout = timeout
		}
	case OptionIntResultBufferSize:
		var n int64
		if n, err = parseInt(d.ErrorHelper, key, value, 1); err == nil {
			d.resultBufferSize = int(n)
		}
	default:
		return d.DatabaseImplBase.SetOption(key, value)
	}
	return err
}

func (d *databaseImpl) SetOptionInt(key string, value int64) error {
	switch key {
	case OptionIntMetadataCacheTTLSeconds, OptionIntMetadataMaxConcurrency, OptionIntResultBufferSize, OptionIntImpersonateLifetime:
		return d.SetOption(key, strconv.FormatInt(value, 10))
	}
	return d.DatabaseImplBase.SetOptionInt(key, value)
}

func (d *databaseImpl) SetOptionDouble(key string, value float64) error {
	switch key {
	case OptionDoubleMetadataRequestsPerSecond:
		rps, err := parseRate(d.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		d.requestsPerSecond = rps
		return nil
	case OptionDoubleQueryDefaultTimeoutSeconds:
		timeout, err := secondsToDuration(d.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		d.defaultTimeout = timeout
		return nil
	}
	return d.DatabaseImplBase.SetOptionDouble(key, value)
}
