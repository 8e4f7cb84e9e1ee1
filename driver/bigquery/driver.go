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

// Package bigquery is a tbcbq driver for Google BigQuery.
//
// Catalog metadata is served through a process-wide TTL cache shared by
// every connection to the same project, and enumeration fans out over
// datasets and tables concurrently. Queries run as client-identified
// jobs that can be timed out or cancelled from another goroutine.
package bigquery

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/cache"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/bluele/gcache"
	"golang.org/x/exp/maps"
)

const (
	OptionStringProjectID          = "bq.project_id"
	OptionStringDatasetID          = "bq.dataset_id"
	OptionStringLocation           = "bq.location"
	OptionStringAuthType           = "bq.auth_type"
	OptionStringAuthCredentials    = "bq.auth_credentials"
	OptionStringAuthAccessToken    = "bq.auth_access_token"
	OptionStringAuthScopes         = "bq.auth_scopes"
	OptionStringAdditionalProjects = "bq.additional_projects"

	OptionStringImpersonateTargetPrincipal = "bq.impersonate.target_principal"
	OptionStringImpersonateDelegates       = "bq.impersonate.delegates"
	OptionStringImpersonateScopes          = "bq.impersonate.scopes"
	OptionIntImpersonateLifetime           = "bq.impersonate.lifetime_seconds"

	OptionBoolMetadataCacheEnabled         = "bq.metadata.cache_enabled"
	OptionIntMetadataCacheTTLSeconds       = "bq.metadata.cache_ttl_seconds"
	OptionBoolMetadataLazyLoad             = "bq.metadata.lazy_load"
	OptionIntMetadataMaxConcurrency        = "bq.metadata.max_concurrency"
	OptionDoubleMetadataRequestsPerSecond  = "bq.metadata.requests_per_second"
	OptionDoubleQueryDefaultTimeoutSeconds = "bq.query.default_timeout_seconds"
	OptionIntResultBufferSize              = "bq.result_buffer_size"

	// Statement options.
	OptionDoubleQueryTimeoutSeconds   = "bq.query.timeout_seconds"
	OptionStringQueryDefaultProjectID = "bq.query.default_project_id"
	OptionStringQueryDefaultDatasetID = "bq.query.default_dataset_id"
	OptionStringQueryDestinationTable = "bq.query.destination_table"
	OptionStringQueryPriority         = "bq.query.priority"
	OptionStringQueryLabels           = "bq.query.labels"
	OptionBoolQueryUseLegacySQL       = "bq.query.use_legacy_sql"
	OptionBoolQueryDryRun             = "bq.query.dry_run"
	OptionBoolQueryDisableQueryCache  = "bq.query.disable_query_cache"
	OptionIntQueryMaxBytesBilled      = "bq.query.max_bytes_billed"
	OptionIntQueryJobTimeout          = "bq.query.job_timeout_ms"

	OptionValueAuthTypeDefault              = "default"
	OptionValueAuthTypeJSONCredentialFile   = "json_credential_file"
	OptionValueAuthTypeJSONCredentialString = "json_credential_string"
	OptionValueAuthTypeAccessToken          = "access_token"

	OptionValueQueryPriorityBatch       = "BATCH"
	OptionValueQueryPriorityInteractive = "INTERACTIVE"
)

const (
	defaultCacheTTLSeconds  = 300
	defaultMaxConcurrency   = 16
	defaultResultBufferSize = 200
)

var (
	infoVendorVersion string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			switch {
			case dep.Path == "cloud.google.com/go/bigquery":
				infoVendorVersion = dep.Version
			}
		}
	}
}

// CacheRegistry holds the metadata caches shared by connections. Caches
// are keyed by project and TTL.
type CacheRegistry = cache.Registry

// NewCacheRegistry returns an empty registry on the wall clock.
func NewCacheRegistry() *CacheRegistry {
	return cache.NewRegistry(gcache.NewRealClock())
}

var defaultRegistry = sync.OnceValue(NewCacheRegistry)

type driverImpl struct {
	driverbase.DriverImplBase

	registry  *cache.Registry
	newClient clientFactory
}

// NewDriver creates a new BigQuery driver using the given Arrow allocator.
// Every driver created this way shares one process-wide metadata cache
// registry.
func NewDriver(alloc memory.Allocator) tbcbq.Driver {
	return newDriver(alloc, defaultRegistry(), newBigQueryClient)
}

// NewDriverWithRegistry creates a driver whose connections share the
// caches of registry instead of the process-wide one.
func NewDriverWithRegistry(alloc memory.Allocator, registry *CacheRegistry) tbcbq.Driver {
	return newDriver(alloc, registry, newBigQueryClient)
}

func newDriver(alloc memory.Allocator, registry *cache.Registry, newClient clientFactory) driverbase.Driver {
	info := driverbase.DefaultDriverInfo("BigQuery")
	if infoVendorVersion != "" {
		if err := info.RegisterInfoCode(driverbase.InfoVendorVersion, infoVendorVersion); err != nil {
			panic(err)
		}
	}
	return driverbase.NewDriver(&driverImpl{
		DriverImplBase: driverbase.NewDriverImplBase(info, alloc),
		registry:       registry,
		newClient:      newClient,
	})
}

func (d *driverImpl) NewDatabase(opts map[string]string) (tbcbq.Database, error) {
	return d.NewDatabaseWithContext(context.Background(), opts)
}

func (d *driverImpl) NewDatabaseWithContext(ctx context.Context, opts map[string]string) (tbcbq.Database, error) {
	opts = maps.Clone(opts)
	dbBase, err := driverbase.NewDatabaseImplBase(ctx, &d.DriverImplBase)
	if err != nil {
		return nil, err
	}
	db := newDatabaseImpl(dbBase, d)
	if err := db.SetOptions(opts); err != nil {
		return nil, err
	}

	return driverbase.NewDatabase(db), nil
}
