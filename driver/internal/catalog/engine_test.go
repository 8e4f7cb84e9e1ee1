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

package catalog_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/cache"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/catalog"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/fanout"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/remote/remotetest"
	"github.com/bluele/gcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const project = "proj"

func ptr(s string) *string { return &s }

type EngineTests struct {
	suite.Suite

	ctx    context.Context
	remote *remotetest.Catalog
	clock  gcache.FakeClock
	cache  *cache.Cache
}

func (s *EngineTests) SetupTest() {
	s.ctx = context.Background()
	s.remote = remotetest.NewCatalog(project)
	for d := 0; d < 5; d++ {
		for t := 0; t < 3; t++ {
			s.remote.AddTable(project, fmt.Sprintf("ds%d", d), fmt.Sprintf("t%d", t), "TABLE", "id", "name")
		}
	}
	s.clock = gcache.NewFakeClock()
	s.cache = cache.New(project, time.Minute, s.clock)
}

func (s *EngineTests) engine(mod func(*catalog.Config)) *catalog.Engine {
	cfg := catalog.Config{Client: s.remote, Cache: s.cache}
	if mod != nil {
		mod(&cfg)
	}
	return catalog.New(cfg)
}

func (s *EngineTests) TestListTablesFanOutTotals() {
	tables, err := s.engine(nil).ListTables(s.ctx, nil, nil, nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 15)

	// one listing of datasets, one entity listing per dataset
	s.EqualValues(1, s.remote.ContainerCalls())
	s.EqualValues(5, s.remote.EntityCalls())

	// sorted by schema then name
	s.Equal("ds0", tables[0].Schema)
	s.Equal("t0", tables[0].Name)
	s.Equal("ds4", tables[14].Schema)
	s.Equal("t2", tables[14].Name)

	var sequential []tbcbq.TableDescriptor
	for d := 0; d < 5; d++ {
		for t := 0; t < 3; t++ {
			sequential = append(sequential, tbcbq.TableDescriptor{
				Catalog: project, Schema: fmt.Sprintf("ds%d", d), Name: fmt.Sprintf("t%d", t), Kind: "TABLE",
			})
		}
	}
	s.ElementsMatch(sequential, tables)
}

func (s *EngineTests) TestListTablesFilters() {
	e := s.engine(nil)
	s.remote.AddTable(project, "ds1", "v_orders", "VIEW", "id")

	tables, err := e.ListTables(s.ctx, ptr(project), ptr("ds1"), ptr("t_"), nil)
	s.Require().NoError(err)
	s.Len(tables, 3)
	for _, tbl := range tables {
		s.Equal("ds1", tbl.Schema)
	}

	views, err := e.ListTables(s.ctx, nil, ptr("ds%"), nil, []string{"view"})
	s.Require().NoError(err)
	s.Require().Len(views, 1)
	s.Equal("v_orders", views[0].Name)

	none, err := e.ListTables(s.ctx, ptr("other-project"), nil, nil, nil)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *EngineTests) TestLazyModeBothPatternsNil() {
	e := s.engine(func(c *catalog.Config) { c.LazyLoad = true })

	tables, err := e.ListTables(s.ctx, nil, nil, nil, nil)
	s.Require().NoError(err)
	s.NotNil(tables)
	s.Empty(tables)

	columns, err := e.ListColumns(s.ctx, nil, nil, nil, ptr("%"))
	s.Require().NoError(err)
	s.Empty(columns)

	s.Zero(s.remote.Calls())
}

func (s *EngineTests) TestLazyModeSchemaPatternEnumerates() {
	e := s.engine(func(c *catalog.Config) { c.LazyLoad = true })

	tables, err := e.ListTables(s.ctx, nil, ptr("ds2"), nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 3)
	s.NotZero(s.remote.Calls())
}

func (s *EngineTests) TestLazyModeTablePatternEnumerates() {
	e := s.engine(func(c *catalog.Config) { c.LazyLoad = true })

	tables, err := e.ListTables(s.ctx, nil, nil, ptr("t1"), nil)
	s.Require().NoError(err)
	s.Len(tables, 5)
}

func (s *EngineTests) TestLazyModeOffEnumeratesWithoutPatterns() {
	tables, err := s.engine(nil).ListTables(s.ctx, nil, nil, nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 15)
}

func (s *EngineTests) TestCacheHitSkipsRemote() {
	e := s.engine(nil)

	first, err := e.ListTables(s.ctx, nil, ptr("ds%"), nil, nil)
	s.Require().NoError(err)
	calls := s.remote.Calls()

	second, err := e.ListTables(s.ctx, nil, ptr("ds%"), nil, nil)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(calls, s.remote.Calls())

	stats := s.cache.Stats()
	s.EqualValues(1, stats.Hits)
	s.EqualValues(1, stats.Misses)
}

func (s *EngineTests) TestDifferentPatternsAreDifferentEntries() {
	e := s.engine(nil)

	_, err := e.ListTables(s.ctx, nil, ptr("ds1"), nil, nil)
	s.Require().NoError(err)
	calls := s.remote.Calls()

	_, err = e.ListTables(s.ctx, nil, ptr("ds2"), nil, nil)
	s.Require().NoError(err)
	s.Greater(s.remote.Calls(), calls)
	s.Equal(2, s.cache.Len())
}

func (s *EngineTests) TestCacheExpiryRefetches() {
	e := s.engine(nil)

	_, err := e.ListTables(s.ctx, nil, ptr("ds1"), nil, nil)
	s.Require().NoError(err)
	calls := s.remote.Calls()

	s.clock.Advance(time.Minute)
	_, err = e.ListTables(s.ctx, nil, ptr("ds1"), nil, nil)
	s.Require().NoError(err)
	s.Greater(s.remote.Calls(), calls)
}

func (s *EngineTests) TestNoCache() {
	e := catalog.New(catalog.Config{Client: s.remote})

	_, err := e.ListTables(s.ctx, nil, ptr("ds1"), nil, nil)
	s.Require().NoError(err)
	calls := s.remote.Calls()
	_, err = e.ListTables(s.ctx, nil, ptr("ds1"), nil, nil)
	s.Require().NoError(err)
	s.Equal(2*calls, s.remote.Calls())
	s.Zero(e.InvalidateListings())
}

func (s *EngineTests) TestNotFoundDatasetIsSkipped() {
	s.remote.FailEntities(project, "ds3", remotetest.NotFound("ds3"))

	tables, err := s.engine(nil).ListTables(s.ctx, nil, nil, nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 12)
	for _, tbl := range tables {
		s.NotEqual("ds3", tbl.Schema)
	}
}

func (s *EngineTests) TestCommunicationErrorAborts() {
	s.remote.FailEntities(project, "ds3", remotetest.Unavailable())

	tables, err := s.engine(nil).ListTables(s.ctx, nil, nil, nil, nil)
	s.Require().Error(err)
	s.Nil(tables)
	s.True(tbcbq.IsStatus(err, tbcbq.StatusIO))
	// a failed enumeration is not cached
	s.Zero(s.cache.Len())
}

func (s *EngineTests) TestContainerListingErrorAborts() {
	s.remote.FailContainers(project, tbcbq.Error{Code: tbcbq.StatusUnauthenticated, Msg: "token expired"})

	_, err := s.engine(nil).ListSchemas(s.ctx, nil, nil)
	s.Require().Error(err)
	s.True(tbcbq.IsStatus(err, tbcbq.StatusUnauthenticated))
}

func (s *EngineTests) TestListColumnsNestedFanOut() {
	columns, err := s.engine(nil).ListColumns(s.ctx, nil, ptr("ds%"), nil, nil)
	s.Require().NoError(err)
	s.Len(columns, 30)
	s.EqualValues(15, s.remote.DescribeCalls())

	s.Equal("id", columns[0].Name)
	s.EqualValues(1, columns[0].Ordinal)
	s.Equal("name", columns[1].Name)
	s.EqualValues(2, columns[1].Ordinal)
	s.Equal("STRING", columns[0].TypeName)
}

func (s *EngineTests) TestListColumnsFilters() {
	columns, err := s.engine(nil).ListColumns(s.ctx, nil, ptr("ds0"), ptr("t1"), ptr("na%"))
	s.Require().NoError(err)
	s.Require().Len(columns, 1)
	s.Equal(tbcbq.ColumnDescriptor{
		Catalog:      project,
		Schema:       "ds0",
		Table:        "t1",
		Name:         "name",
		Ordinal:      2,
		TypeName:     "STRING",
		XdbcDataType: 12,
		Nullable:     true,
	}, columns[0])
	s.EqualValues(1, s.remote.DescribeCalls())
}

func (s *EngineTests) TestListColumnsVanishedTableIsSkipped() {
	s.remote.FailDescribe(project, "ds0", "t1", remotetest.NotFound("t1"))

	columns, err := s.engine(nil).ListColumns(s.ctx, nil, ptr("ds0"), nil, nil)
	s.Require().NoError(err)
	s.Len(columns, 4)
}

func (s *EngineTests) TestListColumnsDescribeErrorAborts() {
	s.remote.FailDescribe(project, "ds0", "t1", remotetest.Unavailable())

	_, err := s.engine(nil).ListColumns(s.ctx, nil, ptr("ds0"), nil, nil)
	s.Require().Error(err)
}

func (s *EngineTests) TestListSchemasAndCatalogs() {
	s.remote.AddTable("shared-data", "public", "events", "TABLE", "ts")
	e := s.engine(func(c *catalog.Config) { c.ExtraCatalogs = []string{"shared-data", " ", project} })

	catalogs, err := e.ListCatalogs(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal([]string{project, "shared-data"}, catalogs)

	catalogs, err = e.ListCatalogs(s.ctx, ptr("shared%"))
	s.Require().NoError(err)
	s.Equal([]string{"shared-data"}, catalogs)

	schemas, err := e.ListSchemas(s.ctx, nil, nil)
	s.Require().NoError(err)
	s.Len(schemas, 6)
	s.Equal(tbcbq.SchemaDescriptor{Catalog: project, Name: "ds0", Location: "US"}, schemas[0])
	s.Equal(tbcbq.SchemaDescriptor{Catalog: "shared-data", Name: "public", Location: "US"}, schemas[5])

	tables, err := e.ListTables(s.ctx, ptr("shared-data"), nil, nil, nil)
	s.Require().NoError(err)
	s.Require().Len(tables, 1)
	s.Equal("events", tables[0].Name)
}

func (s *EngineTests) TestInvalidateListings() {
	e := s.engine(nil)

	_, err := e.ListTables(s.ctx, ptr(project), ptr("ds1"), nil, nil)
	s.Require().NoError(err)
	_, err = e.ListTables(s.ctx, ptr("pr_j"), ptr("ds1"), nil, nil)
	s.Require().NoError(err)
	_, err = e.ListSchemas(s.ctx, ptr("elsewhere"), nil)
	s.Require().NoError(err)
	s.cache.Put(cache.Entry{Key: "custom:entry"})
	s.Equal(4, s.cache.Len())

	s.Equal(3, e.InvalidateListings())
	s.Equal(1, s.cache.Len())
}

func (s *EngineTests) TestCacheKeyFollowsResolvedCatalogs() {
	s.remote.AddTable("shared-data", "public", "events", "TABLE", "ts")
	narrow := s.engine(nil)
	wide := s.engine(func(c *catalog.Config) { c.ExtraCatalogs = []string{"shared-data"} })

	tables, err := narrow.ListTables(s.ctx, nil, ptr("%"), nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 15)

	tables, err = wide.ListTables(s.ctx, nil, ptr("%"), nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 16)

	tables, err = wide.ListTables(s.ctx, ptr("%data"), ptr("%"), nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 1)

	// a literal catalog means the same thing to every engine
	_, err = narrow.ListTables(s.ctx, ptr(project), ptr("%"), nil, nil)
	s.Require().NoError(err)
	calls := s.remote.Calls()
	tables, err = wide.ListTables(s.ctx, ptr(project), ptr("%"), nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 15)
	s.Equal(calls, s.remote.Calls())
}

func (s *EngineTests) TestConcurrentMissesCoalesce() {
	s.remote.Delay = 20 * time.Millisecond
	e := s.engine(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tables, err := e.ListTables(s.ctx, nil, ptr("ds%"), nil, nil)
			assert.NoError(s.T(), err)
			assert.Len(s.T(), tables, 15)
		}()
	}
	wg.Wait()

	s.EqualValues(1, s.remote.ContainerCalls())
}

func (s *EngineTests) TestBoundedFanOut() {
	e := s.engine(func(c *catalog.Config) { c.Fanout = fanout.Options{Limit: 2} })

	tables, err := e.ListTables(s.ctx, nil, ptr("%"), nil, nil)
	s.Require().NoError(err)
	s.Len(tables, 15)
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineTests))
}

func TestNestedFanOutIsConcurrent(t *testing.T) {
	remote := remotetest.NewCatalog(project)
	for d := 0; d < 4; d++ {
		for tb := 0; tb < 4; tb++ {
			remote.AddTable(project, fmt.Sprintf("ds%d", d), fmt.Sprintf("t%d", tb), "TABLE", "c")
		}
	}
	remote.Delay = 50 * time.Millisecond
	e := catalog.New(catalog.Config{Client: remote})

	start := time.Now()
	columns, err := e.ListColumns(context.Background(), nil, ptr("%"), nil, nil)
	require.NoError(t, err)
	require.Len(t, columns, 16)

	// containers, entities and describe calls are three levels deep;
	// sequential enumeration would take 1+4+16 round trips
	assert.Less(t, time.Since(start), 15*remote.Delay)
}
