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

// Package bigquery registers the tbcbq BigQuery driver with database/sql
// under the name "tbcbq".
package bigquery

import (
	"database/sql"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/bigquery"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/sqldriver"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DriverName is the name the driver is registered under.
const DriverName = "tbcbq"

func init() {
	sql.Register(DriverName, sqldriver.Driver{
		Driver: bigquery.NewDriver(memory.DefaultAllocator),
	})
}
