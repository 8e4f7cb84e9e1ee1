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

// Package sqldriver adapts the tbcbq interfaces to the standard
// database/sql package, described here: https://go.dev/src/database/sql/doc.txt
//
// Any tbcbq driver can be registered with
//
//	sql.Register("drivername", sqldriver.Driver{Driver: tbcbqDriver})
//
// and opened with a data source name made of semicolon separated
// key=value pairs, each of which is passed to the driver as an option:
//
//	db, err := sql.Open("drivername", "bq.project_id=my-project;bq.location=EU")
//
// The sqldriver/bigquery package registers the BigQuery driver under the
// name "tbcbq" when imported.
//
// Query placeholders are not supported: statements report zero inputs and
// database/sql rejects any arguments. Transactions are not supported
// either; BeginTx fails with StatusNotImplemented.
package sqldriver
