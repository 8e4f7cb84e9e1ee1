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
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var testHelper = driverbase.ErrorHelper{DriverName: "BigQuery"}

func requireStatus(t *testing.T, err error, code tbcbq.Status) tbcbq.Error {
	t.Helper()
	var e tbcbq.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, code, e.Code, e.Msg)
	return e
}

func TestErrorFromRemoteNil(t *testing.T) {
	assert.NoError(t, errorFromRemote(testHelper, nil, "op"))
}

func TestErrorFromRemotePassesClassifiedErrors(t *testing.T) {
	orig := tbcbq.Error{Code: tbcbq.StatusNotFound, Msg: "gone"}
	err := errorFromRemote(testHelper, fmt.Errorf("wrapped: %w", orig), "op")
	e := requireStatus(t, err, tbcbq.StatusNotFound)
	assert.Equal(t, "gone", e.Msg)
}

func TestErrorFromRemoteContext(t *testing.T) {
	requireStatus(t, errorFromRemote(testHelper, context.Canceled, "op"), tbcbq.StatusCancelled)
	requireStatus(t, errorFromRemote(testHelper, fmt.Errorf("x: %w", context.DeadlineExceeded), "op"), tbcbq.StatusTimeout)
}

func TestErrorFromRemoteJobError(t *testing.T) {
	err := errorFromRemote(testHelper, &bigquery.Error{Reason: "invalidQuery", Message: "Syntax error at [1:1]"}, "job %s", "j1")
	e := requireStatus(t, err, tbcbq.StatusInvalidArgument)
	assert.Equal(t, "[BigQuery] job j1: Syntax error at [1:1]", e.Msg)
	reason, ok := e.Detail(tbcbq.DetailReason)
	require.True(t, ok)
	assert.Equal(t, "invalidQuery", reason)

	err = errorFromRemote(testHelper, &bigquery.Error{Reason: "somethingNew", Message: "?"}, "op")
	requireStatus(t, err, tbcbq.StatusUnknown)
}

func TestErrorFromRemoteHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      *googleapi.Error
		expected tbcbq.Status
	}{
		{"not found", &googleapi.Error{Code: http.StatusNotFound, Message: "Not found: Dataset p:d"}, tbcbq.StatusNotFound},
		{"not found keeps status", &googleapi.Error{
			Code:   http.StatusNotFound,
			Errors: []googleapi.ErrorItem{{Reason: "accessDenied"}},
		}, tbcbq.StatusNotFound},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, tbcbq.StatusUnauthorized},
		{"unauthenticated", &googleapi.Error{Code: http.StatusUnauthorized}, tbcbq.StatusUnauthenticated},
		{"reason wins", &googleapi.Error{
			Code:   http.StatusForbidden,
			Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}},
		}, tbcbq.StatusInternal},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, tbcbq.StatusIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := requireStatus(t, errorFromRemote(testHelper, tt.err, "op"), tt.expected)
			code, ok := e.Detail(tbcbq.DetailHTTPStatus)
			require.True(t, ok)
			assert.Equal(t, fmt.Sprint(tt.err.Code), code)
		})
	}
}

func TestErrorFromRemoteGRPC(t *testing.T) {
	err := errorFromRemote(testHelper, status.Error(codes.PermissionDenied, "no read session"), "read")
	e := requireStatus(t, err, tbcbq.StatusUnauthorized)
	assert.Contains(t, e.Msg, "no read session")

	requireStatus(t, errorFromRemote(testHelper, status.Error(codes.Unavailable, "down"), "read"), tbcbq.StatusIO)
}

func TestErrorFromRemoteFallback(t *testing.T) {
	e := requireStatus(t, errorFromRemote(testHelper, errors.New("connection reset"), "list %s", "p"), tbcbq.StatusIO)
	assert.Equal(t, "[BigQuery] list p: connection reset", e.Msg)
}

func TestStatusFromReason(t *testing.T) {
	for reason, expected := range map[string]tbcbq.Status{
		"notFound":          tbcbq.StatusNotFound,
		"duplicate":         tbcbq.StatusAlreadyExists,
		"accessDenied":      tbcbq.StatusUnauthorized,
		"resourcesExceeded": tbcbq.StatusInvalidData,
		"stopped":           tbcbq.StatusCancelled,
		"timeout":           tbcbq.StatusTimeout,
	} {
		got, ok := statusFromReason(reason)
		assert.True(t, ok, reason)
		assert.Equal(t, expected, got, reason)
	}
	_, ok := statusFromReason("")
	assert.False(t, ok)
}
