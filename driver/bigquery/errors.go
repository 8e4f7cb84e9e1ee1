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
	"strconv"

	"cloud.google.com/go/bigquery"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// statusFromReason maps a BigQuery error reason to a status.
//
// see: https://cloud.google.com/bigquery/docs/error-messages
func statusFromReason(reason string) (tbcbq.Status, bool) {
	switch reason {
	case "invalidQuery", "invalid", "invalidUser":
		return tbcbq.StatusInvalidArgument, true
	case "notFound":
		return tbcbq.StatusNotFound, true
	case "duplicate":
		return tbcbq.StatusAlreadyExists, true
	case "accessDenied", "billingNotEnabled", "billingTierLimitExceeded", "blocked":
		return tbcbq.StatusUnauthorized, true
	case "responseTooLarge", "resourcesExceeded":
		return tbcbq.StatusInvalidData, true
	case "quotaExceeded", "rateLimitExceeded", "backendError", "internalError":
		return tbcbq.StatusInternal, true
	case "notImplemented":
		return tbcbq.StatusNotImplemented, true
	case "stopped":
		return tbcbq.StatusCancelled, true
	case "timeout", "jobBackendError":
		return tbcbq.StatusTimeout, true
	}
	return tbcbq.StatusUnknown, false
}

func statusFromHTTP(code int) tbcbq.Status {
	switch code {
	case http.StatusBadRequest:
		return tbcbq.StatusInvalidArgument
	case http.StatusUnauthorized:
		return tbcbq.StatusUnauthenticated
	case http.StatusForbidden:
		return tbcbq.StatusUnauthorized
	case http.StatusNotFound:
		return tbcbq.StatusNotFound
	case http.StatusConflict:
		return tbcbq.StatusAlreadyExists
	case http.StatusNotImplemented:
		return tbcbq.StatusNotImplemented
	}
	return tbcbq.StatusIO
}

func statusFromGRPC(code codes.Code) tbcbq.Status {
	switch code {
	case codes.Canceled:
		return tbcbq.StatusCancelled
	case codes.InvalidArgument:
		return tbcbq.StatusInvalidArgument
	case codes.DeadlineExceeded:
		return tbcbq.StatusTimeout
	case codes.NotFound:
		return tbcbq.StatusNotFound
	case codes.AlreadyExists:
		return tbcbq.StatusAlreadyExists
	case codes.PermissionDenied:
		return tbcbq.StatusUnauthorized
	case codes.Unauthenticated:
		return tbcbq.StatusUnauthenticated
	case codes.Unimplemented:
		return tbcbq.StatusNotImplemented
	case codes.Internal, codes.ResourceExhausted:
		return tbcbq.StatusInternal
	case codes.Unavailable, codes.DataLoss:
		return tbcbq.StatusIO
	}
	return tbcbq.StatusUnknown
}

// errorFromRemote classifies an error returned by the BigQuery client
// into a [tbcbq.Error], keeping the remote message verbatim. Errors
// already classified are returned unchanged.
func errorFromRemote(helper driverbase.ErrorHelper, err error, op string, args ...any) error {
	if err == nil {
		return nil
	}
	var already tbcbq.Error
	if errors.As(err, &already) {
		return err
	}

	msg := fmt.Sprintf(op, args...)

	switch {
	case errors.Is(err, context.Canceled):
		return helper.Error(tbcbq.StatusCancelled, fmt.Sprintf("%s: %s", msg, err))
	case errors.Is(err, context.DeadlineExceeded):
		return helper.Error(tbcbq.StatusTimeout, fmt.Sprintf("%s: %s", msg, err))
	}

	var jobErr *bigquery.Error
	if errors.As(err, &jobErr) {
		code, ok := statusFromReason(jobErr.Reason)
		if !ok {
			code = tbcbq.StatusUnknown
		}
		details := []tbcbq.ErrorDetail{&tbcbq.TextErrorDetail{Name: tbcbq.DetailReason, Detail: jobErr.Reason}}
		return helper.Error(code, fmt.Sprintf("%s: %s", msg, jobErr.Message), details...)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		code := statusFromHTTP(apiErr.Code)
		details := []tbcbq.ErrorDetail{&tbcbq.TextErrorDetail{Name: tbcbq.DetailHTTPStatus, Detail: strconv.Itoa(apiErr.Code)}}
		if len(apiErr.Errors) > 0 {
			reason := apiErr.Errors[0].Reason
			details = append(details, &tbcbq.TextErrorDetail{Name: tbcbq.DetailReason, Detail: reason})
			// a 404 stays NotFound regardless of reason
			if byReason, ok := statusFromReason(reason); ok && code != tbcbq.StatusNotFound {
				code = byReason
			}
		}
		remoteMsg := apiErr.Message
		if remoteMsg == "" {
			remoteMsg = apiErr.Error()
		}
		return helper.Error(code, fmt.Sprintf("%s: %s", msg, remoteMsg), details...)
	}

	if grpcStatus, ok := status.FromError(err); ok {
		details := []tbcbq.ErrorDetail{}
		// slice of proto.Message or error
		for _, detail := range grpcStatus.Details() {
			if err, ok := detail.(error); ok {
				details = append(details, &tbcbq.TextErrorDetail{Name: tbcbq.DetailGRPCStatus, Detail: err.Error()})
			} else if m, ok := detail.(proto.Message); ok {
				details = append(details, &tbcbq.ProtobufErrorDetail{Name: tbcbq.DetailGRPCStatus, Message: m})
			}
		}
		return helper.Error(statusFromGRPC(grpcStatus.Code()), fmt.Sprintf("%s: %s", msg, grpcStatus.Message()), details...)
	}

	return helper.Error(tbcbq.StatusIO, fmt.Sprintf("%s: %s", msg, err))
}
