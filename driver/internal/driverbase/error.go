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

package driverbase

import (
	"errors"
	"fmt"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
)

// ErrorHelper helps format errors for drivers. It prefixes every
// message with the driver name.
type ErrorHelper struct {
	DriverName string
}

func (helper *ErrorHelper) Errorf(code tbcbq.Status, message string, format ...interface{}) error {
	return helper.Error(code, fmt.Sprintf(message, format...))
}

// Error builds a [tbcbq.Error] with optional details.
func (helper *ErrorHelper) Error(code tbcbq.Status, message string, details ...tbcbq.ErrorDetail) error {
	msg := message
	if helper.DriverName != "" {
		msg = fmt.Sprintf("[%s] %s", helper.DriverName, message)
	}
	return tbcbq.Error{
		Code:    code,
		Msg:     msg,
		Details: details,
	}
}

// WithDetail returns err with the text detail appended if err is a
// [tbcbq.Error] that does not carry key yet. Other errors are returned
// unchanged.
func WithDetail(err error, key, value string) error {
	var e tbcbq.Error
	if !errors.As(err, &e) {
		return err
	}
	if _, ok := e.Detail(key); ok {
		return err
	}
	details := make([]tbcbq.ErrorDetail, 0, len(e.Details)+1)
	details = append(details, e.Details...)
	e.Details = append(details, &tbcbq.TextErrorDetail{Name: key, Detail: value})
	return e
}
