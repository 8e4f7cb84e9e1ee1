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
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq/driver/internal/driverbase"
)

func parseBool(helper driverbase.ErrorHelper, key, value string) (bool, error) {
	switch strings.ToLower(value) {
	case tbcbq.OptionValueEnabled:
		return true, nil
	case tbcbq.OptionValueDisabled:
		return false, nil
	}
	return false, helper.Errorf(tbcbq.StatusInvalidArgument, "invalid value for %s: %s", key, value)
}

func formatBool(v bool) string {
	if v {
		return tbcbq.OptionValueEnabled
	}
	return tbcbq.OptionValueDisabled
}

func parseInt(helper driverbase.ErrorHelper, key, value string, min int64) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, helper.Errorf(tbcbq.StatusInvalidArgument, "invalid value for %s: %s", key, value)
	}
	if n < min {
		return 0, helper.Errorf(tbcbq.StatusInvalidArgument, "invalid value for %s: %d is less than %d", key, n, min)
	}
	return n, nil
}

// secondsToDuration validates a timeout given in fractional seconds.
func secondsToDuration(helper driverbase.ErrorHelper, key string, value float64) (time.Duration, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, helper.Errorf(tbcbq.StatusInvalidArgument,
			"invalid timeout option value %s = %f: timeouts must be non-negative and finite", key, value)
	}
	return time.Duration(value * float64(time.Second)), nil
}

func parseSeconds(helper driverbase.ErrorHelper, key, value string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, helper.Errorf(tbcbq.StatusInvalidArgument, "invalid timeout option value %s = %s: %s", key, value, err)
	}
	return secondsToDuration(helper, key, f)
}

func parseRate(helper driverbase.ErrorHelper, key string, value float64) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, helper.Errorf(tbcbq.StatusInvalidArgument, "invalid value for %s: %f must be non-negative and finite", key, value)
	}
	return value, nil
}

// splitList splits a comma separated option, dropping blank items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseLabels reads "k1=v1,k2=v2".
func parseLabels(helper driverbase.ErrorHelper, key, value string) (map[string]string, error) {
	items := splitList(value)
	if len(items) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, helper.Errorf(tbcbq.StatusInvalidArgument, "invalid value for %s: label '%s' is not key=value", key, item)
		}
		labels[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return labels, nil
}
