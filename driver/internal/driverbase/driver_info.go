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
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const UnknownVersion = "(unknown or development build)"

// InfoCode identifies one piece of driver or vendor metadata.
type InfoCode uint32

const (
	InfoVendorName InfoCode = iota
	InfoVendorVersion
	InfoVendorSql
	InfoDriverName
	InfoDriverVersion
	InfoDriverArrowVersion
)

func (c InfoCode) String() string {
	switch c {
	case InfoVendorName:
		return "VendorName"
	case InfoVendorVersion:
		return "VendorVersion"
	case InfoVendorSql:
		return "VendorSql"
	case InfoDriverName:
		return "DriverName"
	case InfoDriverVersion:
		return "DriverVersion"
	case InfoDriverArrowVersion:
		return "DriverArrowVersion"
	}
	return fmt.Sprintf("InfoCode(%d)", uint32(c))
}

type infoValueType int

const (
	infoValueString infoValueType = iota
	infoValueBool
)

var infoValueTypeForInfoCode = map[InfoCode]infoValueType{
	InfoVendorName:         infoValueString,
	InfoVendorVersion:      infoValueString,
	InfoVendorSql:          infoValueBool,
	InfoDriverName:         infoValueString,
	InfoDriverVersion:      infoValueString,
	InfoDriverArrowVersion: infoValueString,
}

const (
	// namespace prefix
	otelInfoSemConv attribute.Key = "tbcbq.info."

	// The database vendor/product name (type: utf8)
	otelSemConvInfoVendorName attribute.Key = otelInfoSemConv + "vendor.name"
	// The database vendor/product version (type: utf8)
	otelSemConvInfoVendorVersion attribute.Key = otelInfoSemConv + "vendor.version"
	// Indicates whether SQL queries are supported (type: bool).
	otelSemConvInfoVendorSql attribute.Key = otelInfoSemConv + "vendor.sql"
	// The driver name (type: utf8)
	otelSemConvInfoDriverName attribute.Key = otelInfoSemConv + "driver.name"
	// The driver version (type: utf8)
	otelSemConvInfoDriverVersion attribute.Key = otelInfoSemConv + "driver.version"
	// The driver Arrow library version (type: utf8)
	otelSemConvInfoDriverArrowVersion attribute.Key = otelInfoSemConv + "driver.arrow.version"
)

var otelAttrForInfoCode = map[InfoCode]attribute.Key{
	InfoVendorName:         otelSemConvInfoVendorName,
	InfoVendorVersion:      otelSemConvInfoVendorVersion,
	InfoVendorSql:          otelSemConvInfoVendorSql,
	InfoDriverName:         otelSemConvInfoDriverName,
	InfoDriverVersion:      otelSemConvInfoDriverVersion,
	InfoDriverArrowVersion: otelSemConvInfoDriverArrowVersion,
}

func DefaultDriverInfo(name string) *DriverInfo {
	return &DriverInfo{
		name: name,
		info: map[InfoCode]any{
			InfoVendorName:         name,
			InfoDriverName:         fmt.Sprintf("tbcbq %s Driver - Go", name),
			InfoDriverVersion:      UnknownVersion,
			InfoDriverArrowVersion: UnknownVersion,
			InfoVendorVersion:      UnknownVersion,
			InfoVendorSql:          true,
		},
	}
}

type DriverInfo struct {
	name string
	info map[InfoCode]any
}

func (di *DriverInfo) GetName() string { return di.name }

func (di *DriverInfo) InfoSupportedCodes() []InfoCode {
	// Every code the driver knows about is set to some default at init,
	// so the keys double as the supported set.
	codes := make([]InfoCode, 0, len(di.info))
	for code := range di.info {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

func (di *DriverInfo) RegisterInfoCode(code InfoCode, value any) error {
	valueType, isStandardInfoCode := infoValueTypeForInfoCode[code]
	if !isStandardInfoCode {
		di.info[code] = value
		return nil
	}

	var err error
	switch valueType {
	case infoValueString:
		if val, ok := value.(string); !ok {
			err = fmt.Errorf("%s: expected info_value %v to be of type %T but found %T", code, value, val, value)
		}
	case infoValueBool:
		if val, ok := value.(bool); !ok {
			err = fmt.Errorf("%s: expected info_value %v to be of type %T but found %T", code, value, val, value)
		}
	}

	if err == nil {
		di.info[code] = value
	}

	return err
}

func (di *DriverInfo) GetInfoForInfoCode(code InfoCode) (any, bool) {
	val, ok := di.info[code]
	return val, ok
}

func getInitialSpanAttributes(driverInfo *DriverInfo) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	for _, code := range driverInfo.InfoSupportedCodes() {
		attr, ok := otelAttrForInfoCode[code]
		if !ok {
			continue
		}
		switch v := driverInfo.info[code].(type) {
		case string:
			attrs = append(attrs, attr.String(v))
		case bool:
			attrs = append(attrs, attr.Bool(v))
		}
	}
	return attrs
}

func SetOTelDriverInfoAttributes(driverInfo *DriverInfo, span trace.Span) {
	span.SetAttributes(getInitialSpanAttributes(driverInfo)...)
}
