// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/collector/pdata/plog"

	"github.com/spyglasshq/spyglass/telemetry"
)

// Well-known filter fields. Any other field name is looked up as a log
// attribute key.
const (
	FilterFieldTimestamp      = "timestamp"
	FilterFieldSeverity       = "severity"
	FilterFieldMessage        = "message"
	FilterFieldTraceID        = "trace.id"
	FilterFieldSpanID         = "span.id"
	FilterFieldOriginalFormat = "original.format"
)

// FilterCondition is the comparison a LogFilter applies.
type FilterCondition int32

const (
	FilterConditionEquals FilterCondition = iota
	FilterConditionNotEquals
	FilterConditionContains
	FilterConditionNotContains
	FilterConditionGreaterThan
	FilterConditionLessThan
	FilterConditionGreaterThanOrEqual
	FilterConditionLessThanOrEqual
)

// String returns the condition's operator notation.
func (c FilterCondition) String() string {
	switch c {
	case FilterConditionEquals:
		return "=="
	case FilterConditionNotEquals:
		return "!="
	case FilterConditionContains:
		return "contains"
	case FilterConditionNotContains:
		return "not contains"
	case FilterConditionGreaterThan:
		return ">"
	case FilterConditionLessThan:
		return "<"
	case FilterConditionGreaterThanOrEqual:
		return ">="
	case FilterConditionLessThanOrEqual:
		return "<="
	}
	return ""
}

// LogFilter is one (field, condition, value) predicate. A query's
// filters are ANDed together.
type LogFilter struct {
	Field     string
	Condition FilterCondition
	Value     string
}

// matches reports whether the entry satisfies the predicate.
// Severity and timestamp compare numerically and chronologically, all
// other fields ordinally. An entry missing the referenced attribute
// matches only the negated conditions.
func (f LogFilter) matches(e *telemetry.LogEntry) bool {
	switch f.Field {
	case FilterFieldTimestamp:
		want, err := time.Parse(time.RFC3339Nano, f.Value)
		if err != nil {
			return false
		}
		return compareOrdered(e.Timestamp.Compare(want), f.Condition)
	case FilterFieldSeverity:
		want, ok := parseSeverity(f.Value)
		if !ok {
			return false
		}
		return compareOrdered(int(e.Severity-want), f.Condition)
	case FilterFieldMessage:
		return compareString(e.Message, f.Value, f.Condition)
	case FilterFieldTraceID:
		return compareString(e.TraceID, f.Value, f.Condition)
	case FilterFieldSpanID:
		return compareString(e.SpanID, f.Value, f.Condition)
	case FilterFieldOriginalFormat:
		return compareString(e.OriginalFormat, f.Value, f.Condition)
	default:
		v, ok := telemetry.GetAttribute(e.Attributes, f.Field)
		if !ok {
			return f.Condition == FilterConditionNotEquals || f.Condition == FilterConditionNotContains
		}
		return compareString(v, f.Value, f.Condition)
	}
}

func compareString(have, want string, cond FilterCondition) bool {
	switch cond {
	case FilterConditionContains:
		return strings.Contains(have, want)
	case FilterConditionNotContains:
		return !strings.Contains(have, want)
	default:
		return compareOrdered(strings.Compare(have, want), cond)
	}
}

// compareOrdered interprets a three-way comparison result against the
// condition. Contains conditions degrade to equality for ordered
// fields.
func compareOrdered(cmp int, cond FilterCondition) bool {
	switch cond {
	case FilterConditionEquals, FilterConditionContains:
		return cmp == 0
	case FilterConditionNotEquals, FilterConditionNotContains:
		return cmp != 0
	case FilterConditionGreaterThan:
		return cmp > 0
	case FilterConditionLessThan:
		return cmp < 0
	case FilterConditionGreaterThanOrEqual:
		return cmp >= 0
	case FilterConditionLessThanOrEqual:
		return cmp <= 0
	}
	return false
}

var severityNames = map[string]plog.SeverityNumber{
	"trace": plog.SeverityNumberTrace,
	"debug": plog.SeverityNumberDebug,
	"info":  plog.SeverityNumberInfo,
	"warn":  plog.SeverityNumberWarn,
	"error": plog.SeverityNumberError,
	"fatal": plog.SeverityNumberFatal,
}

// parseSeverity accepts an OTLP severity number or a level name.
func parseSeverity(s string) (plog.SeverityNumber, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return plog.SeverityNumber(n), true
	}
	sev, ok := severityNames[strings.ToLower(s)]
	return sev, ok
}
