// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the view models the storage engine hands
// back to the dashboard: applications, log entries, traces and spans,
// and dimensioned metric series. The types are plain data; anything
// returned from a store is a copy the caller may mutate freely.
package telemetry // import "github.com/spyglasshq/spyglass/telemetry"

import (
	"slices"
	"strings"

	"go.opentelemetry.io/collector/pdata/pcommon"
)

// Attribute is a single key/value pair. Attribute lists are kept
// sorted by key so dimension identity and UI rendering are stable.
type Attribute struct {
	Key   string
	Value string
}

// AttributesFromMap flattens a pdata attribute map into a sorted
// attribute list. Non-string values are rendered with the OTLP
// standard string encoding.
func AttributesFromMap(m pcommon.Map) []Attribute {
	if m.Len() == 0 {
		return nil
	}
	attrs := make([]Attribute, 0, m.Len())
	m.Range(func(k string, v pcommon.Value) bool {
		attrs = append(attrs, Attribute{Key: k, Value: v.AsString()})
		return true
	})
	SortAttributes(attrs)
	return attrs
}

// SortAttributes orders attrs by key, then value.
func SortAttributes(attrs []Attribute) {
	slices.SortFunc(attrs, func(a, b Attribute) int {
		if c := strings.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
}

// GetAttribute returns the value for key, or "" when absent.
func GetAttribute(attrs []Attribute, key string) (string, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// DimensionKey builds the canonical identity of a sorted attribute
// set. Unit separators keep adjacent pairs from colliding.
func DimensionKey(attrs []Attribute) string {
	if len(attrs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, kv := range attrs {
		if i > 0 {
			sb.WriteByte(0x1e)
		}
		sb.WriteString(kv.Key)
		sb.WriteByte(0x1f)
		sb.WriteString(kv.Value)
	}
	return sb.String()
}
