// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry // import "github.com/spyglasshq/spyglass/telemetry"

import (
	"slices"
	"time"

	"go.opentelemetry.io/collector/pdata/plog"
)

// LogEntry is one parsed OTLP log record. Entries are immutable once
// stored; reads hand back copies via Clone.
type LogEntry struct {
	Timestamp         time.Time
	ObservedTimestamp time.Time
	Severity          plog.SeverityNumber
	SeverityText      string

	// Message is the record body rendered as a string; when the body
	// is empty it is rendered from OriginalFormat by placeholder
	// substitution.
	Message string
	// OriginalFormat is the structured-logging template the producer
	// attached under the {OriginalFormat} attribute, if any.
	OriginalFormat string

	TraceID string
	SpanID  string
	Flags   uint32
	Scope   string

	Application ApplicationKey
	Attributes  []Attribute
}

// Clone returns a copy that shares no mutable state with e.
func (e *LogEntry) Clone() *LogEntry {
	c := *e
	c.Attributes = slices.Clone(e.Attributes)
	return &c
}
