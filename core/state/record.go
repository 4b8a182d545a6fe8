package state

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// StepStatus is the outcome of one node invocation.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusError   StepStatus = "error"
)

// ErrorKind classifies the failure carried by an error step.
type ErrorKind string

const (
	ErrorKindExtraction    ErrorKind = "extraction"
	ErrorKindShapeMismatch ErrorKind = "shape_mismatch"
	ErrorKindPrecondition  ErrorKind = "precondition"
	ErrorKindInvocation    ErrorKind = "invocation"
	ErrorKindPanic         ErrorKind = "panic"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// Metadata keys written next to the payload when a record is serialized.
// They take precedence over payload keys of the same name.
const (
	FieldNodeType   = "node_type"
	FieldStatus     = "status"
	FieldError      = "error"
	FieldErrorKind  = "error_kind"
	FieldStartedAt  = "started_at"
	FieldDurationMS = "duration_ms"
)

// StepRecord is one entry of the execution history. Records are immutable once
// created: payload values are normalized with [Plain] on construction and every
// accessor returns copies.
type StepRecord struct {
	NodeType  string
	Status    StepStatus
	Error     string
	ErrorKind ErrorKind
	StartedAt time.Time
	Duration  time.Duration

	fields map[string]any
}

// NewStepRecord builds a successful record for nodeType with the given payload.
func NewStepRecord(nodeType string, fields map[string]any, startedAt time.Time, duration time.Duration) StepRecord {
	return StepRecord{
		NodeType:  nodeType,
		Status:    StatusSuccess,
		StartedAt: startedAt,
		Duration:  duration,
		fields:    normalizeFields(fields),
	}
}

// NewErrorRecord builds a failed record. Partial payload fields, such as the
// SQL a failed execution ran, are kept.
func NewErrorRecord(nodeType string, kind ErrorKind, err error, fields map[string]any, startedAt time.Time, duration time.Duration) StepRecord {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if kind == "" {
		kind = ErrorKindUnknown
	}
	return StepRecord{
		NodeType:  nodeType,
		Status:    StatusError,
		Error:     message,
		ErrorKind: kind,
		StartedAt: startedAt,
		Duration:  duration,
		fields:    normalizeFields(fields),
	}
}

func normalizeFields(fields map[string]any) map[string]any {
	normalized := make(map[string]any, len(fields))
	for key, value := range fields {
		normalized[key] = Plain(value)
	}
	return normalized
}

// Failed reports whether the record carries an error.
func (record StepRecord) Failed() bool {
	return record.Status == StatusError
}

// Get returns a copy of the payload value stored under key.
func (record StepRecord) Get(key string) (any, bool) {
	value, exists := record.fields[key]
	if !exists {
		return nil, false
	}
	return clonePlain(value), true
}

// String returns the payload value under key when it is a string.
func (record StepRecord) String(key string) string {
	text, _ := record.fields[key].(string)
	return text
}

// Strings returns the payload value under key as a string slice, skipping
// non-string elements.
func (record StepRecord) Strings(key string) []string {
	elements, _ := record.fields[key].([]any)
	texts := make([]string, 0, len(elements))
	for _, element := range elements {
		if text, ok := element.(string); ok {
			texts = append(texts, text)
		}
	}
	return texts
}

// Keys returns the payload keys in sorted order.
func (record StepRecord) Keys() []string {
	return slices.Sorted(maps.Keys(record.fields))
}

// Fields returns a deep copy of the payload.
func (record StepRecord) Fields() map[string]any {
	cloned, _ := clonePlain(record.fields).(map[string]any)
	return cloned
}

// ToPlain returns the record as a flat object: payload keys with the metadata
// keys laid over them.
func (record StepRecord) ToPlain() map[string]any {
	object := record.Fields()
	if object == nil {
		object = make(map[string]any)
	}
	object[FieldNodeType] = record.NodeType
	object[FieldStatus] = string(record.Status)
	if record.Failed() {
		object[FieldError] = record.Error
		object[FieldErrorKind] = string(record.ErrorKind)
	}
	if !record.StartedAt.IsZero() {
		object[FieldStartedAt] = record.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	object[FieldDurationMS] = record.Duration.Milliseconds()
	return object
}

// MarshalJSON implements json.Marshaler using [StepRecord.ToPlain].
func (record StepRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(record.ToPlain())
}
