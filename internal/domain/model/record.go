package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is UTC ISO-8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is a validated, server-timestamped submission. It is never mutated
// after construction; consumers that need their own copy call Clone.
type Record struct {
	// ID correlates log lines for one submission. Nothing is stored under it.
	ID        string
	Type      FormType
	Fields    Fields
	Timestamp string
	Source    string
}

// NewRecord builds a Record from validated fields. Defaults are applied to a
// private copy so the caller's value is left untouched.
func NewRecord(id string, fields Fields, now time.Time) (Record, error) {
	if fields == nil {
		return Record{}, fmt.Errorf("%w: nil fields", ErrUnknownForm)
	}
	form, ok := Lookup(fields.Type())
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownForm, fields.Type())
	}
	f := fields.clone()
	f.applyDefaults()

	source := f.ClientSource()
	if isBlank(source) {
		source = form.SourceLabel
	}
	return Record{
		ID:        id,
		Type:      form.Type,
		Fields:    f,
		Timestamp: now.UTC().Format(TimestampLayout),
		Source:    source,
	}, nil
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := r
	if r.Fields != nil {
		c.Fields = r.Fields.clone()
	}
	return c
}

// SheetPayload flattens the record into the webhook body: every field plus
// formType, timestamp, source and submissionId.
func SheetPayload(r Record) (map[string]interface{}, error) {
	raw, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	payload := map[string]interface{}{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("flatten fields: %w", err)
	}
	payload["formType"] = string(r.Type)
	payload["timestamp"] = r.Timestamp
	payload["source"] = r.Source
	payload["submissionId"] = r.ID
	return payload, nil
}
