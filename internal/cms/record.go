package cms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Record is the canonical record shape every caller sees. The Content API
// serializes entries either flat or wrapped in an "attributes" envelope
// depending on version/config; Normalize collapses both into this shape at
// the client boundary so downstream code never sniffs.
type Record map[string]any

// Normalize converts a raw decoded entry into a canonical Record.
// A wrapped entry {"id": 1, "documentId": "x", "attributes": {...}} is
// flattened; a flat entry passes through unchanged.
func Normalize(raw map[string]any) Record {
	if raw == nil {
		return Record{}
	}

	attrs, ok := raw["attributes"].(map[string]any)
	if !ok {
		return Record(raw)
	}

	rec := make(Record, len(attrs)+2)
	for k, v := range attrs {
		rec[k] = v
	}
	// Identifiers live outside the envelope
	if id, ok := raw["id"]; ok {
		rec["id"] = id
	}
	if docID, ok := raw["documentId"]; ok {
		rec["documentId"] = docID
	}
	return rec
}

// NormalizeList applies Normalize to every entry of a decoded collection.
func NormalizeList(raw []any) []Record {
	records := make([]Record, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, Normalize(m))
	}
	return records
}

// ID returns the numeric row id, or 0 if absent.
func (r Record) ID() uint {
	switch v := r["id"].(type) {
	case float64:
		return uint(v)
	case int:
		return uint(v)
	case json.Number:
		n, _ := v.Int64()
		return uint(n)
	}
	return 0
}

// DocumentID returns the stable document identifier, or "" if absent.
func (r Record) DocumentID() string {
	s, _ := r["documentId"].(string)
	return s
}

// Ref returns the identifier to address this record with: the documentId
// when present, otherwise the numeric id. The Content API supports both
// addressing schemes; the document identifier is the stable one.
func (r Record) Ref() string {
	if docID := r.DocumentID(); docID != "" {
		return docID
	}
	if id := r.ID(); id != 0 {
		return strconv.FormatUint(uint64(id), 10)
	}
	return ""
}

// String returns the value for key as a string, or "" if missing or not
// a scalar.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	}
	return ""
}

// StringOr returns the value for key, or fallback when empty.
func (r Record) StringOr(key, fallback string) string {
	if s := r.String(key); s != "" {
		return s
	}
	return fallback
}

// Bool returns the value for key as a bool.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Time parses the value for key as RFC 3339, returning the zero time when
// missing or unparseable.
func (r Record) Time(key string) time.Time {
	s, ok := r[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Fields returns a shallow copy without the identifier keys, suitable for
// a create/update payload.
func (r Record) Fields() map[string]any {
	fields := make(map[string]any, len(r))
	for k, v := range r {
		if k == "id" || k == "documentId" {
			continue
		}
		fields[k] = v
	}
	return fields
}

func (r Record) GoString() string {
	return fmt.Sprintf("cms.Record(id=%d, documentId=%q)", r.ID(), r.DocumentID())
}
