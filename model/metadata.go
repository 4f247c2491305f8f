package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"

	"github.com/siherrmann/graphrag/helper"
)

// Metadata represents JSONB metadata stored in PostgreSQL
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	return m.Marshal()
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes
func (m Metadata) Marshal() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Unmarshal converts JSON bytes, a JSON string or Metadata to Metadata
func (m *Metadata) Unmarshal(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case Metadata:
		*m = v
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
}

// String returns the value for key if it is a non-empty string
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Clone returns a shallow copy
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetadataFilter is an equality predicate over chunk metadata.
// Every key must match; an empty filter matches everything.
// It is evaluated in PostgreSQL with the jsonb containment operator.
type MetadataFilter map[string]interface{}

// And combines two filters with logical AND.
// When both filters constrain the same key to different values the result
// is a conflict marker that matches nothing.
func (f MetadataFilter) And(other MetadataFilter) MetadataFilter {
	if len(f) == 0 && len(other) == 0 {
		return nil
	}

	out := make(MetadataFilter, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for _, k := range other.Keys() {
		v := other[k]
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		if !jsonEqual(existing, v) {
			return impossibleFilter(k)
		}
	}
	return out
}

// Keys returns the filter keys in sorted order
func (f MetadataFilter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches evaluates the filter against metadata in memory
func (f MetadataFilter) Matches(m Metadata) bool {
	for k, v := range f {
		got, ok := m[k]
		if !ok || !jsonEqual(got, v) {
			return false
		}
	}
	return true
}

// Marshal converts the filter to the JSON document used for containment
func (f MetadataFilter) Marshal() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// conflictKey marks a filter produced from contradictory constraints
const conflictKey = "__conflict__"

func impossibleFilter(key string) MetadataFilter {
	return MetadataFilter{conflictKey: key}
}

// IsImpossible reports whether the filter can never match
func (f MetadataFilter) IsImpossible() bool {
	_, ok := f[conflictKey]
	return ok
}

func jsonEqual(a, b interface{}) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
