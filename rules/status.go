package rules

import (
	"encoding/json"
	"time"
)

// StatusKey identifies one observed row: the owning customer, the rule that
// fetched it, and the row's key-field values. KeyValues holds the canonical
// JSON encoding of the key-value map so the struct stays comparable and two
// keys built from equal maps always collide.
type StatusKey struct {
	Customer  string
	Rule      string
	KeyValues string
}

// NewStatusKey builds a StatusKey from a key-field value map
func NewStatusKey(customer, rule string, keyValues map[string]string) StatusKey {
	return StatusKey{
		Customer:  customer,
		Rule:      rule,
		KeyValues: CanonicalValues(keyValues),
	}
}

// KeyValueMap decodes the canonical key values back into a map
func (k StatusKey) KeyValueMap() map[string]string {
	var m map[string]string
	if err := json.Unmarshal([]byte(k.KeyValues), &m); err != nil {
		return nil
	}
	return m
}

// Status is the full observed snapshot of one row: every fetched field's
// value plus the observation time. Two statuses are "unchanged" iff their
// full value maps are equal; the timestamp does not participate.
type Status struct {
	Values   map[string]string
	Observed time.Time
}

// Equal reports whether the full value maps match
func (s Status) Equal(other Status) bool {
	if len(s.Values) != len(other.Values) {
		return false
	}
	for field, value := range s.Values {
		if other.Values[field] != value {
			return false
		}
	}
	return true
}

// CanonicalValues encodes a value map as JSON, giving a stable
// representation for map identity and storage. encoding/json sorts map keys,
// so equal maps always encode identically.
func CanonicalValues(values map[string]string) string {
	if values == nil {
		values = map[string]string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// subsetValues extracts the named fields from a result row
func subsetValues(row map[string]string, fields []string) map[string]string {
	subset := make(map[string]string, len(fields))
	for _, field := range fields {
		if value, ok := row[field]; ok {
			subset[field] = value
		}
	}
	return subset
}
