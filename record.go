package occasync

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one schema-less entity instance stored in a collection.
// The store enforces no schema; callers (users, listings, messages,
// transactions) assume specific shapes.
type Record map[string]interface{}

// Normalize returns a deep copy of the record with all values reduced to
// their JSON forms: numbers become float64, nested structures become plain
// maps and slices. Inserting normalized records guarantees that what comes
// back from FindOne is deeply equal to what went in, in both backing modes.
func (r Record) Normalize() (Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("normalize record: %w", err)
	}

	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize record: %w", err)
	}
	return out, nil
}

// Clone returns a deep copy via a JSON round-trip
func (r Record) Clone() Record {
	out, err := r.Normalize()
	if err != nil {
		// A record that made it into the store always re-marshals
		return Record{}
	}
	return out
}

// ID returns the record's "id" field if it is a string, else ""
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// StringField returns the named field as a string, or "" when absent or
// not a string
func (r Record) StringField(name string) string {
	s, _ := r[name].(string)
	return s
}

// stringify renders a field value for regex matching the way the original
// store did: missing and nil values become the empty string
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
