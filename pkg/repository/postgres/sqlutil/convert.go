// Package sqlutil holds the small null-handling and JSON marshaling
// helpers the Postgres repositories share, so each repository file stays
// focused on its own queries rather than repeating conversion boilerplate.
package sqlutil

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ToNullTime converts a possibly-nil *time.Time into a sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// FromNullTime is the inverse of ToNullTime.
func FromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// ToNullString converts an empty string into an invalid sql.NullString,
// so optional text columns store NULL rather than "".
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToJSON marshals v, returning "null" bytes for a nil map so the column
// still receives valid JSON rather than an empty string.
func ToJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// FromJSON unmarshals raw JSON bytes into a map, treating NULL/empty
// columns as an empty-but-non-nil map.
func FromJSON(raw []byte) (map[string]any, error) {
	out := make(map[string]any)
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StringSlice marshals a []string to JSON for a jsonb column.
func StringSlice(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}

// ParseStringSlice unmarshals a jsonb column back into a []string.
func ParseStringSlice(raw []byte) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
