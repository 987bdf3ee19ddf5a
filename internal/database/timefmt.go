package database

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC ISO-8601 format every instant is stored
// in. Lexical order of stored values equals time order.
const TimeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t for storage, truncated to the second.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// NullTime renders an optional instant for storage.
func NullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// ParseTime parses a stored instant.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("database: bad timestamp %q: %w", s, err)
	}
	return t, nil
}

// ParseNullTime parses an optional stored instant.
func ParseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// NullString converts an optional string for storage.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr converts a nullable column into an optional string.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
