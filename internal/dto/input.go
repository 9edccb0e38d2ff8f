package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimestamp reports a timestamp value that matches none of the accepted layouts.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Zone-less layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a client supplied timestamp and normalises it to UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// TimestampInput carries a timestamp field exactly as the client sent it. Absent, null, and empty
// values leave it unset; any other JSON value is kept for parsing.
type TimestampInput struct {
	Raw string
	Set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TimestampInput) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*t = TimestampInput{}
		return nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		*t = TimestampInput{Raw: string(trimmed), Set: true}
		return nil
	}

	text = strings.TrimSpace(text)
	*t = TimestampInput{Raw: text, Set: text != ""}
	return nil
}

// Resolve returns the parsed timestamp, or now when the value is unset.
func (t TimestampInput) Resolve(now time.Time) (time.Time, error) {
	if !t.Set {
		return now.UTC(), nil
	}
	return ParseTimestamp(t.Raw)
}

// ResolveOrDefault returns the parsed timestamp, falling back to now when the value is unset or
// cannot be parsed.
func (t TimestampInput) ResolveOrDefault(now time.Time) time.Time {
	parsed, err := t.Resolve(now)
	if err != nil {
		return now.UTC()
	}
	return parsed
}

// Timestamp builds a set TimestampInput from a string.
func Timestamp(raw string) TimestampInput {
	raw = strings.TrimSpace(raw)
	return TimestampInput{Raw: raw, Set: raw != ""}
}

// CourseList is an ordered list of course names. Values that are not JSON arrays decode to an empty
// list; non-string and blank entries are dropped.
type CourseList []string

// UnmarshalJSON implements json.Unmarshaler.
func (c *CourseList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		*c = CourseList{}
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		*c = CourseList{}
		return nil
	}

	courses := make(CourseList, 0, len(raw))
	for _, item := range raw {
		text, ok := item.(string)
		if !ok {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			courses = append(courses, text)
		}
	}
	*c = courses
	return nil
}

// Values returns the courses as a non-nil slice.
func (c CourseList) Values() []string {
	if c == nil {
		return []string{}
	}
	return []string(c)
}
