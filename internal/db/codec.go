package db

import (
	"encoding/json"
	"fmt"
	"time"
)

// sqlTimeLayout is fixed-width UTC so stored timestamps compare correctly
// both in SQL and lexicographically. It matches the strftime default used by
// the migrations.
const sqlTimeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(sqlTimeLayout, value)
	if err != nil {
		// Tolerate rows written by other tools with full RFC 3339 stamps.
		t, err = time.Parse(time.RFC3339Nano, value)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(out), nil
}

func decodeStrings(value string) ([]string, error) {
	if value == "" || value == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return out, nil
}

func encodeInt64s(values []int64) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode key list: %w", err)
	}
	return string(out), nil
}

func decodeInt64s(value string) ([]int64, error) {
	if value == "" || value == "[]" {
		return nil, nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, fmt.Errorf("decode key list: %w", err)
	}
	return out, nil
}
