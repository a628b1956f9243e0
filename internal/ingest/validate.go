// Package ingest accepts traffic observations from external producers.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/trafficwatch/backend/internal/traffic"
)

// maxUnixSeconds is 9999-12-31T23:59:59Z.
const maxUnixSeconds = 253402300799

type RejectReason string

const (
	MissingField   RejectReason = "missing_field"
	MalformedField RejectReason = "malformed_field"
)

// ValidationError rejects one submission. Field is "body" when the payload
// is not a JSON object at all.
type ValidationError struct {
	Reason RejectReason
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", e.Reason, e.Field, e.Detail)
}

func missing(field string) *ValidationError {
	return &ValidationError{Reason: MissingField, Field: field, Detail: "field is required"}
}

func malformed(field, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: MalformedField, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// Parse validates a submission and builds the event it describes. Fields
// are checked in a fixed order so the first failure is deterministic.
func Parse(raw []byte) (traffic.Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return traffic.Event{}, malformed("body", "expected a JSON object")
	}

	ip, err := stringField(fields, "ip")
	if err != nil {
		return traffic.Event{}, err
	}
	lat, err := numberField(fields, "latitude", -90, 90)
	if err != nil {
		return traffic.Event{}, err
	}
	lon, err := numberField(fields, "longitude", -180, 180)
	if err != nil {
		return traffic.Event{}, err
	}
	ts, err := numberField(fields, "timestamp", 0, maxUnixSeconds)
	if err != nil {
		return traffic.Event{}, err
	}
	suspicious, err := boolField(fields, "suspicious")
	if err != nil {
		return traffic.Event{}, err
	}

	at := unixSeconds(ts)
	return traffic.Event{
		Origin: &traffic.Origin{
			IP:        ip,
			Lat:       lat,
			Lon:       lon,
			Timestamp: at,
		},
		Protocol:   traffic.Unknown,
		Timestamp:  at,
		Suspicious: suspicious,
	}, nil
}

func lookup(fields map[string]json.RawMessage, name string) (json.RawMessage, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, missing(name)
	}
	return raw, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, err := lookup(fields, name)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", malformed(name, "expected a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", malformed(name, "must not be empty")
	}
	return s, nil
}

func numberField(fields map[string]json.RawMessage, name string, lo, hi float64) (float64, error) {
	raw, err := lookup(fields, name)
	if err != nil {
		return 0, err
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, malformed(name, "expected a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return 0, malformed(name, "%v is out of range", v)
	}
	return v, nil
}

// boolField accepts a JSON bool, a number (non-zero is true) or a string
// understood by strconv.ParseBool.
func boolField(fields map[string]json.RawMessage, name string) (bool, error) {
	raw, err := lookup(fields, name)
	if err != nil {
		return false, err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, malformed(name, "expected a boolean")
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, malformed(name, "%q is not a boolean", t)
		}
		return b, nil
	}
	return false, malformed(name, "expected a boolean")
}

func unixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
