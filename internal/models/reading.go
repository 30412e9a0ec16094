package models

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Batch is a raw reading batch as delivered by a data source:
// metric key -> number or numeric string.
type Batch map[string]any

// Keys returns the batch keys in sorted order.
func (b Batch) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Numeric returns the parsable subset of the batch.
func (b Batch) Numeric() map[string]float64 {
	values := make(map[string]float64, len(b))
	for k, raw := range b {
		if v, ok := ParseValue(raw); ok {
			values[k] = v
		}
	}
	return values
}

// ParseValue converts a raw reading value to a float.
// Non-numeric, NaN and infinite values report false.
func ParseValue(raw any) (float64, bool) {
	var v float64
	switch x := raw.(type) {
	case nil, bool:
		return 0, false
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		rv := reflect.ValueOf(raw)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			v = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			v = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			v = float64(rv.Uint())
		default:
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Reading is one timestamped snapshot of parsed metric values from a device.
type Reading struct {
	DeviceID  string             `json:"device_id"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// IsValid checks that the reading is attributable and carries data
func (r *Reading) IsValid() bool {
	if r.DeviceID == "" {
		return false
	}
	if r.Timestamp.IsZero() {
		return false
	}
	return len(r.Values) > 0
}

// get the reading as a string
func (r *Reading) String() string {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.1f", k, r.Values[k]))
	}
	return fmt.Sprintf("DeviceID: %s, Timestamp: %s, Values: [%s]",
		r.DeviceID,
		r.Timestamp.Format(time.RFC3339),
		strings.Join(parts, " "))
}

// NewReading creates a new Reading from a raw batch with the current timestamp
func NewReading(deviceID string, batch Batch) *Reading {
	return &Reading{
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Values:    batch.Numeric(),
	}
}

// Copy returns a deep copy of the Reading
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	values := make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return &Reading{
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp,
		Values:    values,
	}
}
