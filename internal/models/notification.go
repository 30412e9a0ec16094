package models

import (
	"fmt"
	"strconv"
	"time"
)

// Severity classifies how far a reading deviates from its ideal range
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityNone     Severity = "none"
)

// Direction is the side of the ideal range a reading has left
type Direction string

const (
	DirectionHigh Direction = "high"
	DirectionLow  Direction = "low"
)

// IdealRange is the safe band for one metric.
type IdealRange struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Unit string  `json:"unit,omitempty" yaml:"unit"`
}

// Validate checks min < max
func (r IdealRange) Validate() error {
	if !(r.Min < r.Max) {
		return fmt.Errorf("min (%v) must be less than max (%v)", r.Min, r.Max)
	}
	return nil
}

// String formats the band as "<min> - <max><unit>"
func (r IdealRange) String() string {
	return fmt.Sprintf("%s - %s%s", formatBound(r.Min), formatBound(r.Max), r.Unit)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RangeCatalog maps metric keys to their ideal ranges
type RangeCatalog map[string]IdealRange

// Lookup returns the range for a metric, if one is configured
func (c RangeCatalog) Lookup(key string) (IdealRange, bool) {
	r, ok := c[key]
	return r, ok
}

// Notification is the persisted alert record.
// ID is "<key>_<severity>" and doubles as the dedup key.
type Notification struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Value     string    `json:"value"`
	Range     string    `json:"range"`
	Severity  Severity  `json:"severity"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Unread    bool      `json:"unread"`
}

// NotificationID builds the dedup key for a metric at a severity
func NotificationID(key string, severity Severity) string {
	return key + "_" + string(severity)
}
