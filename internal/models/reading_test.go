// internal/models/reading_test.go
package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		want   float64
		wantOK bool
	}{
		{"float64", 22.5, 22.5, true},
		{"int", 31, 31, true},
		{"uint8", uint8(7), 7, true},
		{"float32", float32(1.5), 1.5, true},
		{"numeric string", "6.2", 6.2, true},
		{"padded string", "  1200 ", 1200, true},
		{"json number", json.Number("5.5"), 5.5, true},
		{"empty string", "", 0, false},
		{"word", "offline", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"NaN", math.NaN(), 0, false},
		{"NaN string", "NaN", 0, false},
		{"Inf", math.Inf(1), 0, false},
		{"slice", []int{1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseValue(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ParseValue(%v) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseValue(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBatch_KeysSorted(t *testing.T) {
	b := Batch{"tds": 900, "ph": 6.0, "humidity": 50}
	keys := b.Keys()
	want := []string{"humidity", "ph", "tds"}
	if len(keys) != len(want) {
		t.Fatalf("len(Keys()) = %d, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestBatch_Numeric(t *testing.T) {
	b := Batch{"temperature": "24.5", "ph": 6.1, "status": "ok"}
	values := b.Numeric()

	if len(values) != 2 {
		t.Fatalf("len(Numeric()) = %d, want 2", len(values))
	}
	if values["temperature"] != 24.5 {
		t.Errorf("temperature = %v, want 24.5", values["temperature"])
	}
	if _, ok := values["status"]; ok {
		t.Error("status should have been dropped")
	}
}

func TestReading_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		reading  Reading
		expected bool
	}{
		{
			name: "valid reading",
			reading: Reading{
				DeviceID:  "hydro-01",
				Timestamp: time.Now(),
				Values:    map[string]float64{"temperature": 22.5},
			},
			expected: true,
		},
		{
			name: "missing device",
			reading: Reading{
				Timestamp: time.Now(),
				Values:    map[string]float64{"temperature": 22.5},
			},
			expected: false,
		},
		{
			name: "zero timestamp",
			reading: Reading{
				DeviceID: "hydro-01",
				Values:   map[string]float64{"temperature": 22.5},
			},
			expected: false,
		},
		{
			name: "no values",
			reading: Reading{
				DeviceID:  "hydro-01",
				Timestamp: time.Now(),
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.reading.IsValid()
			if result != tt.expected {
				t.Errorf("IsValid() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestNewReading(t *testing.T) {
	reading := NewReading("hydro-01", Batch{"temperature": 22.5, "gas": "n/a"})

	if reading == nil {
		t.Fatal("NewReading returned nil")
	}
	if reading.DeviceID != "hydro-01" {
		t.Errorf("DeviceID = %v, want hydro-01", reading.DeviceID)
	}
	if reading.Values["temperature"] != 22.5 {
		t.Errorf("temperature = %v, want 22.5", reading.Values["temperature"])
	}
	if _, ok := reading.Values["gas"]; ok {
		t.Error("non-numeric gas value should be skipped")
	}
	if reading.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestReading_CopyIsDeep(t *testing.T) {
	original := NewReading("hydro-01", Batch{"ph": 6.0})
	cp := original.Copy()
	cp.Values["ph"] = 9.9

	if original.Values["ph"] != 6.0 {
		t.Errorf("original mutated through copy: ph = %v", original.Values["ph"])
	}

	var nilReading *Reading
	if nilReading.Copy() != nil {
		t.Error("Copy of nil should be nil")
	}
}

func TestReading_String(t *testing.T) {
	r := &Reading{
		DeviceID:  "hydro-01",
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Values:    map[string]float64{"tds": 950, "ph": 6.04},
	}
	want := "DeviceID: hydro-01, Timestamp: 2024-01-01T12:00:00Z, Values: [ph=6.0 tds=950.0]"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
