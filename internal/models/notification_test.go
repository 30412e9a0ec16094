package models

import "testing"

func TestIdealRange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		r       IdealRange
		wantErr bool
	}{
		{"ordered", IdealRange{Min: 20, Max: 30}, false},
		{"equal", IdealRange{Min: 5, Max: 5}, true},
		{"inverted", IdealRange{Min: 30, Max: 20}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIdealRange_String(t *testing.T) {
	tests := []struct {
		r    IdealRange
		want string
	}{
		{IdealRange{Min: 20, Max: 30, Unit: "°C"}, "20 - 30°C"},
		{IdealRange{Min: 5.5, Max: 6.5}, "5.5 - 6.5"},
		{IdealRange{Min: 800, Max: 1200, Unit: "ppm"}, "800 - 1200ppm"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRangeCatalog_Lookup(t *testing.T) {
	c := RangeCatalog{"temperature": {Min: 20, Max: 30}}

	if _, ok := c.Lookup("temperature"); !ok {
		t.Error("temperature should be found")
	}
	if _, ok := c.Lookup("ph"); ok {
		t.Error("ph should not be found")
	}
}

func TestNotificationID(t *testing.T) {
	if got := NotificationID("water_level", SeverityCritical); got != "water_level_critical" {
		t.Errorf("NotificationID = %q", got)
	}
	if got := NotificationID("ph", SeverityWarning); got != "ph_warning" {
		t.Errorf("NotificationID = %q", got)
	}
}
