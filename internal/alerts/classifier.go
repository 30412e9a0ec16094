// Package alerts turns sensor readings into a bounded, deduplicated
// notification feed.
package alerts

import "github.com/afroash/hydro-monitor/internal/models"

// Warning band factors applied to the ideal range bounds.
const (
	trendHighFactor = 0.9
	trendLowFactor  = 1.1
)

const (
	fallbackAction = "Check system controls"
	warningAction  = "Monitor closely"
	fallbackIcon   = "🔔"
)

// Verdict is the classification of one reading against its ideal range
type Verdict struct {
	Severity  models.Severity
	Direction models.Direction
	Label     string
}

// IsAlert reports whether the verdict needs a notification
func (v Verdict) IsAlert() bool {
	return v.Severity == models.SeverityCritical || v.Severity == models.SeverityWarning
}

// Classify checks value against r. Critical bounds are tested before the
// warning band; the first match wins.
func Classify(value float64, r models.IdealRange) Verdict {
	switch {
	case value > r.Max:
		return Verdict{Severity: models.SeverityCritical, Direction: models.DirectionHigh, Label: "HIGH"}
	case value < r.Min:
		return Verdict{Severity: models.SeverityCritical, Direction: models.DirectionLow, Label: "LOW"}
	case value > r.Max*trendHighFactor:
		return Verdict{Severity: models.SeverityWarning, Direction: models.DirectionHigh, Label: "TRENDING HIGH"}
	case value < r.Min*trendLowFactor:
		return Verdict{Severity: models.SeverityWarning, Direction: models.DirectionLow, Label: "TRENDING LOW"}
	default:
		return Verdict{Severity: models.SeverityNone}
	}
}

// actionTable holds remediation suggestions per metric and direction.
var actionTable = map[string]map[models.Direction]string{
	"temperature": {models.DirectionHigh: "Turn ON Environmental Fan", models.DirectionLow: "Increase Heater Power"},
	"ph":          {models.DirectionHigh: "Run pH-Down Pump", models.DirectionLow: "Run pH-Up Pump"},
	"tds":         {models.DirectionHigh: "Dilute with Fresh Water", models.DirectionLow: "Run Nutrient Pumps"},
	"humidity":    {models.DirectionHigh: "Increase Ventilation", models.DirectionLow: "Run Humidifier"},
	"water_level": {models.DirectionLow: "Refill Reservoir"},
	"gas":         {models.DirectionHigh: "EVACUATE / VENTILATE"},
}

var iconTable = map[string]string{
	"temperature": "🌡️",
	"ph":          "🧪",
	"tds":         "💧",
	"humidity":    "☁️",
	"water_level": "🛢️",
	"gas":         "🛑",
	"cpu_temp":    "💻",
}

// ActionFor returns the suggested remediation for a metric leaving its range
// in the given direction.
func ActionFor(key string, dir models.Direction) string {
	if action, ok := actionTable[key][dir]; ok {
		return action
	}
	return fallbackAction
}

// Action picks the action text for a verdict. Warnings never trigger
// remediation.
func Action(key string, v Verdict) string {
	if v.Severity == models.SeverityWarning {
		return warningAction
	}
	return ActionFor(key, v.Direction)
}

// IconFor returns the display icon for a metric.
func IconFor(key string) string {
	if icon, ok := iconTable[key]; ok {
		return icon
	}
	return fallbackIcon
}
