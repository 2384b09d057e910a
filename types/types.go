// Package types defines the glucose follower data model shared by all packages.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the configured glucose unit. It selects the measurement endpoint
// and the value field read from it.
type Unit int

const (
	MgPerDl  Unit = iota // integer values, /measurement-mgdl
	MmolPerL             // one-decimal values, /measurement-mmol
)

// ParseUnit accepts "mgdl", "mg/dl", "mmol" and "mmol/l" (case-insensitive).
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mgdl", "mg/dl":
		return MgPerDl, nil
	case "mmol", "mmol/l":
		return MmolPerL, nil
	default:
		return MgPerDl, fmt.Errorf("unknown unit %q (want mgdl or mmol)", s)
	}
}

// Path returns the measurement endpoint path for the unit.
func (u Unit) Path() string {
	if u == MmolPerL {
		return "/measurement-mmol"
	}
	return "/measurement-mgdl"
}

// ValueField returns the JSON field holding the value in this unit.
func (u Unit) ValueField() string {
	if u == MmolPerL {
		return "ValueInMmolPerL"
	}
	return "ValueInMgPerDl"
}

// String returns the display label.
func (u Unit) String() string {
	switch u {
	case MgPerDl:
		return "mg/dL"
	case MmolPerL:
		return "mmol/L"
	default:
		return fmt.Sprintf("Invalid(%d)", int(u))
	}
}

// ColorClass classifies a measurement into the server's color bands.
type ColorClass string

const (
	ColorGreen   ColorClass = "green"
	ColorYellow  ColorClass = "yellow"
	ColorOrange  ColorClass = "orange"
	ColorRed     ColorClass = "red"
	ColorUnknown ColorClass = "unknown"
)

// ParseColor maps a server color name case-insensitively. Unrecognized names
// map to ColorUnknown.
func ParseColor(name string) ColorClass {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "green":
		return ColorGreen
	case "yellow":
		return ColorYellow
	case "orange":
		return ColorOrange
	case "red":
		return ColorRed
	default:
		return ColorUnknown
	}
}

// PatientInfo is the followed patient's name as reported by the server.
type PatientInfo struct {
	FirstName string
	LastName  string
}

// DisplayName joins first and last name.
func (p PatientInfo) DisplayName() string {
	return p.FirstName + " " + p.LastName
}

// SensorInfo is the server-reported sensor metadata.
type SensorInfo struct {
	Activation time.Time
	Label      string // empty when the server sent no ptName
}

// Measurement is one reading. It is always replaced as a whole.
type Measurement struct {
	Timestamp      time.Time // zero when RawTimestamp did not parse
	RawTimestamp   string
	TimestampValid bool
	TrendArrow     string
	Color          ColorClass
	Value          float64 // integral for mg/dL, rounded to one place for mmol/L
	Unit           Unit
}

// DisplayState is the reconciled snapshot read by presentation layers.
// Values are immutable once published.
type DisplayState struct {
	SessionID string `json:"session_id,omitempty"`

	Patient string `json:"patient,omitempty"`

	HasMeasurement bool       `json:"has_measurement"`
	Value          string     `json:"value,omitempty"`
	Unit           string     `json:"unit"`
	TrendArrow     string     `json:"trend_arrow,omitempty"`
	Color          ColorClass `json:"color"`
	ReadingTime    string     `json:"reading_time"`
	MeasuredAt     *time.Time `json:"measured_at,omitempty"`

	NextFetchAt         *time.Time `json:"next_fetch_at,omitempty"`
	NextUpdateCountdown string     `json:"next_update_countdown,omitempty"`

	SensorLabel          string     `json:"sensor_label,omitempty"`
	SensorActivation     *time.Time `json:"sensor_activation,omitempty"`
	InGracePeriod        bool       `json:"in_grace_period"`
	SensorReadyCountdown string     `json:"sensor_ready_countdown,omitempty"`
	SensorExpiry         string     `json:"sensor_expiry"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Reading is the subset of DisplayState that only changes when fetched data
// changes. Countdowns are excluded so that it is stable between fetches.
type Reading struct {
	Patient       string     `json:"patient,omitempty"`
	Value         string     `json:"value,omitempty"`
	Unit          string     `json:"unit"`
	TrendArrow    string     `json:"trend_arrow,omitempty"`
	Color         ColorClass `json:"color"`
	MeasuredAt    *time.Time `json:"measured_at,omitempty"`
	SensorLabel   string     `json:"sensor_label,omitempty"`
	InGracePeriod bool       `json:"in_grace_period"`
}

// Reading extracts the fetch-driven fields. ok is false until a measurement
// has been received.
func (d DisplayState) Reading() (r Reading, ok bool) {
	if !d.HasMeasurement {
		return Reading{}, false
	}
	return Reading{
		Patient:       d.Patient,
		Value:         d.Value,
		Unit:          d.Unit,
		TrendArrow:    d.TrendArrow,
		Color:         d.Color,
		MeasuredAt:    d.MeasuredAt,
		SensorLabel:   d.SensorLabel,
		InGracePeriod: d.InGracePeriod,
	}, true
}
