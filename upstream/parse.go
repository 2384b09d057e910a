package upstream

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/st-keller/librefollow/types"
)

// Response field names.
const (
	fieldFirstName  = "firstName"
	fieldLastName   = "lastName"
	fieldActivation = "activationUnix"
	fieldSensorName = "ptName"
	fieldTimestamp  = "Timestamp"
	fieldTrendArrow = "SinceLastTrendArrow"
	fieldColorName  = "MeasurementColorName"
)

const (
	missingName  = "?"
	missingArrow = "N/A"
)

// ParsePatient never fails: absent or non-string names become "?".
func ParsePatient(obj map[string]any) types.PatientInfo {
	return types.PatientInfo{
		FirstName: stringOr(obj, fieldFirstName, missingName),
		LastName:  stringOr(obj, fieldLastName, missingName),
	}
}

// ParseSensor requires an integer activationUnix; ptName is optional.
func ParseSensor(obj map[string]any) (types.SensorInfo, error) {
	secs, ok := intField(obj, fieldActivation)
	if !ok {
		return types.SensorInfo{}, fmt.Errorf("%w: %s missing or not an integer", ErrMalformed, fieldActivation)
	}
	label, _ := obj[fieldSensorName].(string)
	return types.SensorInfo{
		Activation: time.Unix(secs, 0).UTC(),
		Label:      label,
	}, nil
}

// ParseMeasurement reads the fields for unit. A value that is absent or of
// the wrong type becomes 0. A timestamp that does not parse yields the
// measurement together with ErrTimestamp.
func ParseMeasurement(obj map[string]any, unit types.Unit) (types.Measurement, error) {
	raw := stringOr(obj, fieldTimestamp, "")
	m := types.Measurement{
		RawTimestamp: raw,
		TrendArrow:   stringOr(obj, fieldTrendArrow, missingArrow),
		Color:        types.ParseColor(stringOr(obj, fieldColorName, "")),
		Unit:         unit,
	}

	switch unit {
	case types.MmolPerL:
		if d, ok := decimalField(obj, unit.ValueField()); ok {
			m.Value = d.Round(1).InexactFloat64()
		}
	default:
		if n, ok := intField(obj, unit.ValueField()); ok {
			m.Value = float64(n)
		}
	}

	ts, err := ParseTimestamp(raw)
	if err != nil {
		return m, err
	}
	m.Timestamp = ts
	m.TimestampValid = true
	return m, nil
}

// ParseTimestamp parses an ISO-8601 instant such as
// "2025-01-05T22:33:54.000Z". Fractional seconds are optional.
func ParseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, raw)
	}
	return ts, nil
}

func stringOr(obj map[string]any, key, fallback string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return fallback
}

// intField accepts JSON numbers with an integral value.
func intField(obj map[string]any, key string) (int64, bool) {
	n, ok := obj[key].(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func decimalField(obj map[string]any, key string) (decimal.Decimal, bool) {
	n, ok := obj[key].(json.Number)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
