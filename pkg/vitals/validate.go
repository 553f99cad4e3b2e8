package vitals

import (
	"fmt"
)

// ValidationError describes a rejected vital value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks that the raw vitals lie within the plausibility bounds of the range table.
// A zero value is treated as missing and always fails, even where zero would be a real sensor
// output.
func Validate(hr int, temp float64, spo2 int) error {
	r := defaultRanges

	if hr == 0 {
		return &ValidationError{Field: "hr", Reason: "missing"}
	}
	if !r.HeartRate.Plausible.Contains(float64(hr)) {
		return outOfRange("hr", r.HeartRate.Plausible)
	}

	if spo2 == 0 {
		return &ValidationError{Field: "spo2", Reason: "missing"}
	}
	if !r.SpO2.Plausible.Contains(float64(spo2)) {
		return outOfRange("spo2", r.SpO2.Plausible)
	}

	if temp == 0 {
		return &ValidationError{Field: "temp", Reason: "missing"}
	}
	if !r.Temperature.Plausible.Contains(temp) {
		return outOfRange("temp", r.Temperature.Plausible)
	}

	return nil
}

// ValidateBloodPressure checks a device-supplied blood-pressure pair against the BP
// plausibility bounds.
func ValidateBloodPressure(systolic, diastolic int) error {
	bp := defaultRanges.BloodPressure

	if !bp.Systolic.Plausible.Contains(float64(systolic)) {
		return outOfRange("bp_sys", bp.Systolic.Plausible)
	}
	if !bp.Diastolic.Plausible.Contains(float64(diastolic)) {
		return outOfRange("bp_dia", bp.Diastolic.Plausible)
	}
	return nil
}

func outOfRange(field string, bounds Interval) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("must be between %g and %g", bounds.Min, bounds.Max),
	}
}
