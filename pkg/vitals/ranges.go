// Package vitals holds the wristband vital-sign domain: the range table, plausibility
// validation, blood-pressure estimation and three-level status classification.
package vitals

// Interval is a closed numeric interval. Values equal to Min or Max are inside.
type Interval struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the closed interval.
func (i Interval) Contains(v float64) bool {
	return v >= i.Min && v <= i.Max
}

// BandedRange describes a vital classified with a critical interval nested around a
// warning interval, plus the absolute plausibility bounds used for validation.
type BandedRange struct {
	Critical  Interval
	Warning   Interval
	Plausible Interval
}

// ThresholdRange describes a vital that only has lower thresholds (SpO2).
type ThresholdRange struct {
	Plausible Interval
	Critical  float64
	Warning   float64
}

// BloodPressureRange holds the per-component bands for blood pressure.
type BloodPressureRange struct {
	Systolic  BandedRange
	Diastolic BandedRange
}

// Ranges is the vital range table.
type Ranges struct {
	BloodPressure BloodPressureRange
	HeartRate     BandedRange
	Temperature   BandedRange
	SpO2          ThresholdRange
}

var defaultRanges = Ranges{
	HeartRate: BandedRange{
		Critical:  Interval{Min: 60, Max: 100},
		Warning:   Interval{Min: 70, Max: 90},
		Plausible: Interval{Min: 30, Max: 200},
	},
	Temperature: BandedRange{
		Critical:  Interval{Min: 36, Max: 37.5},
		Warning:   Interval{Min: 36.5, Max: 37.2},
		Plausible: Interval{Min: 30, Max: 45},
	},
	SpO2: ThresholdRange{
		Critical:  95,
		Warning:   97,
		Plausible: Interval{Min: 70, Max: 100},
	},
	BloodPressure: BloodPressureRange{
		Systolic: BandedRange{
			Critical:  Interval{Min: 90, Max: 140},
			Warning:   Interval{Min: 100, Max: 130},
			Plausible: Interval{Min: 80, Max: 180},
		},
		Diastolic: BandedRange{
			Critical:  Interval{Min: 60, Max: 90},
			Warning:   Interval{Min: 65, Max: 85},
			Plausible: Interval{Min: 50, Max: 110},
		},
	},
}

// DefaultRanges returns a copy of the range table. The table itself is never mutated.
func DefaultRanges() Ranges {
	return defaultRanges
}
