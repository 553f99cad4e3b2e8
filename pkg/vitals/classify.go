package vitals

// Status is the three-level classification of a vital. Higher values are more severe.
type Status int

const (
	StatusNormal Status = iota
	StatusModerate
	StatusDanger
)

// String returns the lower-case name used in views and logs.
func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusModerate:
		return "moderate"
	case StatusDanger:
		return "danger"
	default:
		return "unknown"
	}
}

// Kind names a classifiable scalar vital.
type Kind string

const (
	KindHeartRate   Kind = "hr"
	KindTemperature Kind = "temp"
	KindSpO2        Kind = "spo2"
)

// Classify maps a scalar vital to a status. Unknown kinds are normal.
func Classify(kind Kind, value float64) Status {
	switch kind {
	case KindHeartRate:
		return classifyBanded(defaultRanges.HeartRate, value)
	case KindTemperature:
		return classifyBanded(defaultRanges.Temperature, value)
	case KindSpO2:
		r := defaultRanges.SpO2
		switch {
		case value < r.Critical:
			return StatusDanger
		case value < r.Warning:
			return StatusModerate
		default:
			return StatusNormal
		}
	default:
		return StatusNormal
	}
}

// ClassifyBloodPressure evaluates both components independently; the first breached band
// decides.
func ClassifyBloodPressure(systolic, diastolic int) Status {
	bp := defaultRanges.BloodPressure
	sys, dia := float64(systolic), float64(diastolic)

	if !bp.Systolic.Critical.Contains(sys) || !bp.Diastolic.Critical.Contains(dia) {
		return StatusDanger
	}
	if !bp.Systolic.Warning.Contains(sys) || !bp.Diastolic.Warning.Contains(dia) {
		return StatusModerate
	}
	return StatusNormal
}

func classifyBanded(r BandedRange, value float64) Status {
	if !r.Critical.Contains(value) {
		return StatusDanger
	}
	if !r.Warning.Contains(value) {
		return StatusModerate
	}
	return StatusNormal
}

// MaxStatus returns the most severe of the given statuses.
func MaxStatus(statuses ...Status) Status {
	out := StatusNormal
	for _, s := range statuses {
		if s > out {
			out = s
		}
	}
	return out
}

// Assessment is the derived, never persisted, status of one reading.
type Assessment struct {
	HeartRate     Status
	Temperature   Status
	SpO2          Status
	BloodPressure Status
	Overall       Status
}

// ClassifyReading classifies every vital of r. Overall is the most severe of the four.
func ClassifyReading(r Reading) Assessment {
	a := Assessment{
		HeartRate:     Classify(KindHeartRate, float64(r.HR)),
		Temperature:   Classify(KindTemperature, r.Temp),
		SpO2:          Classify(KindSpO2, float64(r.SpO2)),
		BloodPressure: ClassifyBloodPressure(r.Systolic, r.Diastolic),
	}
	a.Overall = MaxStatus(a.HeartRate, a.Temperature, a.SpO2, a.BloodPressure)
	return a
}
