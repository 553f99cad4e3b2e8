package vitals

import "math"

// EstimateBloodPressure derives a heuristic systolic/diastolic pair from heart rate and SpO2.
// It is a surrogate for wristbands without a cuff, not a medical measurement. Output is
// always clamped to the BP plausibility bounds.
func EstimateBloodPressure(hr, spo2 int) (systolic, diastolic int) {
	hrOffset := float64(hr - 60)
	desaturation := float64(100 - spo2)

	sys := math.Round(90 + hrOffset*0.8 + desaturation*1.2)
	dia := math.Round(60 + hrOffset*0.4 + desaturation*0.8)

	bp := defaultRanges.BloodPressure
	return clamp(sys, bp.Systolic.Plausible), clamp(dia, bp.Diastolic.Plausible)
}

func clamp(v float64, bounds Interval) int {
	return int(math.Max(bounds.Min, math.Min(bounds.Max, v)))
}
