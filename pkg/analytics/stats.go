package analytics

import (
	"procodus.dev/vitals/pkg/vitals"
)

// Summary holds the aggregate statistics shown on the analytics view.
type Summary struct {
	AvgHR        float64
	AvgTemp      float64
	AvgSpO2      float64
	AvgSystolic  float64
	AvgDiastolic float64
	HRTrend      float64
	TempTrend    float64
	SpO2Trend    float64
	MinHR        int
	MaxHR        int
	Total        int
	Devices      int
}

// Summarize computes averages and trends. Readings must be in ascending created_at order;
// the trend compares the last element to the one before it.
func Summarize(readings []vitals.Reading) Summary {
	if len(readings) == 0 {
		return Summary{}
	}

	s := Summary{
		Total:   len(readings),
		Devices: len(Devices(readings)),
		MinHR:   readings[0].HR,
		MaxHR:   readings[0].HR,
	}

	var hr, temp, spo2, sys, dia float64
	for _, r := range readings {
		hr += float64(r.HR)
		temp += r.Temp
		spo2 += float64(r.SpO2)
		sys += float64(r.Systolic)
		dia += float64(r.Diastolic)
		s.MinHR = min(s.MinHR, r.HR)
		s.MaxHR = max(s.MaxHR, r.HR)
	}

	n := float64(len(readings))
	s.AvgHR = hr / n
	s.AvgTemp = temp / n
	s.AvgSpO2 = spo2 / n
	s.AvgSystolic = sys / n
	s.AvgDiastolic = dia / n

	if len(readings) >= 2 {
		latest := readings[len(readings)-1]
		previous := readings[len(readings)-2]
		s.HRTrend = Trend(float64(latest.HR), float64(previous.HR))
		s.TempTrend = Trend(latest.Temp, previous.Temp)
		s.SpO2Trend = Trend(float64(latest.SpO2), float64(previous.SpO2))
	}

	return s
}

// Trend returns the percent change from previous to latest, or 0 when previous is 0.
func Trend(latest, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (latest - previous) / previous * 100
}
