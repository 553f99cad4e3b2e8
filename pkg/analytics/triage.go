package analytics

import (
	"sort"

	"procodus.dev/vitals/pkg/vitals"
)

// PatientStatus pairs a patient's latest reading with its assessment.
type PatientStatus struct {
	Reading    vitals.Reading
	Assessment vitals.Assessment
}

// TriageSummary is the volunteer-wide overview of the latest readings.
type TriageSummary struct {
	Patients      []PatientStatus
	DangerCount   int
	ModerateCount int
	NormalCount   int
	AvgHR         float64
	AvgTemp       float64
	AvgSpO2       float64
}

// LatestPerPatient keeps the newest reading for every (user, device) pair. Input order does
// not matter.
func LatestPerPatient(readings []vitals.Reading) []vitals.Reading {
	latest := make(map[string]vitals.Reading, len(readings))
	order := make([]string, 0)
	for _, r := range readings {
		key := r.PatientKey()
		cur, ok := latest[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || r.CreatedAt.After(cur.CreatedAt) {
			latest[key] = r
		}
	}

	out := make([]vitals.Reading, 0, len(order))
	for _, key := range order {
		out = append(out, latest[key])
	}
	return out
}

// Triage classifies each latest reading and orders patients most severe first, newest first
// within a severity.
func Triage(latest []vitals.Reading) TriageSummary {
	var t TriageSummary
	if len(latest) == 0 {
		return t
	}

	var hr, temp, spo2 float64
	t.Patients = make([]PatientStatus, 0, len(latest))
	for _, r := range latest {
		a := vitals.ClassifyReading(r)
		switch a.Overall {
		case vitals.StatusDanger:
			t.DangerCount++
		case vitals.StatusModerate:
			t.ModerateCount++
		default:
			t.NormalCount++
		}
		hr += float64(r.HR)
		temp += r.Temp
		spo2 += float64(r.SpO2)
		t.Patients = append(t.Patients, PatientStatus{Reading: r, Assessment: a})
	}

	n := float64(len(latest))
	t.AvgHR = hr / n
	t.AvgTemp = temp / n
	t.AvgSpO2 = spo2 / n

	sort.SliceStable(t.Patients, func(i, j int) bool {
		a, b := t.Patients[i], t.Patients[j]
		if a.Assessment.Overall != b.Assessment.Overall {
			return a.Assessment.Overall > b.Assessment.Overall
		}
		return a.Reading.CreatedAt.After(b.Reading.CreatedAt)
	})

	return t
}
