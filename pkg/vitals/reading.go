package vitals

import "time"

// Reading is one vital-signs sample sent by a wristband. Readings are immutable once
// persisted.
type Reading struct {
	CreatedAt time.Time `json:"created_at"`
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id,omitempty"`
	Temp      float64   `json:"temp"`
	HR        int       `json:"hr"`
	SpO2      int       `json:"spo2"`
	Systolic  int       `json:"bp_sys"`
	Diastolic int       `json:"bp_dia"`
}

// PatientKey identifies the patient/device pair a reading belongs to.
func (r Reading) PatientKey() string {
	return r.UserID + "/" + r.DeviceID
}
