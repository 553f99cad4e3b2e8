// Package store persists readings, accounts, volunteer assignments and sessions in PostgreSQL.
package store

import (
	"time"

	"procodus.dev/vitals/pkg/vitals"
)

// Reading is one append-only row of wristband_data.
type Reading struct {
	CreatedAt time.Time `gorm:"index:idx_user_created,priority:2;index:idx_created;not null"`
	DeviceID  string    `gorm:"index:idx_device;not null"`
	UserID    string    `gorm:"index:idx_user_created,priority:1;not null"`
	Temp      float64   `gorm:"not null"`
	ID        uint      `gorm:"primaryKey"`
	HR        int       `gorm:"column:hr;not null"`
	SpO2      int       `gorm:"column:spo2;not null"`
	Systolic  int       `gorm:"column:bp_sys;not null"`
	Diastolic int       `gorm:"column:bp_dia;not null"`
}

// TableName specifies the table name for Reading.
func (Reading) TableName() string {
	return "wristband_data"
}

// Vitals converts the row to the domain reading.
func (r Reading) Vitals() vitals.Reading {
	return vitals.Reading{
		CreatedAt: r.CreatedAt,
		DeviceID:  r.DeviceID,
		UserID:    r.UserID,
		Temp:      r.Temp,
		HR:        r.HR,
		SpO2:      r.SpO2,
		Systolic:  r.Systolic,
		Diastolic: r.Diastolic,
	}
}

// FromVitals builds a row from a domain reading. The id is left for the database.
func FromVitals(v vitals.Reading) Reading {
	return Reading{
		CreatedAt: v.CreatedAt,
		DeviceID:  v.DeviceID,
		UserID:    v.UserID,
		Temp:      v.Temp,
		HR:        v.HR,
		SpO2:      v.SpO2,
		Systolic:  v.Systolic,
		Diastolic: v.Diastolic,
	}
}

// ToVitals converts a slice of rows preserving order.
func ToVitals(rows []Reading) []vitals.Reading {
	out := make([]vitals.Reading, len(rows))
	for i, r := range rows {
		out[i] = r.Vitals()
	}
	return out
}

// User is a patient account.
type User struct {
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	ID           string    `gorm:"primaryKey;type:uuid"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	FullName     string
}

// TableName specifies the table name for User.
func (User) TableName() string {
	return "users"
}

// Profile is the medical and contact profile of a patient, keyed by user id.
type Profile struct {
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
	DateOfBirth      *time.Time
	UserID           string `gorm:"primaryKey;type:uuid"`
	FullName         string
	Gender           string
	BloodGroup       string
	ExistingDiseases string
	Medications      string
	Allergies        string
	FamilyHistory    string
	Smoking          string
	Alcohol          string
	Diet             string
	Exercise         string
	Phone            string
	Address          string
	Occupation       string
	City             string
	Region           string
	Country          string
	Height           float64
	Weight           float64
	SleepHours       float64
	Age              int
}

// TableName specifies the table name for Profile.
func (Profile) TableName() string {
	return "user_profiles"
}

// Volunteer is a care volunteer account.
type Volunteer struct {
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	LastLogin    *time.Time
	ID           string `gorm:"primaryKey;type:uuid"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	IsActive     bool   `gorm:"not null"`
}

// TableName specifies the table name for Volunteer.
func (Volunteer) TableName() string {
	return "volunteers"
}

// Assignment links a volunteer to a patient they look after.
type Assignment struct {
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	VolunteerID string    `gorm:"uniqueIndex:idx_volunteer_user;type:uuid;not null"`
	UserID      string    `gorm:"uniqueIndex:idx_volunteer_user;type:uuid;not null"`
	Notes       string
	ID          uint `gorm:"primaryKey"`
}

// TableName specifies the table name for Assignment.
func (Assignment) TableName() string {
	return "volunteer_user_assignments"
}

// Role distinguishes patient and volunteer sessions.
type Role string

const (
	RolePatient   Role = "patient"
	RoleVolunteer Role = "volunteer"
)

// Session is a server-side login session referenced by an opaque cookie token.
type Session struct {
	ExpiresAt time.Time `gorm:"index:idx_session_expiry;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	Token     string    `gorm:"primaryKey"`
	SubjectID string    `gorm:"index;not null"`
	Role      Role      `gorm:"not null"`
}

// TableName specifies the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
