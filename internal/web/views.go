package web

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/analytics"
	"procodus.dev/vitals/pkg/vitals"
)

//go:generate templ generate

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func statusClass(st vitals.Status) string {
	return "status-" + st.String()
}

func bloodPressure(r vitals.Reading) string {
	return fmt.Sprintf("%d/%d", r.Systolic, r.Diastolic)
}

func refreshTrigger(d time.Duration) string {
	return fmt.Sprintf("every %ds", max(int(d.Seconds()), 1))
}

func displayName(id *auth.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.Email
}

func userName(u store.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// patientName falls back to the user id for patients without a profile name.
func patientName(names map[string]string, userID string) string {
	if name := names[userID]; name != "" {
		return name
	}
	return userID
}

type authView struct {
	Role   store.Role
	Error  string
	Email  string
	Name   string
	SignUp bool
}

func (v authView) title() string {
	if v.Role == store.RoleVolunteer {
		return "Volunteer sign in"
	}
	return "Patient sign in"
}

func (v authView) nameLabel() string {
	if v.Role == store.RoleVolunteer {
		return "Name"
	}
	return "Full name"
}

func (v authView) action(op string) string {
	return flowFor(v.Role).page + "/" + op
}

// signInEmail and signUpEmail refill the email of the form that was submitted.
func (v authView) signInEmail() string {
	if v.SignUp {
		return ""
	}
	return v.Email
}

func (v authView) signUpEmail() string {
	if v.SignUp {
		return v.Email
	}
	return ""
}

type analyticsView struct {
	Window    analytics.Window
	Device    string
	Devices   []string
	Summary   analytics.Summary
	Histogram []analytics.Bucket
}

func (v analyticsView) link(path string, w analytics.Window) string {
	return analyticsLink(path, w, v.Device)
}

// peak is the largest bucket count, the scale of the histogram bars.
func (v analyticsView) peak() int {
	peak := 1
	for _, b := range v.Histogram {
		peak = max(peak, b.Count)
	}
	return peak
}

func analyticsLink(path string, w analytics.Window, device string) string {
	q := url.Values{}
	q.Set("range", string(w))
	if device != "" && device != analytics.AllDevices {
		q.Set("device", device)
	}
	return path + "?" + q.Encode()
}

func trend(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}

type profileView struct {
	Profile *store.Profile
	Error   string
	Saved   bool
}

type profileField struct {
	Name  string
	Label string
	Kind  string
	Value string
}

// Step lets number inputs take decimals.
func (f profileField) Step() string {
	if f.Kind == "number" {
		return "any"
	}
	return ""
}

func formNumber[T int | float64](v T) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

func profileFields(p *store.Profile) []profileField {
	dob := ""
	if p.DateOfBirth != nil {
		dob = p.DateOfBirth.Format(time.DateOnly)
	}

	return []profileField{
		{"full_name", "Full name", "text", p.FullName},
		{"date_of_birth", "Date of birth", "date", dob},
		{"age", "Age", "number", formNumber(p.Age)},
		{"gender", "Gender", "text", p.Gender},
		{"blood_group", "Blood group", "text", p.BloodGroup},
		{"height", "Height (cm)", "number", formNumber(p.Height)},
		{"weight", "Weight (kg)", "number", formNumber(p.Weight)},
		{"existing_diseases", "Existing diseases", "text", p.ExistingDiseases},
		{"medications", "Medications", "text", p.Medications},
		{"allergies", "Allergies", "text", p.Allergies},
		{"family_history", "Family history", "text", p.FamilyHistory},
		{"smoking", "Smoking", "text", p.Smoking},
		{"alcohol", "Alcohol", "text", p.Alcohol},
		{"diet", "Diet", "text", p.Diet},
		{"exercise", "Exercise", "text", p.Exercise},
		{"sleep_hours", "Sleep (hours)", "number", formNumber(p.SleepHours)},
		{"phone", "Phone", "tel", p.Phone},
		{"address", "Address", "text", p.Address},
		{"occupation", "Occupation", "text", p.Occupation},
		{"city", "City", "text", p.City},
		{"region", "Region", "text", p.Region},
		{"country", "Country", "text", p.Country},
	}
}

type volunteerView struct {
	Triage       analytics.TriageSummary
	Names        map[string]string
	Users        []store.User
	Assignments  []store.Assignment
	Refresh      time.Duration
	AssignedOnly bool
}

func (v volunteerView) title() string {
	if v.AssignedOnly {
		return "My patients"
	}
	return "All patients"
}

func (v volunteerView) livePath() string {
	if v.AssignedOnly {
		return "/volunteer/dashboard/live?assigned=1"
	}
	return "/volunteer/dashboard/live"
}

func (v volunteerView) eventsPath() string {
	if v.AssignedOnly {
		return "/volunteer/events?assigned=1"
	}
	return "/volunteer/events"
}

func unassignPath(userID string) string {
	return "/volunteer/assignments/" + url.PathEscape(userID)
}
