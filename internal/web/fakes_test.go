package web_test

import (
	"context"
	"sync"
	"time"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/vitals"
)

const (
	patientToken   = "patient-token"
	volunteerToken = "volunteer-token"
	patientID      = "user-1"
	volunteerID    = "volunteer-1"
)

type fakeStore struct {
	err       error
	pingErr   error
	rows      []store.Reading
	users     []store.User
	profile   *store.Profile
	saved     *store.Profile
	forUsers  []string
	allCalls  int
	sinceArgs []time.Time
	mu        sync.Mutex
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeStore) RecentReadings(_ context.Context, userID string, limit int) ([]store.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Reading
	for _, r := range f.rows {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentReadingsAll(_ context.Context, limit int) ([]store.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[:min(limit, len(f.rows))], nil
}

func (f *fakeStore) RecentReadingsForUsers(_ context.Context, userIDs []string, _ int) ([]store.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forUsers = userIDs
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Reading
	for _, r := range f.rows {
		for _, id := range userIDs {
			if r.UserID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListReadingsSince(_ context.Context, userID string, since time.Time) ([]store.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceArgs = append(f.sinceArgs, since)
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Reading
	for i := len(f.rows) - 1; i >= 0; i-- {
		r := f.rows[i]
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Profile(_ context.Context, userID string) (*store.Profile, error) {
	if f.profile == nil || f.profile.UserID != userID {
		return nil, apperr.New(apperr.KindNotFound, "record not found")
	}
	return f.profile, nil
}

func (f *fakeStore) SaveProfile(_ context.Context, p *store.Profile) error {
	if f.err != nil {
		return f.err
	}
	f.saved = p
	return nil
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	return f.users, nil
}

type fakeAuth struct {
	identities map[string]*auth.Identity
	assigned   map[string]string
	signedOut  []string
	mu         sync.Mutex
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		identities: map[string]*auth.Identity{
			patientToken:   {ID: patientID, Email: "demo.user@example.com", Name: "Demo User", Role: store.RolePatient},
			volunteerToken: {ID: volunteerID, Email: "vera@example.com", Name: "Vera", Role: store.RoleVolunteer},
		},
		assigned: map[string]string{},
	}
}

func (f *fakeAuth) session(token string) *auth.Session {
	return &auth.Session{Token: token, ExpiresAt: time.Now().Add(time.Hour), Identity: *f.identities[token]}
}

func (f *fakeAuth) SignUpPatient(_ context.Context, email, password, _ string) (*auth.Session, error) {
	if len(password) < auth.MinPasswordLength {
		return nil, apperr.New(apperr.KindValidation, "password must be at least 6 characters")
	}
	if email == "demo.user@example.com" {
		return nil, apperr.New(apperr.KindValidation, "email already registered")
	}
	return f.session(patientToken), nil
}

func (f *fakeAuth) SignInPatient(_ context.Context, email, password string) (*auth.Session, error) {
	if email == "demo.user@example.com" && password == "DemoPass123!" {
		return f.session(patientToken), nil
	}
	if email == "down@example.com" {
		return nil, apperr.Persistence("Database error", context.DeadlineExceeded)
	}
	return nil, auth.ErrInvalidCredentials
}

func (f *fakeAuth) SignUpVolunteer(context.Context, string, string, string) (*auth.Session, error) {
	return f.session(volunteerToken), nil
}

func (f *fakeAuth) SignInVolunteer(_ context.Context, email, password string) (*auth.Session, error) {
	if email == "vera@example.com" && password == "secret1" {
		return f.session(volunteerToken), nil
	}
	if email == "inactive@example.com" {
		return nil, auth.ErrDeactivated
	}
	return nil, auth.ErrInvalidCredentials
}

func (f *fakeAuth) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, token)
	return nil
}

func (f *fakeAuth) Authenticate(_ context.Context, token string, role store.Role) (*auth.Identity, error) {
	id, ok := f.identities[token]
	if !ok || id.Role != role {
		return nil, auth.ErrNoSession
	}
	return id, nil
}

func (f *fakeAuth) AssignVolunteer(_ context.Context, _, userID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID == "missing" {
		return apperr.New(apperr.KindValidation, "unknown patient")
	}
	f.assigned[userID] = notes
	return nil
}

func (f *fakeAuth) RemoveAssignment(_ context.Context, _, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assigned, userID)
	return nil
}

func (f *fakeAuth) Assignments(_ context.Context, volunteer string) ([]store.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Assignment
	for userID, notes := range f.assigned {
		out = append(out, store.Assignment{VolunteerID: volunteer, UserID: userID, Notes: notes})
	}
	return out, nil
}

func (f *fakeAuth) AssignedUserIDs(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.assigned))
	for userID := range f.assigned {
		ids = append(ids, userID)
	}
	return ids, nil
}

type fakeCache struct {
	err    error
	latest []vitals.Reading
}

func (f *fakeCache) Put(_ context.Context, r vitals.Reading) error {
	f.latest = append(f.latest, r)
	return f.err
}

func (f *fakeCache) All(context.Context) ([]vitals.Reading, error) {
	return f.latest, f.err
}
