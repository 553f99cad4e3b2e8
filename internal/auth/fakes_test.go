package auth_test

import (
	"context"
	"sync"
	"time"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/store"
)

var errNotFound = apperr.New(apperr.KindNotFound, "record not found")

type memStore struct {
	users       map[string]*store.User
	profiles    map[string]string
	volunteers  map[string]*store.Volunteer
	sessions    map[string]*store.Session
	assignments []store.Assignment
	mu          sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]*store.User{},
		profiles:   map[string]string{},
		volunteers: map[string]*store.Volunteer{},
		sessions:   map[string]*store.Session{},
	}
}

func (m *memStore) CreateUser(_ context.Context, u *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperr.New(apperr.KindValidation, "email already registered")
		}
	}
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *memStore) UserByEmail(_ context.Context, email string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, errNotFound
}

func (m *memStore) UserByID(_ context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errNotFound
	}
	c := *u
	return &c, nil
}

func (m *memStore) EnsureProfile(_ context.Context, userID, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[userID]; !ok {
		m.profiles[userID] = fullName
	}
	return nil
}

func (m *memStore) CreateVolunteer(_ context.Context, v *store.Volunteer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.volunteers {
		if existing.Email == v.Email {
			return apperr.New(apperr.KindValidation, "email already registered")
		}
	}
	c := *v
	m.volunteers[v.ID] = &c
	return nil
}

func (m *memStore) VolunteerByEmail(_ context.Context, email string) (*store.Volunteer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.volunteers {
		if v.Email == email {
			c := *v
			return &c, nil
		}
	}
	return nil, errNotFound
}

func (m *memStore) VolunteerByID(_ context.Context, id string) (*store.Volunteer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volunteers[id]
	if !ok {
		return nil, errNotFound
	}
	c := *v
	return &c, nil
}

func (m *memStore) TouchVolunteerLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.volunteers[id]; ok {
		v.LastLogin = &at
	}
	return nil
}

func (m *memStore) setActive(email string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.volunteers {
		if v.Email == email {
			v.IsActive = active
		}
	}
}

func (m *memStore) CreateSession(_ context.Context, s *store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.Token] = &c
	return nil
}

func (m *memStore) SessionByToken(_ context.Context, token string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, errNotFound
	}
	c := *s
	return &c, nil
}

func (m *memStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memStore) CreateAssignment(_ context.Context, a *store.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments {
		if existing.VolunteerID == a.VolunteerID && existing.UserID == a.UserID {
			return nil
		}
	}
	m.assignments = append(m.assignments, *a)
	return nil
}

func (m *memStore) DeleteAssignment(_ context.Context, volunteerID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.VolunteerID != volunteerID || a.UserID != userID {
			kept = append(kept, a)
		}
	}
	m.assignments = kept
	return nil
}

func (m *memStore) Assignments(_ context.Context, volunteerID string) ([]store.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Assignment
	for _, a := range m.assignments {
		if a.VolunteerID == volunteerID {
			out = append(out, a)
		}
	}
	return out, nil
}
