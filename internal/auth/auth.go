// Package auth implements server-side sign-up, sign-in and session handling for patients and
// volunteers. Passwords are bcrypt hashes; sessions are opaque uuid tokens stored in the
// database and carried in HttpOnly cookies.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/store"
)

// DefaultSessionTTL is how long a session stays valid after sign-in.
const DefaultSessionTTL = 24 * time.Hour

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = apperr.New(apperr.KindAuthentication, "invalid email or password")
	// ErrDeactivated is returned when a deactivated volunteer signs in.
	ErrDeactivated = apperr.New(apperr.KindAuthentication, "account is deactivated")
	// ErrNoSession is returned when a request carries no valid session.
	ErrNoSession = apperr.New(apperr.KindAuthentication, "not signed in")
)

// Store is the persistence auth needs.
type Store interface {
	CreateUser(ctx context.Context, u *store.User) error
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	UserByID(ctx context.Context, id string) (*store.User, error)
	EnsureProfile(ctx context.Context, userID, fullName string) error
	CreateVolunteer(ctx context.Context, v *store.Volunteer) error
	VolunteerByEmail(ctx context.Context, email string) (*store.Volunteer, error)
	VolunteerByID(ctx context.Context, id string) (*store.Volunteer, error)
	TouchVolunteerLogin(ctx context.Context, id string, at time.Time) error
	CreateSession(ctx context.Context, s *store.Session) error
	SessionByToken(ctx context.Context, token string) (*store.Session, error)
	DeleteSession(ctx context.Context, token string) error
	CreateAssignment(ctx context.Context, a *store.Assignment) error
	DeleteAssignment(ctx context.Context, volunteerID, userID string) error
	Assignments(ctx context.Context, volunteerID string) ([]store.Assignment, error)
}

// Identity is the signed-in principal.
type Identity struct {
	ID    string
	Email string
	Name  string
	Role  store.Role
}

// Session is a freshly issued login.
type Session struct {
	ExpiresAt time.Time
	Token     string
	Identity  Identity
}

// Config holds the dependencies of a Service.
type Config struct {
	Store      Store
	Logger     *slog.Logger
	Now        func() time.Time
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service authenticates patients and volunteers.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration
	cost   int
}

// NewService creates a Service.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("auth config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	s := &Service{
		store:  cfg.Store,
		logger: cfg.Logger.With("component", "auth"),
		now:    cfg.Now,
		ttl:    cfg.SessionTTL,
		cost:   cfg.BcryptCost,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	return s, nil
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.New(apperr.KindValidation, "a valid email address is required")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.New(apperr.KindValidation,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// SignUpPatient creates a patient account with an empty profile and signs it in.
func (s *Service) SignUpPatient(ctx context.Context, email, password, fullName string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	if err := s.store.EnsureProfile(ctx, u.ID, u.FullName); err != nil {
		s.logger.Warn("failed to create profile", "user_id", u.ID, "error", err)
	}

	s.logger.Info("patient signed up", "user_id", u.ID)
	return s.issue(ctx, Identity{ID: u.ID, Email: u.Email, Name: u.FullName, Role: store.RolePatient})
}

// SignInPatient verifies a patient's credentials, makes sure a profile exists and issues a
// session.
func (s *Service) SignInPatient(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.store.UserByEmail(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if err := s.store.EnsureProfile(ctx, u.ID, u.FullName); err != nil {
		s.logger.Warn("failed to ensure profile", "user_id", u.ID, "error", err)
	}

	return s.issue(ctx, Identity{ID: u.ID, Email: u.Email, Name: u.FullName, Role: store.RolePatient})
}

// SignUpVolunteer creates an active volunteer account and signs it in.
func (s *Service) SignUpVolunteer(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.KindValidation, "name is required")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	v := &store.Volunteer{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.store.CreateVolunteer(ctx, v); err != nil {
		return nil, err
	}

	s.logger.Info("volunteer signed up", "volunteer_id", v.ID)
	return s.issue(ctx, Identity{ID: v.ID, Email: v.Email, Name: v.Name, Role: store.RoleVolunteer})
}

// SignInVolunteer verifies a volunteer's credentials, rejects deactivated accounts and
// records the login time.
func (s *Service) SignInVolunteer(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	v, err := s.store.VolunteerByEmail(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(v.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !v.IsActive {
		return nil, ErrDeactivated
	}

	if err := s.store.TouchVolunteerLogin(ctx, v.ID, s.now()); err != nil {
		s.logger.Warn("failed to record volunteer login", "volunteer_id", v.ID, "error", err)
	}

	return s.issue(ctx, Identity{ID: v.ID, Email: v.Email, Name: v.Name, Role: store.RoleVolunteer})
}

func (s *Service) issue(ctx context.Context, id Identity) (*Session, error) {
	sess := &store.Session{
		Token:     uuid.NewString(),
		SubjectID: id.ID,
		Role:      id.Role,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return &Session{Token: sess.Token, ExpiresAt: sess.ExpiresAt, Identity: id}, nil
}

// SignOut deletes the session. Empty tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// Authenticate resolves a session token to the identity it was issued for. Missing, unknown,
// expired and wrong-role tokens all yield ErrNoSession.
func (s *Service) Authenticate(ctx context.Context, token string, role store.Role) (*Identity, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	sess, err := s.store.SessionByToken(ctx, token)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	if sess.Role != role {
		return nil, ErrNoSession
	}
	if sess.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		return nil, ErrNoSession
	}

	switch role {
	case store.RoleVolunteer:
		v, err := s.store.VolunteerByID(ctx, sess.SubjectID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrNoSession
		}
		if err != nil {
			return nil, err
		}
		if !v.IsActive {
			return nil, ErrDeactivated
		}
		return &Identity{ID: v.ID, Email: v.Email, Name: v.Name, Role: role}, nil
	default:
		u, err := s.store.UserByID(ctx, sess.SubjectID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrNoSession
		}
		if err != nil {
			return nil, err
		}
		return &Identity{ID: u.ID, Email: u.Email, Name: u.FullName, Role: role}, nil
	}
}

// AssignVolunteer links a volunteer to a patient. The patient must exist.
func (s *Service) AssignVolunteer(ctx context.Context, volunteerID, userID, notes string) error {
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.New(apperr.KindValidation, "unknown patient")
		}
		return err
	}
	return s.store.CreateAssignment(ctx, &store.Assignment{
		VolunteerID: volunteerID,
		UserID:      userID,
		Notes:       strings.TrimSpace(notes),
	})
}

// RemoveAssignment unlinks a volunteer from a patient.
func (s *Service) RemoveAssignment(ctx context.Context, volunteerID, userID string) error {
	return s.store.DeleteAssignment(ctx, volunteerID, userID)
}

// Assignments lists the volunteer's assignments.
func (s *Service) Assignments(ctx context.Context, volunteerID string) ([]store.Assignment, error) {
	return s.store.Assignments(ctx, volunteerID)
}

// AssignedUserIDs lists the ids of the volunteer's patients.
func (s *Service) AssignedUserIDs(ctx context.Context, volunteerID string) ([]string, error) {
	as, err := s.store.Assignments(ctx, volunteerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(as))
	for i, a := range as {
		ids[i] = a.UserID
	}
	return ids, nil
}
