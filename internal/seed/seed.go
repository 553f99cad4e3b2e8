// Package seed creates the demo patient and fills wristband_data with demo and random
// readings. It runs with privileged database credentials and is never used by the server.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/generator"
)

// Demo account credentials.
const (
	DemoEmail    = "demo.user@example.com"
	DemoPassword = "DemoPass123!"
	DemoFullName = "Demo User"
)

// DemoReading is one fixed demo sample, back-dated by MinutesAgo.
type DemoReading struct {
	DeviceID   string
	Temp       float64
	HR         int
	SpO2       int
	Systolic   int
	Diastolic  int
	MinutesAgo int
}

// DemoReadings are the twenty readings inserted for the demo patient, oldest first.
var DemoReadings = []DemoReading{
	{DeviceID: "device-001", HR: 72, Temp: 36.6, SpO2: 98, Systolic: 120, Diastolic: 80, MinutesAgo: 120},
	{DeviceID: "device-001", HR: 75, Temp: 36.7, SpO2: 97, Systolic: 122, Diastolic: 82, MinutesAgo: 110},
	{DeviceID: "device-001", HR: 70, Temp: 36.5, SpO2: 99, Systolic: 118, Diastolic: 78, MinutesAgo: 100},
	{DeviceID: "device-002", HR: 80, Temp: 36.9, SpO2: 96, Systolic: 125, Diastolic: 85, MinutesAgo: 90},
	{DeviceID: "device-002", HR: 78, Temp: 36.8, SpO2: 97, Systolic: 124, Diastolic: 84, MinutesAgo: 80},
	{DeviceID: "device-002", HR: 76, Temp: 36.7, SpO2: 97, Systolic: 123, Diastolic: 83, MinutesAgo: 70},
	{DeviceID: "device-003", HR: 65, Temp: 36.4, SpO2: 99, Systolic: 115, Diastolic: 75, MinutesAgo: 60},
	{DeviceID: "device-003", HR: 67, Temp: 36.5, SpO2: 99, Systolic: 116, Diastolic: 76, MinutesAgo: 50},
	{DeviceID: "device-003", HR: 69, Temp: 36.6, SpO2: 98, Systolic: 117, Diastolic: 77, MinutesAgo: 40},
	{DeviceID: "device-001", HR: 74, Temp: 36.7, SpO2: 97, Systolic: 121, Diastolic: 81, MinutesAgo: 30},
	{DeviceID: "device-004", HR: 90, Temp: 37.1, SpO2: 95, Systolic: 130, Diastolic: 88, MinutesAgo: 28},
	{DeviceID: "device-004", HR: 88, Temp: 37.0, SpO2: 95, Systolic: 129, Diastolic: 87, MinutesAgo: 26},
	{DeviceID: "device-005", HR: 60, Temp: 36.3, SpO2: 99, Systolic: 110, Diastolic: 70, MinutesAgo: 24},
	{DeviceID: "device-005", HR: 62, Temp: 36.4, SpO2: 99, Systolic: 112, Diastolic: 72, MinutesAgo: 22},
	{DeviceID: "device-001", HR: 73, Temp: 36.6, SpO2: 98, Systolic: 120, Diastolic: 80, MinutesAgo: 20},
	{DeviceID: "device-002", HR: 77, Temp: 36.8, SpO2: 97, Systolic: 123, Diastolic: 83, MinutesAgo: 18},
	{DeviceID: "device-003", HR: 68, Temp: 36.5, SpO2: 98, Systolic: 116, Diastolic: 76, MinutesAgo: 15},
	{DeviceID: "device-004", HR: 85, Temp: 36.9, SpO2: 96, Systolic: 128, Diastolic: 86, MinutesAgo: 10},
	{DeviceID: "device-005", HR: 63, Temp: 36.4, SpO2: 99, Systolic: 113, Diastolic: 73, MinutesAgo: 5},
	{DeviceID: "device-001", HR: 71, Temp: 36.6, SpO2: 98, Systolic: 119, Diastolic: 79, MinutesAgo: 2},
}

// Store is the persistence the seeder writes to.
type Store interface {
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUser(ctx context.Context, u *store.User) error
	EnsureProfile(ctx context.Context, userID, fullName string) error
	InsertReadings(ctx context.Context, rows []store.Reading) error
}

// PasswordHasher hashes the demo password the same way sign-up does.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// Config holds the dependencies of the Seeder.
type Config struct {
	Store  Store
	Hasher PasswordHasher
	Logger *slog.Logger
	Now    func() time.Time
}

// Seeder inserts demo data.
type Seeder struct {
	store  Store
	hasher PasswordHasher
	logger *slog.Logger
	now    func() time.Time
}

// Result summarizes a seeding run.
type Result struct {
	UserID   string
	Created  bool
	Inserted int
}

// New creates a Seeder.
func New(cfg *Config) (*Seeder, error) {
	if cfg == nil {
		return nil, errors.New("seed config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Hasher == nil {
		return nil, errors.New("password hasher cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	s := &Seeder{
		store:  cfg.Store,
		hasher: cfg.Hasher,
		logger: cfg.Logger.With("component", "seed"),
		now:    cfg.Now,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// EnsureDemoUser returns the demo patient, creating it when absent.
func (s *Seeder) EnsureDemoUser(ctx context.Context) (*store.User, bool, error) {
	u, err := s.store.UserByEmail(ctx, DemoEmail)
	if err == nil {
		s.logger.Info("demo user already exists", "user_id", u.ID)
		return u, false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, false, fmt.Errorf("failed to look up demo user: %w", err)
	}

	hash, err := s.hasher.HashPassword(DemoPassword)
	if err != nil {
		return nil, false, err
	}

	u = &store.User{
		ID:           uuid.NewString(),
		Email:        DemoEmail,
		PasswordHash: hash,
		FullName:     DemoFullName,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, false, fmt.Errorf("failed to create demo user: %w", err)
	}
	if err := s.store.EnsureProfile(ctx, u.ID, u.FullName); err != nil {
		return nil, false, fmt.Errorf("failed to create demo profile: %w", err)
	}

	s.logger.Info("demo user created", "user_id", u.ID, "email", DemoEmail)
	return u, true, nil
}

// DemoRows returns DemoReadings for userID, back-dated from the current time.
func (s *Seeder) DemoRows(userID string) []store.Reading {
	now := s.now()
	rows := make([]store.Reading, len(DemoReadings))
	for i, d := range DemoReadings {
		rows[i] = store.Reading{
			CreatedAt: now.Add(-time.Duration(d.MinutesAgo) * time.Minute),
			DeviceID:  d.DeviceID,
			UserID:    userID,
			HR:        d.HR,
			Temp:      d.Temp,
			SpO2:      d.SpO2,
			Systolic:  d.Systolic,
			Diastolic: d.Diastolic,
		}
	}
	return rows
}

// SeedDemo creates the demo patient if needed and inserts the demo readings.
func (s *Seeder) SeedDemo(ctx context.Context) (*Result, error) {
	u, created, err := s.EnsureDemoUser(ctx)
	if err != nil {
		return nil, err
	}

	rows := s.DemoRows(u.ID)
	if err := s.store.InsertReadings(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to insert demo readings: %w", err)
	}

	s.logger.Info("demo readings inserted", "user_id", u.ID, "count", len(rows))
	return &Result{UserID: u.ID, Created: created, Inserted: len(rows)}, nil
}

// RandomRows generates n readings for userID spread evenly over the last 24 hours, shared
// round robin between devices fake wristbands. Blood pressure is included.
func (s *Seeder) RandomRows(userID string, n, devices int, seed int64) []store.Reading {
	if n <= 0 {
		return nil
	}
	devices = max(devices, 1)

	gens := make([]*generator.VitalsGenerator, devices)
	for i := range gens {
		band := generator.NewWristband(userID)
		gens[i] = generator.NewVitalsGenerator(band.DeviceID, userID, seed+int64(i), true)
	}

	now := s.now()
	step := 24 * time.Hour / time.Duration(n)
	rows := make([]store.Reading, n)
	for i := range n {
		at := now.Add(-time.Duration(n-i) * step)
		rows[i] = store.FromVitals(gens[i%devices].GenerateReading(at))
	}
	return rows
}

// SeedRandom inserts n generated readings for the demo patient.
func (s *Seeder) SeedRandom(ctx context.Context, n, devices int, seed int64) (*Result, error) {
	u, created, err := s.EnsureDemoUser(ctx)
	if err != nil {
		return nil, err
	}

	rows := s.RandomRows(u.ID, n, devices, seed)
	if err := s.store.InsertReadings(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to insert random readings: %w", err)
	}

	s.logger.Info("random readings inserted", "user_id", u.ID, "count", len(rows), "devices", devices)
	return &Result{UserID: u.ID, Created: created, Inserted: len(rows)}, nil
}
