package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procodus.dev/vitals/internal/apperr"
)

const (
	// DefaultPatientLimit is the number of readings on the patient dashboard.
	DefaultPatientLimit = 100
	// DefaultVolunteerLimit is the number of readings scanned for the volunteer overview.
	DefaultVolunteerLimit = 500
)

const dbErrorMessage = "Database error"

// Store is the repository over the application tables.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a Store on an open connection.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Store{db: db, logger: logger.With("component", "store")}, nil
}

// DB exposes the underlying connection for maintenance commands.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Persistence(dbErrorMessage, err)
	}
	return apperr.Persistence(dbErrorMessage, sqlDB.PingContext(ctx))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "record not found", err)
	}
	return apperr.Persistence(dbErrorMessage, err)
}

// InsertReading appends one reading. created_at is set by the database clock when zero.
func (s *Store) InsertReading(ctx context.Context, r *Reading) error {
	if r == nil {
		return errors.New("reading cannot be nil")
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logger.Error("failed to insert reading", "device_id", r.DeviceID, "error", err)
		return wrap(err)
	}
	return nil
}

// InsertReadings appends readings in batches.
func (s *Store) InsertReadings(ctx context.Context, rows []Reading) error {
	if len(rows) == 0 {
		return nil
	}
	return wrap(s.db.WithContext(ctx).CreateInBatches(rows, 100).Error)
}

// ListReadingsSince returns the user's readings created at or after since, oldest first.
func (s *Store) ListReadingsSince(ctx context.Context, userID string, since time.Time) ([]Reading, error) {
	var rows []Reading
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, wrap(err)
}

// RecentReadings returns at most limit of the user's readings, newest first.
func (s *Store) RecentReadings(ctx context.Context, userID string, limit int) ([]Reading, error) {
	var rows []Reading
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, wrap(err)
}

// RecentReadingsAll returns at most limit readings across all users, newest first.
func (s *Store) RecentReadingsAll(ctx context.Context, limit int) ([]Reading, error) {
	var rows []Reading
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, wrap(err)
}

// RecentReadingsForUsers is RecentReadingsAll restricted to userIDs.
func (s *Store) RecentReadingsForUsers(ctx context.Context, userIDs []string, limit int) ([]Reading, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rows []Reading
	err := s.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, wrap(err)
}

// CreateUser inserts a patient account. A taken email is a validation error.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.KindValidation, "email already registered", err)
	}
	return wrap(err)
}

// UserByEmail looks up a patient account.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, wrap(err)
	}
	return &u, nil
}

// UserByID looks up a patient account.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, wrap(err)
	}
	return &u, nil
}

// ListUsers returns every patient account ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Order("full_name ASC").Find(&users).Error
	return users, wrap(err)
}

// EnsureProfile creates an empty profile for userID unless one exists.
func (s *Store) EnsureProfile(ctx context.Context, userID, fullName string) error {
	p := Profile{UserID: userID, FullName: fullName}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&p).Error
	return wrap(err)
}

// Profile loads the profile of userID.
func (s *Store) Profile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, wrap(err)
	}
	return &p, nil
}

// SaveProfile inserts or replaces the profile.
func (s *Store) SaveProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.UserID == "" {
		return errors.New("profile user id cannot be empty")
	}
	return wrap(s.db.WithContext(ctx).Save(p).Error)
}

// CreateVolunteer inserts a volunteer account. A taken email is a validation error.
func (s *Store) CreateVolunteer(ctx context.Context, v *Volunteer) error {
	err := s.db.WithContext(ctx).Create(v).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.KindValidation, "email already registered", err)
	}
	return wrap(err)
}

// VolunteerByEmail looks up a volunteer account.
func (s *Store) VolunteerByEmail(ctx context.Context, email string) (*Volunteer, error) {
	var v Volunteer
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&v).Error; err != nil {
		return nil, wrap(err)
	}
	return &v, nil
}

// VolunteerByID looks up a volunteer account.
func (s *Store) VolunteerByID(ctx context.Context, id string) (*Volunteer, error) {
	var v Volunteer
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, wrap(err)
	}
	return &v, nil
}

// TouchVolunteerLogin records a successful sign-in.
func (s *Store) TouchVolunteerLogin(ctx context.Context, id string, at time.Time) error {
	return wrap(s.db.WithContext(ctx).
		Model(&Volunteer{}).
		Where("id = ?", id).
		Update("last_login", at).Error)
}

// CreateAssignment links a volunteer to a patient. Repeating an existing pair is a no-op.
func (s *Store) CreateAssignment(ctx context.Context, a *Assignment) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "volunteer_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(a).Error
	return wrap(err)
}

// DeleteAssignment removes the link between a volunteer and a patient.
func (s *Store) DeleteAssignment(ctx context.Context, volunteerID, userID string) error {
	return wrap(s.db.WithContext(ctx).
		Where("volunteer_id = ? AND user_id = ?", volunteerID, userID).
		Delete(&Assignment{}).Error)
}

// Assignments lists the volunteer's assignments, newest first.
func (s *Store) Assignments(ctx context.Context, volunteerID string) ([]Assignment, error) {
	var out []Assignment
	err := s.db.WithContext(ctx).
		Where("volunteer_id = ?", volunteerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, wrap(err)
}

// CreateSession stores a login session.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	return wrap(s.db.WithContext(ctx).Create(sess).Error)
}

// SessionByToken loads a session by its cookie token.
func (s *Store) SessionByToken(ctx context.Context, token string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error; err != nil {
		return nil, wrap(err)
	}
	return &sess, nil
}

// DeleteSession removes a session. Unknown tokens are ignored.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	return wrap(s.db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error)
}

// DeleteExpiredSessions removes sessions that expired before now and returns how many.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&Session{})
	return res.RowsAffected, wrap(res.Error)
}
