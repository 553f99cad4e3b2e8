package store_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/postgres"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/vitals"
)

var readingColumns = []string{"id", "device_id", "user_id", "hr", "temp", "spo2", "bp_sys", "bp_dia", "created_at"}

var _ = Describe("Store", func() {
	var (
		ctx    context.Context
		logger *slog.Logger
		sqlDB  *sql.DB
		mock   sqlmock.Sqlmock
		s      *store.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))

		var err error
		sqlDB, mock, err = sqlmock.New()
		Expect(err).NotTo(HaveOccurred())

		db, err := store.Open(postgres.New(postgres.Config{Conn: sqlDB}))
		Expect(err).NotTo(HaveOccurred())

		s, err = store.New(db, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		_ = sqlDB.Close()
	})

	Describe("New", func() {
		It("should reject a nil database", func() {
			_, err := store.New(nil, logger)
			Expect(err).To(MatchError(ContainSubstring("database cannot be nil")))
		})

		It("should reject a nil logger", func() {
			_, err := store.New(s.DB(), nil)
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})
	})

	Describe("InsertReading", func() {
		It("should append one row and fill the id", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "wristband_data"`)).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
			mock.ExpectCommit()

			r := &store.Reading{DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98, Systolic: 102, Diastolic: 66}
			Expect(s.InsertReading(ctx, r)).To(Succeed())
			Expect(r.ID).To(Equal(uint(7)))
			Expect(r.CreatedAt).NotTo(BeZero())
		})

		It("should report a persistence error when the write fails", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "wristband_data"`)).
				WillReturnError(errors.New("connection reset"))
			mock.ExpectRollback()

			err := s.InsertReading(ctx, &store.Reading{DeviceID: "device-001", UserID: "user-1"})
			Expect(apperr.Is(err, apperr.KindPersistence)).To(BeTrue())
			Expect(apperr.Message(err)).To(Equal("Database error"))
		})

		It("should reject a nil reading", func() {
			Expect(s.InsertReading(ctx, nil)).NotTo(Succeed())
		})
	})

	Describe("reading queries", func() {
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		It("should list a user's readings since a time in ascending order", func() {
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wristband_data" WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at ASC`)).
				WithArgs("user-1", now.Add(-time.Hour)).
				WillReturnRows(sqlmock.NewRows(readingColumns).
					AddRow(1, "device-001", "user-1", 72, 36.6, 98, 102, 66, now.Add(-30*time.Minute)).
					AddRow(2, "device-001", "user-1", 80, 36.8, 97, 110, 71, now.Add(-10*time.Minute)))

			rows, err := s.ListReadingsSince(ctx, "user-1", now.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))

			v := rows[1].Vitals()
			Expect(v.HR).To(Equal(80))
			Expect(v.SpO2).To(Equal(97))
			Expect(v.Systolic).To(Equal(110))
			Expect(v.Diastolic).To(Equal(71))
			Expect(v.PatientKey()).To(Equal("user-1/device-001"))
		})

		It("should return the newest readings first", func() {
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wristband_data" ORDER BY created_at DESC LIMIT`)).
				WillReturnRows(sqlmock.NewRows(readingColumns).
					AddRow(2, "device-002", "user-2", 80, 36.8, 97, 110, 71, now))

			rows, err := s.RecentReadingsAll(ctx, store.DefaultVolunteerLimit)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].UserID).To(Equal("user-2"))
		})

		It("should not query for an empty user list", func() {
			rows, err := s.RecentReadingsForUsers(ctx, nil, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})

		It("should map deadline errors to timeouts", func() {
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wristband_data" WHERE user_id = $1`)).
				WillReturnError(context.DeadlineExceeded)

			_, err := s.RecentReadings(ctx, "user-1", store.DefaultPatientLimit)
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindTimeout))
		})
	})

	Describe("accounts", func() {
		It("should report a missing user as not found", func() {
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE email = $1`)).
				WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

			_, err := s.UserByEmail(ctx, "nobody@example.com")
			Expect(apperr.Is(err, apperr.KindNotFound)).To(BeTrue())
		})

		It("should report a taken email as a validation error", func() {
			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "users"`)).
				WillReturnError(&pgconn.PgError{Code: "23505"})
			mock.ExpectRollback()

			err := s.CreateUser(ctx, &store.User{ID: "u", Email: "a@example.com", PasswordHash: "x"})
			Expect(apperr.Is(err, apperr.KindValidation)).To(BeTrue())
		})
	})

	Describe("sessions", func() {
		It("should delete expired sessions", func() {
			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "sessions" WHERE expires_at <= $1`)).
				WillReturnResult(sqlmock.NewResult(0, 3))
			mock.ExpectCommit()

			n, err := s.DeleteExpiredSessions(ctx, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))
		})

		It("should treat the expiry instant as expired", func() {
			at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			sess := store.Session{ExpiresAt: at}
			Expect(sess.Expired(at.Add(-time.Second))).To(BeFalse())
			Expect(sess.Expired(at)).To(BeTrue())
		})
	})
})

var _ = Describe("Reading model", func() {
	It("should use the wristband_data table", func() {
		Expect(store.Reading{}.TableName()).To(Equal("wristband_data"))
		Expect(store.Session{}.TableName()).To(Equal("sessions"))
		Expect(store.Assignment{}.TableName()).To(Equal("volunteer_user_assignments"))
	})

	It("should carry every field between row and domain reading", func() {
		v := vitals.Reading{
			CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			DeviceID:  "device-001",
			UserID:    "user-1",
			Temp:      36.6,
			HR:        72,
			SpO2:      98,
			Systolic:  102,
			Diastolic: 66,
		}
		Expect(store.FromVitals(v).Vitals()).To(Equal(v))
	})
})

var _ = Describe("NewDB", func() {
	It("should return error when config is nil", func() {
		db, err := store.NewDB(nil)
		Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
		Expect(db).To(BeNil())
	})

	It("should return error when logger is nil", func() {
		db, err := store.NewDB(&store.DBConfig{Host: "localhost"})
		Expect(err).To(MatchError(ContainSubstring("logger")))
		Expect(db).To(BeNil())
	})

	It("should return error when host is empty", func() {
		db, err := store.NewDB(&store.DBConfig{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))})
		Expect(err).To(MatchError(ContainSubstring("host cannot be empty")))
		Expect(db).To(BeNil())
	})

	It("should render the connection string", func() {
		cfg := &store.DBConfig{Host: "db", Port: 5432, User: "vitals", Password: "pw", DBName: "vitals", SSLMode: "disable"}
		Expect(cfg.DSN()).To(Equal("host=db port=5432 user=vitals password=pw dbname=vitals sslmode=disable"))
	})

	It("should handle a nil database on close", func() {
		Expect(store.CloseDB(nil, nil)).To(Succeed())
	})
})
