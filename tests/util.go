package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	logsvc "github.com/rahulsahu-12/nexus2/services/logger"
	"github.com/rahulsahu-12/nexus2/storage/database"
)

// NewConfig returns the app config pointed at a throwaway sqlite3 database.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		AppName:   "Nexus",
		SecretKey: "test-secret-key",
		Server: core.ServerConfig{
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Database: core.DatabaseConfig{
			Engine: database.EngineSQLite,
			Path:   filepath.Join(t.TempDir(), "nexus_test.db"),
		},
		Attendance: core.AttendanceConfig{
			SessionTTL:    3 * time.Minute,
			SweepInterval: 10 * time.Millisecond,
			CodeAttempts:  10,
			Timezone:      "UTC",
		},
	}
}

// NewLogger returns a logger that writes nowhere and never reports.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), &core.Config{Env: "TEST"})
	logger.Enable(false)
	return logger
}

// PrepareDB opens a migrated sqlite3 database living in t.TempDir(), closed at the end of the test.
func PrepareDB(t *testing.T, conf ...*core.Config) *sqlx.DB {
	t.Helper()
	var c *core.Config
	if len(conf) > 0 {
		c = conf[0]
	} else {
		c = NewConfig(t)
	}

	db, err := database.SetUp(c)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Freeze pins attendance.NowFunc to now until the end of the test.
func Freeze(t *testing.T, now time.Time) {
	t.Helper()
	attendance.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { attendance.NowFunc = time.Now })
}

func CreateSession(
	t *testing.T,
	repo attendance.SessionRepository,
	teacherID int64,
	branch, year, subject, code string,
	createdAt time.Time,
	ttl time.Duration,
) attendance.Session {
	t.Helper()
	token, err := attendance.NewSessionToken()
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	sess, err := repo.CreateSession(context.Background(), attendance.Session{
		Token:     token,
		ShortCode: code,
		TeacherID: teacherID,
		Branch:    branch,
		Year:      year,
		Subject:   subject,
		CreatedAt: createdAt.UTC(),
		ExpiresAt: createdAt.Add(ttl).UTC(),
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

func CreateRecord(
	t *testing.T,
	repo attendance.RecordRepository,
	studentID int64,
	branch, year, subject string,
	date attendance.Day,
	status attendance.Status,
	markedBy ...int64,
) attendance.Record {
	t.Helper()
	rec := attendance.Record{
		StudentID: studentID,
		Subject:   subject,
		Date:      date,
		Status:    status,
		Branch:    branch,
		Year:      year,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if len(markedBy) > 0 {
		rec.MarkedBy = null.Int64From(markedBy[0])
	}
	rec, err := repo.CreateRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return rec
}
