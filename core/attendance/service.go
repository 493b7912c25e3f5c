package attendance

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/user"
)

var NowFunc = time.Now // mockable

type (
	// SessionRepository owns attendance sessions.
	// Every method runs on the repository's own executor unless one is passed (eg. a transaction).
	SessionRepository interface {
		// CreateSession returns ErrCodeCollision or ErrSessionConflict when an active-set unique index rejects the row.
		CreateSession(ctx context.Context, sess Session, exec ...core.DBExecutor) (Session, error)
		ActiveCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		// FindActiveByCode does not look at expires_at.
		FindActiveByCode(ctx context.Context, code string, exec ...core.DBExecutor) (Session, error)
		FindActiveByTeacher(ctx context.Context, teacherID int64, exec ...core.DBExecutor) (Session, error)
		DeactivateTeacherSessions(ctx context.Context, teacherID int64, exec ...core.DBExecutor) (int64, error)
		DeactivateExpired(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error)
	}

	// RecordRepository owns the attendance ledger.
	RecordRepository interface {
		// CreateRecord returns ErrDuplicateRecord when (student, subject, date) already exists.
		CreateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		RecordExists(ctx context.Context, studentID int64, subject string, date Day, exec ...core.DBExecutor) (bool, error)
		ClassRecordExists(ctx context.Context, branch, year, subject string, date Day, exec ...core.DBExecutor) (bool, error)
		ClassDays(ctx context.Context, branch, year, subject string, exec ...core.DBExecutor) ([]DaySummary, error)
		ClassRecords(ctx context.Context, branch, year, subject string, date Day, exec ...core.DBExecutor) ([]Record, error)
		StudentRecords(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]Record, error)
		StudentSummary(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]SubjectSummary, error)
	}

	// Publisher receives redemption events (eg. the teacher's live feed). It must not block.
	Publisher interface {
		Publish(evt MarkedEvent)
	}

	Service struct {
		db           core.DB
		sessions     SessionRepository
		records      RecordRepository
		pub          Publisher
		ttl          time.Duration
		codeAttempts int
		loc          *time.Location
	}
)

// NewService builds the attendance Service. pub may be nil.
func NewService(db core.DB, sessions SessionRepository, records RecordRepository, pub Publisher, conf *core.Config) *Service {
	svc := &Service{
		db:           db,
		sessions:     sessions,
		records:      records,
		pub:          pub,
		ttl:          conf.Attendance.SessionTTL,
		codeAttempts: conf.Attendance.CodeAttempts,
		loc:          conf.Attendance.Location(),
	}
	if svc.ttl <= 0 {
		svc.ttl = 3 * time.Minute
	}
	if svc.codeAttempts <= 0 {
		svc.codeAttempts = 10
	}
	return svc
}

// now is UTC, truncated to what every supported database stores.
func (svc *Service) now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

// Today returns the attendance day of the current instant.
func (svc *Service) Today() Day {
	return DayOf(svc.now(), svc.loc)
}

func checkArgs(checkers ...vala.Checker) error {
	if err := vala.BeginValidation().Validate(checkers...).Check(); err != nil {
		return core.NewArgumentError(err.Error())
	}
	return nil
}

// OpenSession deactivates every active session of the teacher and opens a new one for the class.
// A fresh code is drawn on every attempt; after codeAttempts collisions it gives up with ErrCodeExhausted.
func (svc *Service) OpenSession(ctx context.Context, teacher user.Identity, data StartSession) (Session, error) {
	if err := checkArgs(
		vala.GreaterThan(int(teacher.ID), 0, "teacher.ID"),
		vala.StringNotEmpty(teacher.Branch, "teacher.Branch"),
		vala.StringNotEmpty(data.Year, "year"),
		vala.StringNotEmpty(data.Subject, "subject"),
	); err != nil {
		return Session{}, err
	}

	for attempt := 1; attempt <= svc.codeAttempts; attempt++ {
		sess, err := svc.openSession(ctx, teacher, data)
		switch errors.Cause(err) {
		case nil:
			return sess, nil
		case ErrCodeCollision, ErrSessionConflict: // redraw
		default:
			return Session{}, errors.Wrap(err, "opening session")
		}
	}
	return Session{}, ErrCodeExhausted
}

func (svc *Service) openSession(ctx context.Context, teacher user.Identity, data StartSession) (Session, error) {
	code, err := NewShortCodeFunc()
	if err != nil {
		return Session{}, errors.Wrap(err, "generating short code")
	}
	token, err := NewSessionTokenFunc()
	if err != nil {
		return Session{}, errors.Wrap(err, "generating session token")
	}

	now := svc.now()
	sess := Session{
		Token:     token,
		ShortCode: code,
		TeacherID: teacher.ID,
		Branch:    teacher.Branch,
		Year:      data.Year,
		Subject:   data.Subject,
		CreatedAt: now,
		ExpiresAt: now.Add(svc.ttl),
		IsActive:  true,
	}

	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		if _, err := svc.sessions.DeactivateTeacherSessions(ctx, teacher.ID, tx); err != nil {
			return errors.Wrap(err, "deactivating teacher sessions")
		}
		exists, err := svc.sessions.ActiveCodeExists(ctx, code, tx)
		if err != nil {
			return errors.Wrap(err, "checking short code")
		}
		if exists {
			return ErrCodeCollision
		}
		sess, err = svc.sessions.CreateSession(ctx, sess, tx)
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// FindActiveByCode returns the active session holding code, expired or not.
func (svc *Service) FindActiveByCode(ctx context.Context, code string) (Session, error) {
	return svc.sessions.FindActiveByCode(ctx, core.CleanString(code))
}

// ActiveSession returns the teacher's open, unexpired session.
func (svc *Service) ActiveSession(ctx context.Context, teacher user.Identity) (Session, error) {
	sess, err := svc.sessions.FindActiveByTeacher(ctx, teacher.ID)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return Session{}, ErrNoActiveSession
		}
		return Session{}, errors.Wrap(err, "finding teacher's active session")
	}
	if sess.Expired(svc.now()) {
		return Session{}, ErrNoActiveSession
	}
	return sess, nil
}

// Redeem turns a student's code into an attendance record. Checks run in order and the first failure wins:
// ErrInvalidCode, ErrSessionExpired, ErrForbidden, ErrAlreadyMarked.
func (svc *Service) Redeem(ctx context.Context, student user.Identity, code string) (Record, error) {
	if err := checkArgs(vala.GreaterThan(int(student.ID), 0, "student.ID")); err != nil {
		return Record{}, err
	}
	now := svc.now()

	sess, err := svc.sessions.FindActiveByCode(ctx, core.CleanString(code))
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return Record{}, ErrInvalidCode
		}
		return Record{}, errors.Wrap(err, "finding session by code")
	}
	if sess.Expired(now) {
		return Record{}, ErrSessionExpired
	}
	if !student.InClass(sess.Branch, sess.Year) {
		return Record{}, ErrForbidden
	}

	today := DayOf(now, svc.loc)
	exists, err := svc.records.RecordExists(ctx, student.ID, sess.Subject, today)
	if err != nil {
		return Record{}, errors.Wrap(err, "checking attendance record")
	}
	if exists {
		return Record{}, ErrAlreadyMarked
	}

	rec, err := svc.records.CreateRecord(ctx, Record{
		StudentID: student.ID,
		Subject:   sess.Subject,
		Date:      today,
		Status:    StatusPresent,
		Branch:    sess.Branch,
		Year:      sess.Year,
		SessionID: null.Int64From(sess.ID),
		CreatedAt: now,
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateRecord { // lost the race
			return Record{}, ErrAlreadyMarked
		}
		return Record{}, errors.Wrap(err, "creating attendance record")
	}

	if svc.pub != nil {
		svc.pub.Publish(MarkedEvent{
			TeacherID:   sess.TeacherID,
			SessionCode: sess.Token,
			StudentID:   rec.StudentID,
			Subject:     rec.Subject,
			Date:        rec.Date,
			MarkedAt:    rec.CreatedAt,
		})
	}
	return rec, nil
}

// DeactivateExpired closes every active session that expired before now and returns how many were closed.
func (svc *Service) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := svc.sessions.DeactivateExpired(ctx, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deactivating expired sessions")
	}
	return n, nil
}

// SweepExpired is DeactivateExpired at the current instant.
func (svc *Service) SweepExpired(ctx context.Context) (int64, error) {
	return svc.DeactivateExpired(ctx, svc.now())
}

// CheckManual reports whether the teacher's class already has attendance for the subject on the day.
func (svc *Service) CheckManual(ctx context.Context, teacher user.Identity, data ManualCheck) (bool, error) {
	day, err := ParseDay(data.Date)
	if err != nil {
		return false, core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
	}
	exists, err := svc.records.ClassRecordExists(ctx, teacher.Branch, data.Year, data.Subject, day)
	if err != nil {
		return false, errors.Wrap(err, "checking class attendance")
	}
	return exists, nil
}

// MarkManual writes a whole batch in one transaction. If any student already has a record for
// the subject and day, nothing is written and ErrAttendanceExists is returned.
func (svc *Service) MarkManual(ctx context.Context, teacher user.Identity, data ManualAttendance) ([]Record, error) {
	if err := checkArgs(
		vala.GreaterThan(int(teacher.ID), 0, "teacher.ID"),
		vala.StringNotEmpty(teacher.Branch, "teacher.Branch"),
	); err != nil {
		return nil, err
	}
	day, err := ParseDay(data.Date)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "attendance_date", Error: err.Error()})
	}

	now := svc.now()
	records := make([]Record, 0, len(data.Records))
	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		for _, entry := range data.Records {
			exists, err := svc.records.RecordExists(ctx, entry.StudentID, data.Subject, day, tx)
			if err != nil {
				return errors.Wrap(err, "checking attendance record")
			}
			if exists {
				return ErrAttendanceExists
			}

			rec, err := svc.records.CreateRecord(ctx, Record{
				StudentID: entry.StudentID,
				Subject:   data.Subject,
				Date:      day,
				Status:    entry.Status,
				Branch:    teacher.Branch,
				Year:      data.Year,
				MarkedBy:  null.Int64From(teacher.ID),
				CreatedAt: now,
			}, tx)
			if err != nil {
				if errors.Cause(err) == ErrDuplicateRecord {
					return ErrAttendanceExists
				}
				return errors.Wrap(err, "creating attendance record")
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SubjectHistory summarizes the class's attendance per day for a subject, newest first.
func (svc *Service) SubjectHistory(ctx context.Context, teacher user.Identity, filter HistoryFilter) ([]DaySummary, error) {
	days, err := svc.records.ClassDays(ctx, teacher.Branch, filter.Year, filter.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "querying class days")
	}
	return days, nil
}

// DateHistory lists the class's records for a subject on one day.
func (svc *Service) DateHistory(ctx context.Context, teacher user.Identity, filter HistoryFilter) ([]Record, error) {
	day, err := ParseDay(filter.Date)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "attendance_date", Error: err.Error()})
	}
	recs, err := svc.records.ClassRecords(ctx, teacher.Branch, filter.Year, filter.Subject, day)
	if err != nil {
		return nil, errors.Wrap(err, "querying class records")
	}
	return recs, nil
}

// StudentHistory lists the student's records, newest first.
func (svc *Service) StudentHistory(ctx context.Context, student user.Identity) ([]Record, error) {
	recs, err := svc.records.StudentRecords(ctx, student.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying student records")
	}
	return recs, nil
}

func (svc *Service) StudentSummary(ctx context.Context, student user.Identity) ([]SubjectSummary, error) {
	sums, err := svc.records.StudentSummary(ctx, student.ID)
	if err != nil {
		return nil, errors.Wrap(err, "summarizing student records")
	}
	return sums, nil
}
