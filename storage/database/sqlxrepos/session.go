package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	"github.com/rahulsahu-12/nexus2/storage/database"
)

const sessionColumns = `id, session_token, short_code, teacher_id, branch, year, subject, created_at, expires_at, is_active`

type sessionRepository struct {
	exec core.DBExecutor
}

var _ attendance.SessionRepository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(exec core.DBExecutor) *sessionRepository {
	return &sessionRepository{exec: exec}
}

func (repo sessionRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps "no rows" err to attendance.ErrSessionNotFound
func (repo sessionRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attendance.ErrSessionNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo sessionRepository) CreateSession(ctx context.Context, sess attendance.Session, exec ...core.DBExecutor) (attendance.Session, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO attendance_sessions (session_token, short_code, teacher_id, branch, year, subject, created_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	err := ex.GetContext(ctx, &sess.ID, q,
		sess.Token, sess.ShortCode, sess.TeacherID, sess.Branch, sess.Year, sess.Subject,
		sess.CreatedAt, sess.ExpiresAt, sess.IsActive,
	)
	if err != nil {
		switch {
		case database.ViolatesUnique(err, "short_code"):
			return attendance.Session{}, attendance.ErrCodeCollision
		case database.ViolatesUnique(err, "teacher_id"):
			return attendance.Session{}, attendance.ErrSessionConflict
		}
		return attendance.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (repo sessionRepository) ActiveCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	var exists bool
	q := ex.Rebind(`SELECT EXISTS(SELECT 1 FROM attendance_sessions WHERE short_code = ? AND is_active)`)
	if err := ex.GetContext(ctx, &exists, q, code); err != nil {
		return false, errors.Wrap(err, "checking active code")
	}
	return exists, nil
}

func (repo sessionRepository) FindActiveByCode(ctx context.Context, code string, exec ...core.DBExecutor) (attendance.Session, error) {
	ex := repo.getExec(exec)
	var sess attendance.Session
	q := ex.Rebind(`SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE short_code = ? AND is_active`)
	if err := ex.GetContext(ctx, &sess, q, code); err != nil {
		return attendance.Session{}, repo.trapNoRowsErr(err, "finding session by code")
	}
	return normalizeSession(sess), nil
}

func (repo sessionRepository) FindActiveByTeacher(ctx context.Context, teacherID int64, exec ...core.DBExecutor) (attendance.Session, error) {
	ex := repo.getExec(exec)
	var sess attendance.Session
	q := ex.Rebind(`SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE teacher_id = ? AND is_active`)
	if err := ex.GetContext(ctx, &sess, q, teacherID); err != nil {
		return attendance.Session{}, repo.trapNoRowsErr(err, "finding session by teacher")
	}
	return normalizeSession(sess), nil
}

func (repo sessionRepository) DeactivateTeacherSessions(ctx context.Context, teacherID int64, exec ...core.DBExecutor) (int64, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`UPDATE attendance_sessions SET is_active = FALSE WHERE teacher_id = ? AND is_active`)
	res, err := ex.ExecContext(ctx, q, teacherID)
	if err != nil {
		return 0, errors.Wrap(err, "deactivating teacher sessions")
	}
	return rowsAffected(res)
}

func (repo sessionRepository) DeactivateExpired(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`UPDATE attendance_sessions SET is_active = FALSE WHERE is_active AND expires_at < ?`)
	res, err := ex.ExecContext(ctx, q, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deactivating expired sessions")
	}
	return rowsAffected(res)
}

// normalizeSession drops driver-specific zones so that sessions compare equal whatever the engine.
func normalizeSession(sess attendance.Session) attendance.Session {
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return sess
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading rows affected")
	}
	return n, nil
}
