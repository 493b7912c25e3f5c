package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	"github.com/rahulsahu-12/nexus2/storage/database"
)

const recordColumns = `id, student_id, subject, date, status, branch, year, session_id, marked_by, created_at`

type recordRepository struct {
	exec core.DBExecutor
}

var _ attendance.RecordRepository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(exec core.DBExecutor) *recordRepository {
	return &recordRepository{exec: exec}
}

func (repo recordRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo recordRepository) CreateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO attendance_records (student_id, subject, date, status, branch, year, session_id, marked_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	rec.CreatedAt = rec.CreatedAt.UTC()
	err := ex.GetContext(ctx, &rec.ID, q,
		rec.StudentID, rec.Subject, rec.Date, string(rec.Status), rec.Branch, rec.Year,
		rec.SessionID, rec.MarkedBy, rec.CreatedAt,
	)
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return attendance.Record{}, attendance.ErrDuplicateRecord
		}
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	return rec, nil
}

func (repo recordRepository) RecordExists(ctx context.Context, studentID int64, subject string, date attendance.Day, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	var exists bool
	q := ex.Rebind(`SELECT EXISTS(SELECT 1 FROM attendance_records WHERE student_id = ? AND subject = ? AND date = ?)`)
	if err := ex.GetContext(ctx, &exists, q, studentID, subject, date); err != nil {
		return false, errors.Wrap(err, "checking attendance record")
	}
	return exists, nil
}

func (repo recordRepository) ClassRecordExists(ctx context.Context, branch, year, subject string, date attendance.Day, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	var exists bool
	q := ex.Rebind(`
		SELECT EXISTS(
			SELECT 1 FROM attendance_records WHERE branch = ? AND year = ? AND subject = ? AND date = ?
		)`)
	if err := ex.GetContext(ctx, &exists, q, branch, year, subject, date); err != nil {
		return false, errors.Wrap(err, "checking class attendance")
	}
	return exists, nil
}

func (repo recordRepository) ClassDays(ctx context.Context, branch, year, subject string, exec ...core.DBExecutor) ([]attendance.DaySummary, error) {
	ex := repo.getExec(exec)
	days := make([]attendance.DaySummary, 0)
	q := ex.Rebind(`
		SELECT date,
		       SUM(CASE WHEN status = 'present' THEN 1 ELSE 0 END) AS present,
		       SUM(CASE WHEN status = 'absent' THEN 1 ELSE 0 END) AS absent
		FROM attendance_records
		WHERE branch = ? AND year = ? AND subject = ?
		GROUP BY date
		ORDER BY date DESC`)
	if err := ex.SelectContext(ctx, &days, q, branch, year, subject); err != nil {
		return nil, errors.Wrap(err, "querying class days")
	}
	return days, nil
}

func (repo recordRepository) ClassRecords(ctx context.Context, branch, year, subject string, date attendance.Day, exec ...core.DBExecutor) ([]attendance.Record, error) {
	ex := repo.getExec(exec)
	recs := make([]attendance.Record, 0)
	q := ex.Rebind(`
		SELECT ` + recordColumns + ` FROM attendance_records
		WHERE branch = ? AND year = ? AND subject = ? AND date = ?
		ORDER BY student_id`)
	if err := ex.SelectContext(ctx, &recs, q, branch, year, subject, date); err != nil {
		return nil, errors.Wrap(err, "querying class records")
	}
	return normalizeRecords(recs), nil
}

func (repo recordRepository) StudentRecords(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]attendance.Record, error) {
	ex := repo.getExec(exec)
	recs := make([]attendance.Record, 0)
	q := ex.Rebind(`SELECT ` + recordColumns + ` FROM attendance_records WHERE student_id = ? ORDER BY date DESC, subject`)
	if err := ex.SelectContext(ctx, &recs, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying student records")
	}
	return normalizeRecords(recs), nil
}

func (repo recordRepository) StudentSummary(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]attendance.SubjectSummary, error) {
	ex := repo.getExec(exec)
	sums := make([]attendance.SubjectSummary, 0)
	q := ex.Rebind(`
		SELECT subject,
		       SUM(CASE WHEN status = 'present' THEN 1 ELSE 0 END) AS present,
		       COUNT(*) AS total
		FROM attendance_records
		WHERE student_id = ?
		GROUP BY subject
		ORDER BY subject`)
	if err := ex.SelectContext(ctx, &sums, q, studentID); err != nil {
		return nil, errors.Wrap(err, "summarizing student records")
	}
	return sums, nil
}

func normalizeRecords(recs []attendance.Record) []attendance.Record {
	for i := range recs {
		recs[i].CreatedAt = recs[i].CreatedAt.UTC()
	}
	return recs
}
