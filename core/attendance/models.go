package attendance

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
)

const dayLayout = "2006-01-02"

// Status of a student on a given day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

func (s Status) IsValid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Day is a calendar date, formatted as YYYY-MM-DD.
type Day string

// DayOf returns the calendar date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(dayLayout))
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Day(t.Format(dayLayout)), nil
}

func (d Day) String() string {
	return string(d)
}

// Value implements driver.Valuer.
func (d Day) Value() (driver.Value, error) {
	return string(d), nil
}

// Scan implements sql.Scanner. Drivers hand back DATE columns either as time.Time or as text.
func (d *Day) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = Day(v.Format(dayLayout))
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	case nil:
		*d = ""
	default:
		return fmt.Errorf("cannot scan %T into attendance.Day", src)
	}
	return nil
}

func (d *Day) scanText(s string) error {
	if len(s) < len(dayLayout) {
		return fmt.Errorf("cannot scan %q into attendance.Day", s)
	}
	day, err := ParseDay(s[:len(dayLayout)])
	if err != nil {
		return err
	}
	*d = day
	return nil
}

// Session is a time-boxed attendance window for one class (branch + year + subject).
type Session struct {
	ID        int64     `db:"id" json:"id"`
	Token     string    `db:"session_token" json:"session_code"`
	ShortCode string    `db:"short_code" json:"digit_code"`
	TeacherID int64     `db:"teacher_id" json:"teacher_id"`
	Branch    string    `db:"branch" json:"branch"`
	Year      string    `db:"year" json:"year"`
	Subject   string    `db:"subject" json:"subject"`
	CreatedAt time.Time `db:"created_at" json:"created_at"` // UTC
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"` // UTC
	IsActive  bool      `db:"is_active" json:"is_active"`
}

// Expired reports whether the window closed before now. A session expiring exactly at now is still open.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// Record is one ledger line: a student's status for a subject on a day.
type Record struct {
	ID        int64      `db:"id" json:"id"`
	StudentID int64      `db:"student_id" json:"student_id"`
	Subject   string     `db:"subject" json:"subject"`
	Date      Day        `db:"date" json:"date"`
	Status    Status     `db:"status" json:"status"`
	Branch    string     `db:"branch" json:"branch"`
	Year      string     `db:"year" json:"year"`
	SessionID null.Int64 `db:"session_id" json:"session_id"` // set when redeemed through a session
	MarkedBy  null.Int64 `db:"marked_by" json:"marked_by"`   // set on manual entries
	CreatedAt time.Time  `db:"created_at" json:"created_at"` // UTC
}

// DaySummary counts a class's attendance for one subject on one day.
type DaySummary struct {
	Date    Day `db:"date" json:"date"`
	Present int `db:"present" json:"present"`
	Absent  int `db:"absent" json:"absent"`
}

// SubjectSummary counts a student's attendance for one subject.
type SubjectSummary struct {
	Subject string `db:"subject" json:"subject"`
	Present int    `db:"present" json:"present"`
	Total   int    `db:"total" json:"total"`
}

// MarkedEvent is published after every successful redemption.
type MarkedEvent struct {
	TeacherID   int64     `json:"-"`
	SessionCode string    `json:"session_code"`
	StudentID   int64     `json:"student_id"`
	Subject     string    `json:"subject"`
	Date        Day       `json:"date"`
	MarkedAt    time.Time `json:"marked_at"`
}

// StartSession is the teacher's request to open an attendance window.
type StartSession struct {
	Subject string `json:"subject" validate:"required,notblank,max=100"`
	Year    string `json:"year" validate:"required,notblank,max=20"`
}

// MarkAttendance is the student's redemption request.
type MarkAttendance struct {
	DigitCode string `json:"digit_code" validate:"required,shortcode"`
}

// ManualCheck asks whether a class already has attendance for a subject on a day.
type ManualCheck struct {
	Subject string `query:"subject" validate:"required,notblank"`
	Year    string `query:"year" validate:"required,notblank"`
	Date    string `query:"date" validate:"required,datetime=2006-01-02"`
}

// ManualEntry is one student line of a manual attendance batch.
type ManualEntry struct {
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Status    Status `json:"status" validate:"required,oneof=present absent"`
}

// ManualAttendance is a teacher-submitted batch for one class, subject and day.
type ManualAttendance struct {
	Subject string        `json:"subject" validate:"required,notblank,max=100"`
	Year    string        `json:"year" validate:"required,notblank,max=20"`
	Date    string        `json:"attendance_date" validate:"required,datetime=2006-01-02"`
	Records []ManualEntry `json:"records" validate:"required,min=1,dive"`
}

// HistoryFilter selects a class's attendance for a subject, and optionally a single day.
type HistoryFilter struct {
	Subject string `query:"subject" validate:"required,notblank"`
	Year    string `query:"year" validate:"required,notblank"`
	Date    string `query:"attendance_date" validate:"omitempty,datetime=2006-01-02"`
}
