package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	"github.com/rahulsahu-12/nexus2/core/user"
	"github.com/rahulsahu-12/nexus2/storage/database/sqlxrepos"
	"github.com/rahulsahu-12/nexus2/tests"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	teacher  = user.Identity{ID: 1, Role: user.RoleTeacher, Branch: "CSE"}
	student  = user.Identity{ID: 10, Role: user.RoleStudent, Branch: "CSE", Year: "2"}
	outsider = user.Identity{ID: 11, Role: user.RoleStudent, Branch: "CSE", Year: "3"}
	dbms     = attendance.StartSession{Subject: "DBMS", Year: "2"}
)

type publisherMock struct {
	mu     sync.Mutex
	events []attendance.MarkedEvent
}

func (p *publisherMock) Publish(evt attendance.MarkedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

type fixture struct {
	svc      *attendance.Service
	sessions attendance.SessionRepository
	records  attendance.RecordRepository
	pub      *publisherMock
}

func setup(t *testing.T, conf ...*core.Config) fixture {
	c := testutil.NewConfig(t)
	if len(conf) > 0 {
		c = conf[0]
	}
	db := testutil.PrepareDB(t, c)
	f := fixture{
		sessions: sqlxrepos.NewSessionRepository(db),
		records:  sqlxrepos.NewRecordRepository(db),
		pub:      &publisherMock{},
	}
	f.svc = attendance.NewService(db, f.sessions, f.records, f.pub, c)
	return f
}

func TestService_OpenSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Freeze(t, t0)

	sess, err := f.svc.OpenSession(ctx, teacher, dbms)
	require.NoError(t, err)
	assert.NotZero(t, sess.ID)
	assert.Len(t, sess.Token, 36)
	assert.Regexp(t, `^[1-9][0-9]{5}$`, sess.ShortCode)
	assert.Equal(t, teacher.ID, sess.TeacherID)
	assert.Equal(t, "CSE", sess.Branch)
	assert.Equal(t, "2", sess.Year)
	assert.Equal(t, "DBMS", sess.Subject)
	assert.True(t, sess.CreatedAt.Equal(t0))
	assert.True(t, sess.ExpiresAt.Equal(t0.Add(3*time.Minute)))
	assert.True(t, sess.IsActive)

	t.Run("invalid arguments", func(t *testing.T) {
		tests := []struct {
			name    string
			teacher user.Identity
			data    attendance.StartSession
		}{
			{name: "no teacher", data: dbms},
			{name: "no branch", teacher: user.Identity{ID: 1, Role: user.RoleTeacher}, data: dbms},
			{name: "no subject", teacher: teacher, data: attendance.StartSession{Year: "2"}},
			{name: "no year", teacher: teacher, data: attendance.StartSession{Subject: "DBMS"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.OpenSession(ctx, tt.teacher, tt.data)
				assert.IsType(t, &core.ArgumentError{}, err)
			})
		}
	})
}

// Scenario D
func TestService_OpenSession_supersedesPrevious(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.Freeze(t, t0)
	first, err := f.svc.OpenSession(ctx, teacher, dbms)
	require.NoError(t, err)

	testutil.Freeze(t, t0.Add(5*time.Second))
	second, err := f.svc.OpenSession(ctx, teacher, attendance.StartSession{Subject: "OS", Year: "2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, err := f.sessions.FindActiveByTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	if first.ShortCode != second.ShortCode {
		_, err = f.svc.Redeem(ctx, student, first.ShortCode)
		assert.Equal(t, attendance.ErrInvalidCode, err)
	}

	// other teachers are left alone
	other := user.Identity{ID: 2, Role: user.RoleTeacher, Branch: "CSE"}
	_, err = f.svc.OpenSession(ctx, other, dbms)
	require.NoError(t, err)
	active, err = f.sessions.FindActiveByTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestService_OpenSession_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.OpenSession(ctx, teacher, dbms)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	// exactly one survivor: closing everything that is still active counts them
	_, err := f.sessions.FindActiveByTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	active, err := f.sessions.DeactivateExpired(ctx, t0.Add(100*365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}

func TestService_OpenSession_codeCollisions(t *testing.T) {
	conf := testutil.NewConfig(t)
	conf.Attendance.CodeAttempts = 3
	f := setup(t, conf)
	ctx := context.Background()
	testutil.Freeze(t, t0)

	testutil.CreateSession(t, f.sessions, 99, "ECE", "1", "DSP", "111111", t0, time.Hour)

	draws := 0
	codes := []string{"111111", "111111", "222222"}
	attendance.NewShortCodeFunc = func() (string, error) {
		code := codes[draws%len(codes)]
		draws++
		return code, nil
	}
	defer func() { attendance.NewShortCodeFunc = attendance.NewShortCode }()

	t.Run("redraws until a free code", func(t *testing.T) {
		sess, err := f.svc.OpenSession(ctx, teacher, dbms)
		require.NoError(t, err)
		assert.Equal(t, "222222", sess.ShortCode)
		assert.Equal(t, 3, draws)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		draws = 0
		codes = []string{"111111"}
		_, err := f.svc.OpenSession(ctx, teacher, dbms)
		assert.Equal(t, attendance.ErrCodeExhausted, err)
		assert.Equal(t, 3, draws)

		// the failed attempts rolled back: the previous session is still active
		active, err := f.sessions.FindActiveByTeacher(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, "222222", active.ShortCode)
	})
}

func TestService_Redeem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.Freeze(t, t0)
	sess, err := f.svc.OpenSession(ctx, teacher, dbms)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		student user.Identity
		code    string
		wantErr error
	}{
		{name: "unknown code", at: t0.Add(5 * time.Second), student: student, code: "999999", wantErr: attendance.ErrInvalidCode},
		{name: "scenario E: other year", at: t0.Add(5 * time.Second), student: outsider, code: sess.ShortCode, wantErr: attendance.ErrForbidden},
		{
			name: "other branch", at: t0.Add(5 * time.Second), code: sess.ShortCode, wantErr: attendance.ErrForbidden,
			student: user.Identity{ID: 12, Role: user.RoleStudent, Branch: "ECE", Year: "2"},
		},
		{name: "scenario A: success", at: t0.Add(10 * time.Second), student: student, code: sess.ShortCode},
		{name: "scenario B: already marked", at: t0.Add(20 * time.Second), student: student, code: sess.ShortCode, wantErr: attendance.ErrAlreadyMarked},
		{name: "code is trimmed", at: t0.Add(25 * time.Second), student: student, code: " " + sess.ShortCode + " ", wantErr: attendance.ErrAlreadyMarked},
		{name: "expiry beats scope", at: t0.Add(4 * time.Minute), student: outsider, code: sess.ShortCode, wantErr: attendance.ErrSessionExpired},
		{
			name: "scenario C: expired before sweep", at: t0.Add(4 * time.Minute), code: sess.ShortCode, wantErr: attendance.ErrSessionExpired,
			student: user.Identity{ID: 13, Role: user.RoleStudent, Branch: "CSE", Year: "2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.Freeze(t, tt.at)
			rec, err := f.svc.Redeem(ctx, tt.student, tt.code)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.student.ID, rec.StudentID)
			assert.Equal(t, "DBMS", rec.Subject)
			assert.Equal(t, attendance.Day("2024-03-01"), rec.Date)
			assert.Equal(t, attendance.StatusPresent, rec.Status)
			assert.Equal(t, sess.ID, rec.SessionID.Int64)
		})
	}

	recs, err := f.records.StudentRecords(ctx, student.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, teacher.ID, f.pub.events[0].TeacherID)
	assert.Equal(t, sess.Token, f.pub.events[0].SessionCode)
	assert.Equal(t, student.ID, f.pub.events[0].StudentID)

	// the session is still flagged active: only the clock rejected the late redemptions
	found, err := f.svc.FindActiveByCode(ctx, sess.ShortCode)
	require.NoError(t, err)
	assert.True(t, found.IsActive)
}

func TestService_Redeem_deactivatedSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.Freeze(t, t0)
	sess, err := f.svc.OpenSession(ctx, teacher, dbms)
	require.NoError(t, err)

	n, err := f.svc.DeactivateExpired(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// a swept session is no longer found at all
	_, err = f.svc.Redeem(ctx, student, sess.ShortCode)
	assert.Equal(t, attendance.ErrInvalidCode, err)
}

func TestService_Redeem_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sess, err := f.svc.OpenSession(ctx, teacher, dbms)
	require.NoError(t, err)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		marked  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, student, sess.ShortCode)

			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				success++
			case attendance.ErrAlreadyMarked:
				marked++
			default:
				t.Errorf("Redeem() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, marked)

	recs, err := f.records.StudentRecords(ctx, student.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestService_ActiveSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.ActiveSession(ctx, teacher)
	assert.Equal(t, attendance.ErrNoActiveSession, err)

	testutil.Freeze(t, t0)
	sess, err := f.svc.OpenSession(ctx, teacher, dbms)
	require.NoError(t, err)

	active, err := f.svc.ActiveSession(ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, active.ID)

	testutil.Freeze(t, t0.Add(4*time.Minute))
	_, err = f.svc.ActiveSession(ctx, teacher)
	assert.Equal(t, attendance.ErrNoActiveSession, err)
}

func TestService_SweepExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.Freeze(t, t0)
	first, err := f.svc.OpenSession(ctx, teacher, dbms)
	require.NoError(t, err)
	other := user.Identity{ID: 2, Role: user.RoleTeacher, Branch: "ECE"}

	testutil.Freeze(t, t0.Add(2*time.Minute))
	_, err = f.svc.OpenSession(ctx, other, attendance.StartSession{Subject: "DSP", Year: "1"})
	require.NoError(t, err)

	testutil.Freeze(t, t0.Add(3*time.Minute+time.Second))
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.FindActiveByCode(ctx, first.ShortCode)
	assert.Equal(t, attendance.ErrSessionNotFound, err)

	// monotonic: sweeping again or later never revives anything
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.ActiveSession(ctx, teacher)
	assert.Equal(t, attendance.ErrNoActiveSession, err)
}

func TestService_MarkManual(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Freeze(t, t0)

	batch := attendance.ManualAttendance{
		Subject: "DBMS",
		Year:    "2",
		Date:    "2024-02-28",
		Records: []attendance.ManualEntry{
			{StudentID: 10, Status: attendance.StatusPresent},
			{StudentID: 11, Status: attendance.StatusAbsent},
		},
	}

	recs, err := f.svc.MarkManual(ctx, teacher, batch)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, attendance.Day("2024-02-28"), recs[0].Date)
	assert.Equal(t, teacher.ID, recs[0].MarkedBy.Int64)
	assert.Equal(t, "CSE", recs[1].Branch)
	assert.Equal(t, attendance.StatusAbsent, recs[1].Status)

	exists, err := f.svc.CheckManual(ctx, teacher, attendance.ManualCheck{Subject: "DBMS", Year: "2", Date: "2024-02-28"})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = f.svc.CheckManual(ctx, teacher, attendance.ManualCheck{Subject: "DBMS", Year: "2", Date: "2024-02-29"})
	require.NoError(t, err)
	assert.False(t, exists)

	t.Run("whole batch fails on one existing record", func(t *testing.T) {
		again := attendance.ManualAttendance{
			Subject: "DBMS",
			Year:    "2",
			Date:    "2024-02-28",
			Records: []attendance.ManualEntry{
				{StudentID: 12, Status: attendance.StatusPresent},
				{StudentID: 10, Status: attendance.StatusAbsent},
			},
		}
		_, err := f.svc.MarkManual(ctx, teacher, again)
		assert.Equal(t, attendance.ErrAttendanceExists, err)

		exists, err := f.records.RecordExists(ctx, 12, "DBMS", "2024-02-28")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("bad date", func(t *testing.T) {
		bad := batch
		bad.Date = "28-02-2024"
		_, err := f.svc.MarkManual(ctx, teacher, bad)
		assert.IsType(t, &core.ValidationError{}, err)
	})

	t.Run("redemption after manual entry", func(t *testing.T) {
		testutil.Freeze(t, time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC))
		sess, err := f.svc.OpenSession(ctx, teacher, dbms)
		require.NoError(t, err)
		_, err = f.svc.Redeem(ctx, student, sess.ShortCode)
		assert.Equal(t, attendance.ErrAlreadyMarked, err)
	})
}

func TestService_History(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateRecord(t, f.records, 10, "CSE", "2", "DBMS", "2024-03-01", attendance.StatusPresent)
	testutil.CreateRecord(t, f.records, 11, "CSE", "2", "DBMS", "2024-03-01", attendance.StatusAbsent)
	testutil.CreateRecord(t, f.records, 10, "CSE", "2", "DBMS", "2024-03-02", attendance.StatusPresent)
	testutil.CreateRecord(t, f.records, 10, "CSE", "2", "OS", "2024-03-02", attendance.StatusAbsent)
	testutil.CreateRecord(t, f.records, 20, "ECE", "2", "DBMS", "2024-03-02", attendance.StatusPresent)

	days, err := f.svc.SubjectHistory(ctx, teacher, attendance.HistoryFilter{Subject: "DBMS", Year: "2"})
	require.NoError(t, err)
	assert.Equal(t, []attendance.DaySummary{
		{Date: "2024-03-02", Present: 1},
		{Date: "2024-03-01", Present: 1, Absent: 1},
	}, days)

	recs, err := f.svc.DateHistory(ctx, teacher, attendance.HistoryFilter{Subject: "DBMS", Year: "2", Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = f.svc.DateHistory(ctx, teacher, attendance.HistoryFilter{Subject: "DBMS", Year: "2"})
	assert.IsType(t, &core.ValidationError{}, err)

	recs, err = f.svc.StudentHistory(ctx, student)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, attendance.Day("2024-03-02"), recs[0].Date)
	assert.Equal(t, attendance.Day("2024-03-01"), recs[2].Date)

	sums, err := f.svc.StudentSummary(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, []attendance.SubjectSummary{
		{Subject: "DBMS", Present: 2, Total: 2},
		{Subject: "OS", Present: 0, Total: 1},
	}, sums)
}

func TestService_Today(t *testing.T) {
	conf := testutil.NewConfig(t)
	conf.Attendance.Timezone = "Asia/Kolkata"
	f := setup(t, conf)

	testutil.Freeze(t, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, attendance.Day("2024-03-02"), f.svc.Today())
}
