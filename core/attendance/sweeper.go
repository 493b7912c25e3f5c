package attendance

import (
	"context"
	"expvar"
	"fmt"
	"time"

	"github.com/rahulsahu-12/nexus2/core"
)

// exposed under /debug/vars
var (
	sweepRuns     = expvar.NewInt("attendance_sweeps")
	sweptSessions = expvar.NewInt("attendance_swept_sessions")
	sweepFailures = expvar.NewInt("attendance_sweep_failures")
)

type Sweepable interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deactivates expired sessions. Failures are logged and retried on the next tick.
type Sweeper struct {
	svc      Sweepable
	interval time.Duration
	logger   core.Logger
}

func NewSweeper(svc Sweepable, conf *core.Config, logger core.Logger) *Sweeper {
	interval := conf.Attendance.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(fmt.Sprintf("attendance sweeper started : every %v", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("attendance sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of sessions it closed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	sweepRuns.Add(1)
	n, err := s.svc.SweepExpired(ctx)
	if err != nil {
		sweepFailures.Add(1)
		s.logger.Error(fmt.Sprintf("sweeping expired sessions: %v", err), err)
		return 0
	}
	if n > 0 {
		sweptSessions.Add(n)
		s.logger.Debug(fmt.Sprintf("deactivated %d expired session(s)", n))
	}
	return n
}
