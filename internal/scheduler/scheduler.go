// Package scheduler hosts the background loop that closes attendance
// sessions once their scheduled duration elapses.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
)

type activeSessionLister interface {
	ListActive(ctx context.Context) ([]models.AttendanceSession, error)
}

type sessionCloser interface {
	End(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error)
}

type metricsRecorder interface {
	SchedulerPass()
	SchedulerFailure()
	SessionClosed(status, trigger string)
}

// AutoEndScheduler periodically scans active sessions and ends the expired
// ones through the ordinary state machine, so each close carries the same
// backfill, token revocation, and notification side effects as a manual end.
// Racing a manual end is safe: the CAS inside End makes the loser a no-op.
//
// One instance per process. Start is supervised: a second call while running
// is rejected, and after Stop the scheduler can be started again.
type AutoEndScheduler struct {
	sessions activeSessionLister
	closer   sessionCloser
	interval time.Duration
	logger   *zap.Logger
	metrics  metricsRecorder
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	lastPass time.Time
}

// New constructs the scheduler. metrics may be nil.
func New(sessions activeSessionLister, closer sessionCloser, interval time.Duration, logger *zap.Logger, metrics metricsRecorder) *AutoEndScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoEndScheduler{
		sessions: sessions,
		closer:   closer,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the loop with an eager first pass. Returns false if the
// scheduler is already running in this process.
func (s *AutoEndScheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("auto-end scheduler already running, duplicate start ignored")
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(loopCtx)
	s.logger.Info("auto-end scheduler started", zap.Duration("interval", s.interval))
	return true
}

// Stop signals the loop to exit and waits for it.
func (s *AutoEndScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("auto-end scheduler stopped")
}

// Healthy reports whether the loop is running and has completed a pass
// within two intervals, so a supervisor can detect a dead loop and relaunch.
func (s *AutoEndScheduler) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	if s.lastPass.IsZero() {
		// Startup pass still pending.
		return true
	}
	return s.now().Sub(s.lastPass) < 2*s.interval
}

func (s *AutoEndScheduler) run(ctx context.Context) {
	defer close(s.done)

	s.pass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

// pass ends every expired active session. Per-session failures are logged
// and counted without aborting the batch.
func (s *AutoEndScheduler) pass(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.lastPass = s.now()
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SchedulerPass()
		}
	}()

	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		s.logger.Error("auto-end scan failed", zap.Error(err))
		if s.metrics != nil {
			s.metrics.SchedulerFailure()
		}
		return
	}

	now := s.now()
	ended := 0
	for _, session := range active {
		if !session.Expired(now) {
			continue
		}
		if _, err := s.closer.End(ctx, models.SystemActor(), session.ID); err != nil {
			// Losing the race to a manual end is expected and benign.
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Code == appErrors.ErrSessionNotActive.Code {
				continue
			}
			s.logger.Error("failed to auto-end session",
				zap.String("session_id", session.ID), zap.Error(err))
			if s.metrics != nil {
				s.metrics.SchedulerFailure()
			}
			continue
		}
		ended++
		s.logger.Info("session auto-ended",
			zap.String("session_id", session.ID),
			zap.String("title", session.Title),
			zap.Time("scheduled_end", session.ScheduledEnd()))
		if s.metrics != nil {
			s.metrics.SessionClosed(string(models.SessionEnded), "auto")
		}
	}
	if ended > 0 {
		s.logger.Info("auto-end pass complete", zap.Int("ended", ended), zap.Int("scanned", len(active)))
	}
}
