package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
)

type listerStub struct {
	sessions []models.AttendanceSession
	err      error
}

func (s listerStub) ListActive(_ context.Context) ([]models.AttendanceSession, error) {
	return s.sessions, s.err
}

type closerStub struct {
	mu     sync.Mutex
	ended  []string
	errors map[string]error
}

func (s *closerStub) End(_ context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errors[sessionID]; ok {
		return nil, err
	}
	if actor == nil || !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	s.ended = append(s.ended, sessionID)
	return &models.AttendanceSession{ID: sessionID, Status: models.SessionEnded}, nil
}

func (s *closerStub) endedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ended...)
}

type schedulerMetricsStub struct {
	mu       sync.Mutex
	passes   int
	failures int
	closed   int
}

func (s *schedulerMetricsStub) SchedulerPass() {
	s.mu.Lock()
	s.passes++
	s.mu.Unlock()
}

func (s *schedulerMetricsStub) SchedulerFailure() {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
}

func (s *schedulerMetricsStub) SessionClosed(_, _ string) {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

func sessionStartedAgo(id string, ago time.Duration, durationMinutes int) models.AttendanceSession {
	return models.AttendanceSession{
		ID:                id,
		Status:            models.SessionActive,
		StartedAt:         time.Now().UTC().Add(-ago),
		ScheduledDuration: durationMinutes,
	}
}

func TestSchedulerEndsExpiredSessions(t *testing.T) {
	closer := &closerStub{}
	metrics := &schedulerMetricsStub{}
	s := New(listerStub{sessions: []models.AttendanceSession{
		sessionStartedAgo("expired-1", 2*time.Hour, 60),
		sessionStartedAgo("fresh-1", 10*time.Minute, 60),
	}}, closer, time.Minute, nil, metrics)

	s.pass(context.Background())

	assert.Equal(t, []string{"expired-1"}, closer.endedIDs())
	assert.Equal(t, 1, metrics.passes)
	assert.Equal(t, 1, metrics.closed)
	assert.Zero(t, metrics.failures)
}

func TestSchedulerToleratesPerSessionFailures(t *testing.T) {
	closer := &closerStub{errors: map[string]error{
		"broken-1": errors.New("db timeout"),
	}}
	metrics := &schedulerMetricsStub{}
	s := New(listerStub{sessions: []models.AttendanceSession{
		sessionStartedAgo("broken-1", 2*time.Hour, 60),
		sessionStartedAgo("expired-2", 2*time.Hour, 60),
	}}, closer, time.Minute, nil, metrics)

	s.pass(context.Background())

	assert.Equal(t, []string{"expired-2"}, closer.endedIDs(), "batch continues past a failing session")
	assert.Equal(t, 1, metrics.failures)
}

func TestSchedulerLosingRaceIsBenign(t *testing.T) {
	closer := &closerStub{errors: map[string]error{
		"raced-1": appErrors.Clone(appErrors.ErrSessionNotActive, ""),
	}}
	metrics := &schedulerMetricsStub{}
	s := New(listerStub{sessions: []models.AttendanceSession{
		sessionStartedAgo("raced-1", 2*time.Hour, 60),
	}}, closer, time.Minute, nil, metrics)

	s.pass(context.Background())

	assert.Zero(t, metrics.failures, "losing to a manual end is not a failure")
	assert.Zero(t, metrics.closed)
}

func TestSchedulerEagerFirstPass(t *testing.T) {
	closer := &closerStub{}
	s := New(listerStub{sessions: []models.AttendanceSession{
		sessionStartedAgo("expired-1", 2*time.Hour, 60),
	}}, closer, time.Hour, nil, nil)

	require.True(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(closer.endedIDs()) == 1
	}, time.Second, 10*time.Millisecond, "first pass runs without waiting for the ticker")
}

func TestSchedulerDuplicateStartRejected(t *testing.T) {
	s := New(listerStub{}, &closerStub{}, time.Hour, nil, nil)

	require.True(t, s.Start(context.Background()))
	assert.False(t, s.Start(context.Background()))
	s.Stop()

	// After a clean stop the scheduler may be relaunched.
	require.True(t, s.Start(context.Background()))
	s.Stop()
}

func TestSchedulerHealthy(t *testing.T) {
	s := New(listerStub{}, &closerStub{}, time.Minute, nil, nil)
	assert.False(t, s.Healthy(), "not running yet")

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	assert.True(t, s.Healthy(), "startup pass still pending counts as healthy")

	s.mu.Lock()
	s.lastPass = time.Now().UTC()
	s.mu.Unlock()
	assert.True(t, s.Healthy())

	s.mu.Lock()
	s.lastPass = time.Now().UTC().Add(-5 * time.Minute)
	s.mu.Unlock()
	assert.False(t, s.Healthy(), "stalled loop reports unhealthy")
}
