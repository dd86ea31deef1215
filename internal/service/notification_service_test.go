package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	"github.com/noah-isme/geo-attendance-api/pkg/config"
)

type sinkStub struct {
	mu         sync.Mutex
	perStudent map[string][][]byte
	broadcasts [][]byte
}

func newSinkStub() *sinkStub {
	return &sinkStub{perStudent: make(map[string][][]byte)}
}

func (s *sinkStub) SendToStudent(studentID string, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perStudent[studentID] = append(s.perStudent[studentID], payload)
	return true
}

func (s *sinkStub) Broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, payload)
}

func (s *sinkStub) received(studentID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.perStudent[studentID]...)
}

func (s *sinkStub) broadcastCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.broadcasts)
}

func notificationsConfig() config.NotificationsConfig {
	return config.NotificationsConfig{BufferSize: 64, MaxRetries: 1, RetryDelay: 10 * time.Millisecond}
}

func TestNotificationFanOut(t *testing.T) {
	sink := newSinkStub()
	svc := NewNotificationService(sink, notificationsConfig(), nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	session := &models.AttendanceSession{ID: "sess-1", CourseID: "course-1"}
	svc.SessionStarted(session, []string{"student-1", "student-2"})

	require.Eventually(t, func() bool {
		return len(sink.received("student-1")) == 1 && len(sink.received("student-2")) == 1
	}, time.Second, 10*time.Millisecond)

	var event struct {
		Type    models.NotificationType   `json:"type"`
		Payload *models.AttendanceSession `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(sink.received("student-1")[0], &event))
	assert.Equal(t, models.NotifySessionStarted, event.Type)
	assert.Equal(t, "sess-1", event.Payload.ID)
}

func TestNotificationPerStudentOrder(t *testing.T) {
	sink := newSinkStub()
	svc := NewNotificationService(sink, notificationsConfig(), nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	session := &models.AttendanceSession{ID: "sess-1"}
	svc.SessionStarted(session, []string{"student-1"})
	svc.AttendanceMarked("student-1", map[string]string{"status": "present"})
	svc.SessionEnded(session, []string{"student-1"})

	require.Eventually(t, func() bool {
		return len(sink.received("student-1")) == 3
	}, time.Second, 10*time.Millisecond)

	var kinds []models.NotificationType
	for _, raw := range sink.received("student-1") {
		var event struct {
			Type models.NotificationType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &event))
		kinds = append(kinds, event.Type)
	}
	assert.Equal(t, []models.NotificationType{
		models.NotifySessionStarted,
		models.NotifyAttendanceMarked,
		models.NotifySessionEnded,
	}, kinds, "single delivery worker preserves emission order")
}

func TestNotificationBroadcast(t *testing.T) {
	sink := newSinkStub()
	svc := NewNotificationService(sink, notificationsConfig(), nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Broadcast(map[string]string{"announcement": "maintenance at noon"})

	require.Eventually(t, func() bool {
		return sink.broadcastCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotificationEnqueueBeforeStart(t *testing.T) {
	sink := newSinkStub()
	svc := NewNotificationService(sink, notificationsConfig(), nil, nil)

	// Not started: best-effort enqueue drops silently instead of blocking.
	svc.AttendanceMarked("student-1", nil)
	assert.Empty(t, sink.received("student-1"))
}
