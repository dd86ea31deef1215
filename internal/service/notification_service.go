package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	"github.com/noah-isme/geo-attendance-api/pkg/config"
	"github.com/noah-isme/geo-attendance-api/pkg/jobs"
)

// NotificationSink is the delivery surface, implemented by the websocket hub.
// SendToStudent reports whether the student had a connected client; both
// calls must never block.
type NotificationSink interface {
	SendToStudent(studentID string, payload []byte) bool
	Broadcast(payload []byte)
}

// NotificationService fans session and attendance events out to student
// channels. Delivery is at-least-once and best-effort: failures are logged
// and dropped, never surfaced to the operation that emitted the event. A
// single delivery worker keeps per-student emission order intact.
type NotificationService struct {
	sink    NotificationSink
	queue   *jobs.Queue
	logger  *zap.Logger
	metrics *MetricsService
}

// NewNotificationService constructs the dispatcher and its delivery queue.
func NewNotificationService(sink NotificationSink, cfg config.NotificationsConfig, logger *zap.Logger, metrics *MetricsService) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{sink: sink, logger: logger, metrics: metrics}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery worker.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery worker.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// SessionStarted notifies each enrolled student that a window opened.
func (s *NotificationService) SessionStarted(session *models.AttendanceSession, studentIDs []string) {
	s.fanOut(models.NotifySessionStarted, session, studentIDs)
}

// SessionEnded notifies each enrolled student that the window closed.
func (s *NotificationService) SessionEnded(session *models.AttendanceSession, studentIDs []string) {
	s.fanOut(models.NotifySessionEnded, session, studentIDs)
}

// AttendanceMarked confirms a marking outcome to the one affected student.
func (s *NotificationService) AttendanceMarked(studentID string, summary interface{}) {
	s.enqueue(models.Notification{
		Type:      models.NotifyAttendanceMarked,
		StudentID: studentID,
		Payload:   summary,
	})
}

// Broadcast pushes an update to every connected client.
func (s *NotificationService) Broadcast(update interface{}) {
	s.enqueue(models.Notification{
		Type:    models.NotifyBroadcastUpdate,
		Payload: update,
	})
}

func (s *NotificationService) fanOut(kind models.NotificationType, session *models.AttendanceSession, studentIDs []string) {
	for _, studentID := range studentIDs {
		s.enqueue(models.Notification{Type: kind, StudentID: studentID, Payload: session})
	}
	s.logger.Info("notification fan-out queued",
		zap.String("type", string(kind)),
		zap.String("session_id", session.ID),
		zap.Int("students", len(studentIDs)))
}

func (s *NotificationService) enqueue(n models.Notification) {
	ok := s.queue.TryEnqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(n.Type),
		Payload: n,
	})
	if !ok && s.metrics != nil {
		s.metrics.NotificationDropped()
	}
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	payload, err := n.Encode()
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if n.StudentID == "" {
		s.sink.Broadcast(payload)
		if s.metrics != nil {
			s.metrics.NotificationDelivered(string(n.Type))
		}
		return nil
	}

	// A disconnected student simply misses the event; there is no backlog.
	if s.sink.SendToStudent(n.StudentID, payload) && s.metrics != nil {
		s.metrics.NotificationDelivered(string(n.Type))
	}
	return nil
}
