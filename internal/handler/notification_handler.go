package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
	"github.com/noah-isme/geo-attendance-api/pkg/response"
)

type notificationDispatcher interface {
	SessionStarted(session *models.AttendanceSession, studentIDs []string)
	SessionEnded(session *models.AttendanceSession, studentIDs []string)
	AttendanceMarked(studentID string, summary interface{})
	Broadcast(update interface{})
}

// NotificationHandler exposes admin webhooks that inject events into the
// notification pipeline, so external systems (an LMS, a sibling service) can
// push through the same fan-out the engine uses internally.
type NotificationHandler struct {
	dispatcher notificationDispatcher
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(dispatcher notificationDispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

type sessionEventWebhook struct {
	Session    models.AttendanceSession `json:"session"`
	StudentIDs []string                 `json:"student_ids"`
}

type markEventWebhook struct {
	StudentID string      `json:"student_id"`
	Summary   interface{} `json:"summary"`
}

type broadcastWebhook struct {
	Update interface{} `json:"update"`
}

// SessionStarted godoc
// @Summary Inject a session-started event into the fan-out
// @Tags Notifications
// @Accept json
// @Success 202
// @Router /notifications/webhooks/session-started [post]
func (h *NotificationHandler) SessionStarted(c *gin.Context) {
	var req sessionEventWebhook
	if err := c.ShouldBindJSON(&req); err != nil || req.Session.ID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session payload required"))
		return
	}
	h.dispatcher.SessionStarted(&req.Session, req.StudentIDs)
	c.Status(202)
}

// SessionEnded godoc
// @Summary Inject a session-ended event into the fan-out
// @Tags Notifications
// @Accept json
// @Success 202
// @Router /notifications/webhooks/session-ended [post]
func (h *NotificationHandler) SessionEnded(c *gin.Context) {
	var req sessionEventWebhook
	if err := c.ShouldBindJSON(&req); err != nil || req.Session.ID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session payload required"))
		return
	}
	h.dispatcher.SessionEnded(&req.Session, req.StudentIDs)
	c.Status(202)
}

// AttendanceMarked godoc
// @Summary Push a marking confirmation to one student channel
// @Tags Notifications
// @Accept json
// @Success 202
// @Router /notifications/webhooks/attendance-marked [post]
func (h *NotificationHandler) AttendanceMarked(c *gin.Context) {
	var req markEventWebhook
	if err := c.ShouldBindJSON(&req); err != nil || req.StudentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id required"))
		return
	}
	h.dispatcher.AttendanceMarked(req.StudentID, req.Summary)
	c.Status(202)
}

// Broadcast godoc
// @Summary Push an update to every connected client
// @Tags Notifications
// @Accept json
// @Success 202
// @Router /notifications/webhooks/broadcast [post]
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req broadcastWebhook
	if err := c.ShouldBindJSON(&req); err != nil || req.Update == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "update payload required"))
		return
	}
	h.dispatcher.Broadcast(req.Update)
	c.Status(202)
}
