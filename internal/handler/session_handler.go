package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	"github.com/noah-isme/geo-attendance-api/internal/service"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
	"github.com/noah-isme/geo-attendance-api/pkg/response"
)

type sessionService interface {
	Start(ctx context.Context, actor *models.JWTClaims, req service.StartSessionRequest) (*models.AttendanceSession, error)
	End(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error)
	Get(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error)
	List(ctx context.Context, actor *models.JWTClaims, status *models.SessionStatus, page, pageSize int) ([]models.AttendanceSession, *models.Pagination, error)
	ActiveForStudent(ctx context.Context, studentID string) ([]models.ActiveSessionInfo, error)
	Stats(ctx context.Context, actor *models.JWTClaims) (*models.SessionStats, error)
}

// SessionHandler exposes the attendance-session lifecycle endpoints.
type SessionHandler struct {
	service sessionService
	metrics *service.MetricsService
}

// NewSessionHandler constructs the handler. metrics may be nil.
func NewSessionHandler(svc sessionService, metrics *service.MetricsService) *SessionHandler {
	return &SessionHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Start an attendance session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.StartSessionRequest true "Session parameters"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	session, err := h.service.Start(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.SessionStarted()
	response.Created(c, session)
}

// List godoc
// @Summary List sessions visible to the caller
// @Tags Sessions
// @Produce json
// @Param status query string false "Filter by status (active/ended/cancelled)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var status *models.SessionStatus
	if raw := c.Query("status"); raw != "" {
		parsed := models.SessionStatus(raw)
		if !parsed.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown session status"))
			return
		}
		status = &parsed
	}

	sessions, pagination, err := h.service.List(c.Request.Context(), claims, status,
		parseQueryInt(c, "page", 1), parseQueryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Fetch one session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// End godoc
// @Summary End an active session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	h.close(c, false)
}

// Cancel godoc
// @Summary Cancel an active session without counting attendance
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	h.close(c, true)
}

func (h *SessionHandler) close(c *gin.Context, cancel bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var (
		session *models.AttendanceSession
		err     error
	)
	if cancel {
		session, err = h.service.Cancel(c.Request.Context(), claims, c.Param("id"))
	} else {
		session, err = h.service.End(c.Request.Context(), claims, c.Param("id"))
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.SessionClosed(string(session.Status), "manual")
	response.JSON(c, http.StatusOK, session, nil)
}

// Active godoc
// @Summary Active sessions for the calling student with marking state
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sessions/active [get]
func (h *SessionHandler) Active(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if !claims.IsStudent() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only students poll active sessions"))
		return
	}

	infos, err := h.service.ActiveForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, infos, nil)
}

// Stats godoc
// @Summary Session and attendance aggregates for dashboards
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sessions/stats [get]
func (h *SessionHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
