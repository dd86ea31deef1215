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

type attendanceService interface {
	MarkByLocation(ctx context.Context, studentID string, req service.MarkByLocationRequest) (*models.MarkResult, error)
	MarkByToken(ctx context.Context, studentID string, claims *models.TokenClaims, req service.MarkByTokenRequest) (*models.MarkResult, error)
	StudentHistory(ctx context.Context, studentID string, limit int) ([]models.Attendance, error)
	SessionReport(ctx context.Context, sessionID string) ([]models.Attendance, error)
}

type tokenVerifier interface {
	Verify(ctx context.Context, secret string) (*models.TokenClaims, error)
}

type sessionAccessor interface {
	Get(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error)
}

// AttendanceHandler exposes marking, history, and report endpoints.
type AttendanceHandler struct {
	service  attendanceService
	tokens   tokenVerifier
	sessions sessionAccessor
	metrics  *service.MetricsService
}

// NewAttendanceHandler constructs the handler. metrics may be nil.
func NewAttendanceHandler(svc attendanceService, tokens tokenVerifier, sessions sessionAccessor, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, tokens: tokens, sessions: sessions, metrics: metrics}
}

// MarkByLocation godoc
// @Summary Mark attendance with GPS coordinates
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkByLocationRequest true "Session and coordinates"
// @Success 201 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) MarkByLocation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.MarkByLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	result, err := h.service.MarkByLocation(c.Request.Context(), claims.UserID, req)
	if err != nil {
		h.metrics.AttendanceMarked("location", "error")
		response.Error(c, err)
		return
	}
	h.metrics.AttendanceMarked("location", string(result.Attendance.Status))
	response.Created(c, result)
}

// MarkByToken godoc
// @Summary Mark attendance by scanning a session QR token
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkByTokenRequest true "Token and optional coordinates"
// @Success 201 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) MarkByToken(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.MarkByTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	tokenClaims, err := h.tokens.Verify(c.Request.Context(), req.Token)
	if err != nil {
		h.metrics.TokenVerified("invalid")
		response.Error(c, err)
		return
	}
	h.metrics.TokenVerified("ok")

	result, err := h.service.MarkByToken(c.Request.Context(), claims.UserID, tokenClaims, req)
	if err != nil {
		h.metrics.AttendanceMarked("token", "error")
		response.Error(c, err)
		return
	}
	h.metrics.AttendanceMarked("token", string(result.Attendance.Status))
	response.Created(c, result)
}

// History godoc
// @Summary The calling student's attendance history, newest first
// @Tags Attendance
// @Produce json
// @Param limit query int false "Max records"
// @Success 200 {object} response.Envelope
// @Router /attendance/history [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	records, err := h.service.StudentHistory(c.Request.Context(), claims.UserID, parseQueryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Report godoc
// @Summary Attendance roster for one session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) Report(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	// Get applies the ownership and enrollment rules.
	session, err := h.sessions.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.IsStudent() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students cannot view session rosters"))
		return
	}

	records, err := h.service.SessionReport(c.Request.Context(), session.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
