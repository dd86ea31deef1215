package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	"github.com/noah-isme/geo-attendance-api/internal/service"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
	"github.com/noah-isme/geo-attendance-api/pkg/response"
)

type tokenService interface {
	Issue(ctx context.Context, session *models.AttendanceSession, ttl time.Duration, maxUses int) (*models.IssuedToken, error)
	Refresh(ctx context.Context, session *models.AttendanceSession, oldSecret string, ttl time.Duration, maxUses int) (*models.IssuedToken, error)
}

// TokenHandler exposes QR token issuance for session owners.
type TokenHandler struct {
	service  tokenService
	sessions sessionAccessor
	metrics  *service.MetricsService
}

// NewTokenHandler constructs the handler. metrics may be nil.
func NewTokenHandler(svc tokenService, sessions sessionAccessor, metrics *service.MetricsService) *TokenHandler {
	return &TokenHandler{service: svc, sessions: sessions, metrics: metrics}
}

// issueTokenRequest tunes one issuance. A nil max_uses falls back to the
// configured default; 0 means unlimited scans until expiry.
type issueTokenRequest struct {
	TTLSeconds int    `json:"ttl_seconds" binding:"omitempty,gte=30,lte=3600"`
	MaxUses    *int   `json:"max_uses" binding:"omitempty,gte=0"`
	OldToken   string `json:"old_token"`
}

// Issue godoc
// @Summary Issue a QR attendance token for an active session
// @Tags Tokens
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body issueTokenRequest false "Issuance options"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/token [post]
func (h *TokenHandler) Issue(c *gin.Context) {
	h.issue(c, false)
}

// Refresh godoc
// @Summary Rotate the session QR token, revoking the previous one
// @Tags Tokens
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body issueTokenRequest false "Issuance options"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/token/refresh [post]
func (h *TokenHandler) Refresh(c *gin.Context) {
	h.issue(c, true)
}

func (h *TokenHandler) issue(c *gin.Context, rotate bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if !claims.IsTeacher() && !claims.IsAdmin() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only teachers issue attendance tokens"))
		return
	}

	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	// Get enforces that teachers only reach their own sessions.
	session, err := h.sessions.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	maxUses := -1
	if req.MaxUses != nil {
		maxUses = *req.MaxUses
	}

	var issued *models.IssuedToken
	if rotate {
		issued, err = h.service.Refresh(c.Request.Context(), session, req.OldToken, ttl, maxUses)
	} else {
		issued, err = h.service.Issue(c.Request.Context(), session, ttl, maxUses)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.TokenIssued()
	response.JSON(c, http.StatusCreated, issued, nil)
}
