package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
)

type tokenRepository interface {
	Create(ctx context.Context, token *models.AttendanceToken) (*models.AttendanceToken, error)
	Consume(ctx context.Context, digest string, now time.Time) (*models.AttendanceToken, error)
	DeactivateByDigest(ctx context.Context, digest string) error
	DeactivateBySession(ctx context.Context, sessionID string) (int, error)
}

// TokenServiceConfig tunes issuance defaults.
type TokenServiceConfig struct {
	Secret         string
	DefaultTTL     time.Duration
	DefaultMaxUses int
	QRCodeSize     int
}

// TokenService issues and verifies the signed, time-limited capabilities that
// substitute for raw-location verification. Secrets are HS256 JWTs; only the
// SHA-256 digest is persisted for lookup.
type TokenService struct {
	repo   tokenRepository
	cfg    TokenServiceConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenService constructs the token service.
func NewTokenService(repo tokenRepository, cfg TokenServiceConfig, logger *zap.Logger) *TokenService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.QRCodeSize <= 0 {
		cfg.QRCodeSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{repo: repo, cfg: cfg, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Issue creates a new token for an active session and renders its QR code.
// A non-positive ttl falls back to the configured default; maxUses of 0
// means unlimited scans until expiry.
func (s *TokenService) Issue(ctx context.Context, session *models.AttendanceSession, ttl time.Duration, maxUses int) (*models.IssuedToken, error) {
	if session == nil || !session.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "cannot issue token for inactive session")
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if maxUses < 0 {
		maxUses = s.cfg.DefaultMaxUses
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := models.TokenClaims{
		SessionID: session.ID,
		CourseID:  session.CourseID,
		TeacherID: session.TeacherID,
		TokenType: models.TokenTypeAttendance,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	secret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	digest := digestOf(secret)

	stored, err := s.repo.Create(ctx, &models.AttendanceToken{
		SessionID: session.ID,
		Digest:    digest,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store token")
	}

	qr, err := renderQRCode(secret, s.cfg.QRCodeSize)
	if err != nil {
		// The secret itself is still scannable as text.
		s.logger.Warn("qr render failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	s.logger.Info("attendance token issued",
		zap.String("session_id", session.ID),
		zap.String("token_id", stored.ID),
		zap.Time("expires_at", expiresAt),
		zap.Int("max_uses", maxUses))

	return &models.IssuedToken{
		TokenID:   stored.ID,
		Secret:    secret,
		Digest:    digest,
		QRCode:    qr,
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
	}, nil
}

// Verify checks the signature and the stored token state, consuming one use.
// The read-verify-increment happens in a single atomic update keyed by the
// digest, so concurrent scans of a capped token serialize in the store.
// Verification does not mark attendance.
func (s *TokenService) Verify(ctx context.Context, secret string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	parsed, err := jwt.ParseWithClaims(secret, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.ErrInvalidToken
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	if claims.TokenType != models.TokenTypeAttendance {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	token, err := s.repo.Consume(ctx, digestOf(secret), s.now())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify token")
	}

	s.logger.Info("attendance token used",
		zap.String("token_id", token.ID),
		zap.String("session_id", token.SessionID),
		zap.Int("used_count", token.UsedCount))
	return claims, nil
}

// RevokeAll deactivates every active token for a session. Called on session
// close so stale QR codes stop working.
func (s *TokenService) RevokeAll(ctx context.Context, sessionID string) (int, error) {
	revoked, err := s.repo.DeactivateBySession(ctx, sessionID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke tokens")
	}
	if revoked > 0 {
		s.logger.Info("session tokens revoked", zap.String("session_id", sessionID), zap.Int("count", revoked))
	}
	return revoked, nil
}

// Refresh rotates the session token: the old secret (if supplied) is revoked
// and a new short-lived one issued, so a screenshotted QR code goes stale.
func (s *TokenService) Refresh(ctx context.Context, session *models.AttendanceSession, oldSecret string, ttl time.Duration, maxUses int) (*models.IssuedToken, error) {
	if oldSecret != "" {
		if err := s.repo.DeactivateByDigest(ctx, digestOf(oldSecret)); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke old token")
		}
	}
	return s.Issue(ctx, session, ttl, maxUses)
}

func digestOf(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func renderQRCode(data string, size int) (string, error) {
	png, err := qrcode.Encode(data, qrcode.Low, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
