package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
)

// tokenRepoStub stores tokens in memory and applies the same usability
// predicate the SQL consume statement enforces; check and increment happen
// under one lock.
type tokenRepoStub struct {
	mu     sync.Mutex
	tokens map[string]*models.AttendanceToken
}

func newTokenRepoStub() *tokenRepoStub {
	return &tokenRepoStub{tokens: make(map[string]*models.AttendanceToken)}
}

func (s *tokenRepoStub) Create(_ context.Context, token *models.AttendanceToken) (*models.AttendanceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *token
	stored.ID = "tok-" + token.Digest[:8]
	stored.IsActive = true
	s.tokens[token.Digest] = &stored
	return &stored, nil
}

func (s *tokenRepoStub) Consume(_ context.Context, digest string, now time.Time) (*models.AttendanceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[digest]
	if !ok || !token.Usable(now) {
		return nil, sql.ErrNoRows
	}
	token.UsedCount++
	used := *token
	return &used, nil
}

func (s *tokenRepoStub) DeactivateByDigest(_ context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[digest]; ok {
		token.IsActive = false
	}
	return nil
}

func (s *tokenRepoStub) DeactivateBySession(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if token.SessionID == sessionID && token.IsActive {
			token.IsActive = false
			count++
		}
	}
	return count, nil
}

func activeSession() *models.AttendanceSession {
	return &models.AttendanceSession{
		ID:        "sess-1",
		CourseID:  "course-1",
		TeacherID: "teacher-1",
		Status:    models.SessionActive,
		StartedAt: time.Now().UTC(),
	}
}

func newTokenService(repo *tokenRepoStub) *TokenService {
	return NewTokenService(repo, TokenServiceConfig{Secret: "test-secret", DefaultTTL: 10 * time.Minute}, nil)
}

func TestTokenServiceIssueAndVerify(t *testing.T) {
	repo := newTokenRepoStub()
	svc := newTokenService(repo)

	issued, err := svc.Issue(context.Background(), activeSession(), 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Secret)
	assert.NotEmpty(t, issued.Digest)
	assert.Contains(t, issued.QRCode, "data:image/png;base64,")

	claims, err := svc.Verify(context.Background(), issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "course-1", claims.CourseID)
	assert.Equal(t, models.TokenTypeAttendance, claims.TokenType)
}

func TestTokenServiceIssueInactiveSession(t *testing.T) {
	svc := newTokenService(newTokenRepoStub())
	session := activeSession()
	session.Status = models.SessionEnded

	_, err := svc.Issue(context.Background(), session, 0, 0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionNotActive.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceVerifyCappedToken(t *testing.T) {
	svc := newTokenService(newTokenRepoStub())

	issued, err := svc.Issue(context.Background(), activeSession(), 0, 1)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), issued.Secret)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), issued.Secret)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceVerifyConcurrentSingleUse(t *testing.T) {
	svc := newTokenService(newTokenRepoStub())

	issued, err := svc.Issue(context.Background(), activeSession(), 0, 1)
	require.NoError(t, err)

	const scans = 20
	errs := make(chan error, scans)
	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(context.Background(), issued.Secret)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case appErrors.FromError(err).Code == appErrors.ErrInvalidToken.Code:
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "a single-use token survives exactly one racing scan")
	assert.Equal(t, scans-1, rejected)
}

func TestTokenServiceVerifyExpired(t *testing.T) {
	repo := newTokenRepoStub()
	svc := newTokenService(repo)

	issued, err := svc.Issue(context.Background(), activeSession(), time.Minute, 0)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	_, err = svc.Verify(context.Background(), issued.Secret)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceVerifyGarbage(t *testing.T) {
	svc := newTokenService(newTokenRepoStub())
	_, err := svc.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceVerifyRejectsAccessToken(t *testing.T) {
	svc := newTokenService(newTokenRepoStub())

	// An access token signed with the same secret must never pass as a QR
	// capability.
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: "student-1",
		Role:   models.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), accessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceRefreshRevokesOld(t *testing.T) {
	repo := newTokenRepoStub()
	svc := newTokenService(repo)
	session := activeSession()

	first, err := svc.Issue(context.Background(), session, 0, 0)
	require.NoError(t, err)

	second, err := svc.Refresh(context.Background(), session, first.Secret, 0, 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	_, err = svc.Verify(context.Background(), first.Secret)
	require.Error(t, err, "rotated-out secret must stop verifying")

	_, err = svc.Verify(context.Background(), second.Secret)
	require.NoError(t, err)
}

func TestTokenServiceRevokeAll(t *testing.T) {
	repo := newTokenRepoStub()
	svc := newTokenService(repo)
	session := activeSession()

	first, err := svc.Issue(context.Background(), session, 0, 0)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), session, 0, 0)
	require.NoError(t, err)

	revoked, err := svc.RevokeAll(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	for _, secret := range []string{first.Secret, second.Secret} {
		_, err = svc.Verify(context.Background(), secret)
		require.Error(t, err)
	}
}
