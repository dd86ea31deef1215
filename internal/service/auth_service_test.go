package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
)

func signAccessToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService("test-secret")
	raw := signAccessToken(t, "test-secret", &models.JWTClaims{
		UserID: "teacher-1",
		Role:   models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.True(t, claims.IsTeacher())
}

func TestAuthServiceValidateTokenExpired(t *testing.T) {
	svc := NewAuthService("test-secret")
	raw := signAccessToken(t, "test-secret", &models.JWTClaims{
		UserID: "teacher-1",
		Role:   models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := svc.ValidateToken(raw)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenWrongSecret(t *testing.T) {
	svc := NewAuthService("test-secret")
	raw := signAccessToken(t, "other-secret", &models.JWTClaims{
		UserID: "teacher-1",
		Role:   models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := svc.ValidateToken(raw)
	require.Error(t, err)
}

func TestAuthServiceValidateTokenMissingUserID(t *testing.T) {
	svc := NewAuthService("test-secret")
	raw := signAccessToken(t, "test-secret", &models.JWTClaims{
		Role: models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := svc.ValidateToken(raw)
	require.Error(t, err)
}
