package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AttendanceToken is the stored record of a QR capability for one session.
// The cleartext secret is never persisted; the SHA-256 digest gives O(1)
// lookup on verification.
type AttendanceToken struct {
	ID        string `db:"id" json:"id"`
	SessionID string `db:"session_id" json:"session_id"`
	Digest    string `db:"digest" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	IsActive  bool      `db:"is_active" json:"is_active"`

	UsedCount int `db:"used_count" json:"used_count"`
	// MaxUses of 0 means unlimited.
	MaxUses int `db:"max_uses" json:"max_uses"`
}

// Usable reports token validity at the given instant, mirroring the storage
// guard: active, unexpired, and under its use cap.
func (t *AttendanceToken) Usable(now time.Time) bool {
	if !t.IsActive || now.After(t.ExpiresAt) {
		return false
	}
	if t.MaxUses > 0 && t.UsedCount >= t.MaxUses {
		return false
	}
	return true
}

// TokenClaims is the signed payload embedded in the scannable secret.
type TokenClaims struct {
	SessionID string `json:"session_id"`
	CourseID  string `json:"course_id"`
	TeacherID string `json:"teacher_id"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenTypeAttendance tags attendance capabilities so access tokens can never
// be replayed as QR secrets.
const TokenTypeAttendance = "attendance_token"

// IssuedToken is handed back to the teacher when a QR code is requested.
type IssuedToken struct {
	TokenID   string    `json:"token_id"`
	Secret    string    `json:"token"`
	Digest    string    `json:"token_hash"`
	QRCode    string    `json:"qr_code"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   int       `json:"max_uses"`
}
