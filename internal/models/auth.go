package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens. The identity layer
// issues these; this service only validates and reads them.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the actor carries the admin role.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// IsTeacher reports whether the actor carries the teacher role.
func (c *JWTClaims) IsTeacher() bool {
	return c != nil && c.Role == RoleTeacher
}

// IsStudent reports whether the actor carries the student role.
func (c *JWTClaims) IsStudent() bool {
	return c != nil && c.Role == RoleStudent
}

// SystemActor is the synthetic actor used by the auto-end scheduler so its
// session transitions pass the same ownership guards as admin actions.
func SystemActor() *JWTClaims {
	return &JWTClaims{UserID: "system", Role: RoleAdmin, FullName: "system"}
}
