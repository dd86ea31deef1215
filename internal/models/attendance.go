package models

import "time"

// AttendanceStatus enumerates per-student attendance outcomes.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

// Valid reports whether the status is a known attendance outcome.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	}
	return false
}

// DistanceUndetermined is the out-of-band distance reported to clients when
// no usable location accompanied the marking attempt. Stored distance is NULL
// in that case; the sentinel only appears on the wire.
const DistanceUndetermined float64 = -1

// Coordinates is an explicit optional location. A nil *Coordinates means the
// client could not obtain a GPS fix; the legacy (0,0) submission maps to nil
// at the API boundary.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Absent reports whether the pair is the legacy "no GPS" sentinel.
func (c *Coordinates) Absent() bool {
	return c == nil || (c.Latitude == 0 && c.Longitude == 0)
}

// Attendance is the single record a student holds per session. Uniqueness on
// (session_id, student_id) is enforced by the storage layer.
type Attendance struct {
	ID        string `db:"id" json:"id"`
	SessionID string `db:"session_id" json:"session_id"`
	StudentID string `db:"student_id" json:"student_id"`

	IsPresent bool             `db:"is_present" json:"is_present"`
	Status    AttendanceStatus `db:"status" json:"status"`

	StudentLatitude       *float64 `db:"student_latitude" json:"student_latitude,omitempty"`
	StudentLongitude      *float64 `db:"student_longitude" json:"student_longitude,omitempty"`
	LocationVerified      bool     `db:"location_verified" json:"location_verified"`
	DistanceFromClassroom *float64 `db:"distance_from_classroom" json:"distance_from_classroom,omitempty"`

	MarkedAt  *time.Time `db:"marked_at" json:"marked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ReportedDistance returns the stored distance or the undetermined sentinel.
func (a *Attendance) ReportedDistance() float64 {
	if a.DistanceFromClassroom == nil {
		return DistanceUndetermined
	}
	return *a.DistanceFromClassroom
}

// MarkResult is returned to the presentation layer after a marking attempt.
type MarkResult struct {
	Attendance       *Attendance `json:"attendance"`
	LocationVerified bool        `json:"location_verified"`
	Distance         float64     `json:"distance"`
	AllowedRadius    int         `json:"allowed_radius"`
	IsLate           bool        `json:"is_late"`
}
