package models

import "time"

// SessionStatus enumerates the attendance session lifecycle states.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionEnded, SessionCancelled:
		return true
	}
	return false
}

// Terminal reports whether the session can no longer transition.
func (s SessionStatus) Terminal() bool {
	return s == SessionEnded || s == SessionCancelled
}

// AttendanceSession is one teacher-opened window during which enrolled
// students may mark attendance for a course meeting.
type AttendanceSession struct {
	ID          string `db:"id" json:"id"`
	CourseID    string `db:"course_id" json:"course_id"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description,omitempty"`

	ClassroomLatitude  float64 `db:"classroom_latitude" json:"classroom_latitude"`
	ClassroomLongitude float64 `db:"classroom_longitude" json:"classroom_longitude"`
	ClassroomName      string  `db:"classroom_name" json:"classroom_name"`
	AllowedRadius      int     `db:"allowed_radius" json:"allowed_radius"`

	// ScheduledDuration is minutes from StartedAt until the scheduler may
	// auto-end the session.
	ScheduledDuration int           `db:"scheduled_duration" json:"scheduled_duration"`
	Status            SessionStatus `db:"status" json:"status"`
	StartedAt         time.Time     `db:"started_at" json:"started_at"`
	EndedAt           *time.Time    `db:"ended_at" json:"ended_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether students may still mark attendance.
func (s *AttendanceSession) IsActive() bool {
	return s.Status == SessionActive
}

// ScheduledEnd is the instant the scheduler considers the session expired.
func (s *AttendanceSession) ScheduledEnd() time.Time {
	return s.StartedAt.Add(time.Duration(s.ScheduledDuration) * time.Minute)
}

// Expired reports whether now is past the scheduled end.
func (s *AttendanceSession) Expired(now time.Time) bool {
	return !now.Before(s.ScheduledEnd())
}

// SessionFilter captures criteria for listing sessions.
type SessionFilter struct {
	TeacherID string
	CourseIDs []string
	Status    *SessionStatus
	Page      int
	PageSize  int
}

// SessionStats summarises attendance activity for teacher dashboards.
type SessionStats struct {
	TotalSessions       int                 `json:"total_sessions"`
	ActiveSessions      int                 `json:"active_sessions"`
	TotalAttendance     int                 `json:"total_attendance_marked"`
	AttendanceRate      float64             `json:"attendance_rate"`
	RecentSessions      []AttendanceSession `json:"recent_sessions"`
	TotalPossibleMarked int                 `json:"-"`
}
