package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/geo-attendance-api/internal/models"
)

const sessionColumns = `id, course_id, teacher_id, title, description,
classroom_latitude, classroom_longitude, classroom_name, allowed_radius,
scheduled_duration, status, started_at, ended_at, created_at, updated_at`

// SessionRepository handles persistence of attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session in the active state.
func (r *SessionRepository) Create(ctx context.Context, session *models.AttendanceSession) (*models.AttendanceSession, error) {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Status = models.SessionActive
	session.StartedAt = now
	session.CreatedAt = now
	session.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO attendance_sessions (%s)
VALUES (:id, :course_id, :teacher_id, :title, :description,
:classroom_latitude, :classroom_longitude, :classroom_name, :allowed_radius,
:scheduled_duration, :status, :started_at, :ended_at, :created_at, :updated_at)`, sessionColumns)
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// FindByID loads one session.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE id = $1`, sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// List returns sessions matching the filter, newest first.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if len(filter.CourseIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("course_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.CourseIDs))
	}
	if filter.Status != nil && filter.Status.Valid() {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions%s ORDER BY started_at DESC LIMIT %d OFFSET %d`,
		sessionColumns, clause, size, offset)
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM attendance_sessions" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// ListActive returns every session still in the active state. The auto-end
// scheduler scans this on each pass.
func (r *SessionRepository) ListActive(ctx context.Context) ([]models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE status = $1 ORDER BY started_at`, sessionColumns)
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionActive); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// Transition moves a session out of the active state with a compare-and-swap
// on the prior status. sql.ErrNoRows means the session was already terminal,
// which makes racing end/cancel calls no-ops for the loser.
func (r *SessionRepository) Transition(ctx context.Context, id string, to models.SessionStatus, endedAt time.Time) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`UPDATE attendance_sessions
SET status = $1, ended_at = $2, updated_at = $3
WHERE id = $4 AND status = $5
RETURNING %s`, sessionColumns)

	var session models.AttendanceSession
	err := r.db.GetContext(ctx, &session, query, to, endedAt, endedAt, id, models.SessionActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("transition session: %w", err)
	}
	return &session, nil
}

// Stats aggregates session and presence counts. An empty teacherID aggregates
// across all teachers (admin view).
func (r *SessionRepository) Stats(ctx context.Context, teacherID string, recent int) (*models.SessionStats, error) {
	clause := ""
	var args []interface{}
	if teacherID != "" {
		clause = " WHERE teacher_id = $1"
		args = append(args, teacherID)
	}

	stats := &models.SessionStats{}
	countQuery := fmt.Sprintf(`SELECT
COUNT(*) AS total,
COUNT(*) FILTER (WHERE status = 'active') AS active
FROM attendance_sessions%s`, clause)
	row := r.db.QueryRowxContext(ctx, countQuery, args...)
	if err := row.Scan(&stats.TotalSessions, &stats.ActiveSessions); err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}

	attClause := ""
	if teacherID != "" {
		attClause = " WHERE s.teacher_id = $1"
	}
	attQuery := fmt.Sprintf(`SELECT
COUNT(*) FILTER (WHERE a.is_present) AS present,
COUNT(*) AS possible
FROM attendances a
JOIN attendance_sessions s ON s.id = a.session_id%s`, attClause)
	row = r.db.QueryRowxContext(ctx, attQuery, args...)
	if err := row.Scan(&stats.TotalAttendance, &stats.TotalPossibleMarked); err != nil {
		return nil, fmt.Errorf("attendance stats: %w", err)
	}
	if stats.TotalPossibleMarked > 0 {
		stats.AttendanceRate = float64(stats.TotalAttendance) / float64(stats.TotalPossibleMarked) * 100
	}

	if recent > 0 {
		recentQuery := fmt.Sprintf(`SELECT %s FROM attendance_sessions%s ORDER BY started_at DESC LIMIT %d`,
			sessionColumns, clause, recent)
		if err := r.db.SelectContext(ctx, &stats.RecentSessions, recentQuery, args...); err != nil {
			return nil, fmt.Errorf("recent sessions: %w", err)
		}
	}
	return stats, nil
}
