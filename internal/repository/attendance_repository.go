package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/geo-attendance-api/internal/models"
)

const attendanceColumns = `id, session_id, student_id, is_present, status,
student_latitude, student_longitude, location_verified, distance_from_classroom,
marked_at, created_at, updated_at`

// AttendanceRepository handles persistence of per-student attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Mark upserts the (session, student) record in a single statement. The
// conditional update only fires while the stored row is not yet present, so
// concurrent attempts for the same student serialize on the unique
// constraint: exactly one wins, the rest get sql.ErrNoRows back, which the
// service maps to AlreadyMarked.
func (r *AttendanceRepository) Mark(ctx context.Context, record *models.Attendance) (*models.Attendance, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO attendances (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (session_id, student_id) DO UPDATE SET
is_present = EXCLUDED.is_present,
status = EXCLUDED.status,
student_latitude = EXCLUDED.student_latitude,
student_longitude = EXCLUDED.student_longitude,
location_verified = EXCLUDED.location_verified,
distance_from_classroom = EXCLUDED.distance_from_classroom,
marked_at = EXCLUDED.marked_at,
updated_at = EXCLUDED.updated_at
WHERE attendances.is_present = FALSE
RETURNING %s`, attendanceColumns, attendanceColumns)

	var stored models.Attendance
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.SessionID, record.StudentID, record.IsPresent, record.Status,
		record.StudentLatitude, record.StudentLongitude, record.LocationVerified, record.DistanceFromClassroom,
		record.MarkedAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("mark attendance: %w", err)
	}
	return &stored, nil
}

// FindBySessionAndStudent loads a single record.
func (r *AttendanceRepository) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendances WHERE session_id = $1 AND student_id = $2`, attendanceColumns)
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, sessionID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &record, nil
}

// ListBySession returns the full roster of records for one session.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendances WHERE session_id = $1 ORDER BY marked_at DESC NULLS LAST`, attendanceColumns)
	var records []models.Attendance
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}
	return records, nil
}

// ListByStudent returns a student's attendance history, newest first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Attendance, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM attendances WHERE student_id = $1 ORDER BY created_at DESC LIMIT %d`, attendanceColumns, limit)
	var records []models.Attendance
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendances: %w", err)
	}
	return records, nil
}

// BackfillAbsences writes an absent record for every listed student that does
// not already hold one. ON CONFLICT DO NOTHING keeps the pass idempotent:
// present records and prior backfills are untouched. Returns the number of
// rows created.
func (r *AttendanceRepository) BackfillAbsences(ctx context.Context, sessionID string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin backfill: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `INSERT INTO attendances (id, session_id, student_id, is_present, status, location_verified, created_at, updated_at)
VALUES ($1, $2, $3, FALSE, $4, FALSE, $5, $5)
ON CONFLICT (session_id, student_id) DO NOTHING`
	now := time.Now().UTC()
	created := 0
	for _, studentID := range studentIDs {
		res, err := tx.ExecContext(ctx, query, uuid.NewString(), sessionID, studentID, models.AttendanceAbsent, now)
		if err != nil {
			return 0, fmt.Errorf("backfill absence for %s: %w", studentID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			created += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit backfill: %w", err)
	}
	committed = true
	return created, nil
}

// PresentStudentIDs returns students already holding a present record,
// letting callers compute the backfill set.
func (r *AttendanceRepository) PresentStudentIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	query := `SELECT student_id FROM attendances WHERE session_id = $1 AND is_present = TRUE`
	if err := r.db.SelectContext(ctx, &ids, query, sessionID); err != nil {
		return nil, fmt.Errorf("present students: %w", err)
	}
	return ids, nil
}
