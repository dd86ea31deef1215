package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geo-attendance-api/internal/models"
)

func attendanceRows(record *models.Attendance) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "session_id", "student_id", "is_present", "status",
		"student_latitude", "student_longitude", "location_verified", "distance_from_classroom",
		"marked_at", "created_at", "updated_at",
	}).AddRow(record.ID, record.SessionID, record.StudentID, record.IsPresent, record.Status,
		record.StudentLatitude, record.StudentLongitude, record.LocationVerified, record.DistanceFromClassroom,
		record.MarkedAt, now, now)
}

func TestAttendanceRepositoryMark(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	markedAt := time.Now().UTC()
	distance := 12.5
	record := &models.Attendance{
		ID:                    "att-1",
		SessionID:             "sess-1",
		StudentID:             "student-1",
		IsPresent:             true,
		Status:                models.AttendancePresent,
		LocationVerified:      true,
		DistanceFromClassroom: &distance,
		MarkedAt:              &markedAt,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnRows(attendanceRows(record))

	stored, err := repo.Mark(context.Background(), record)
	require.NoError(t, err)
	require.True(t, stored.IsPresent)
	require.Equal(t, models.AttendancePresent, stored.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryMarkAlreadyPresent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)

	// The guarded upsert returns no row when the stored record is already
	// present, which the service maps to the already-marked conflict.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Mark(context.Background(), &models.Attendance{
		SessionID: "sess-1",
		StudentID: "student-1",
		IsPresent: true,
		Status:    models.AttendancePresent,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBackfillAbsences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	// student-1 already holds a record, so the conflict swallows the insert.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	created, err := repo.BackfillAbsences(context.Background(), "sess-1",
		[]string{"student-1", "student-2", "student-3"})
	require.NoError(t, err)
	require.Equal(t, 2, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBackfillEmptyRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	created, err := repo.BackfillAbsences(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Zero(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}
