package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geo-attendance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionRows(id string, status models.SessionStatus, endedAt interface{}) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "course_id", "teacher_id", "title", "description",
		"classroom_latitude", "classroom_longitude", "classroom_name", "allowed_radius",
		"scheduled_duration", "status", "started_at", "ended_at", "created_at", "updated_at",
	}).AddRow(id, "course-1", "teacher-1", "Lecture", "",
		37.0, -122.0, "Room 101", 50,
		90, status, now, endedAt, now, now)
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session, err := repo.Create(context.Background(), &models.AttendanceSession{
		CourseID:          "course-1",
		TeacherID:         "teacher-1",
		Title:             "Lecture",
		AllowedRadius:     50,
		ScheduledDuration: 90,
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.Equal(t, models.SessionActive, session.Status)
	require.False(t, session.StartedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	endedAt := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WithArgs(models.SessionEnded, endedAt, endedAt, "sess-1", models.SessionActive).
		WillReturnRows(sessionRows("sess-1", models.SessionEnded, endedAt))

	session, err := repo.Transition(context.Background(), "sess-1", models.SessionEnded, endedAt)
	require.NoError(t, err)
	require.Equal(t, models.SessionEnded, session.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryTransitionAlreadyTerminal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	endedAt := time.Now().UTC()

	// The compare-and-swap matches zero rows when the session already left
	// the active state.
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WithArgs(models.SessionCancelled, endedAt, endedAt, "sess-1", models.SessionActive).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Transition(context.Background(), "sess-1", models.SessionCancelled, endedAt)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs(models.SessionActive).
		WillReturnRows(sessionRows("sess-1", models.SessionActive, nil))

	sessions, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "sess-1", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
