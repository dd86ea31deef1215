package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/geo-attendance-api/internal/geo"
	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
)

type attendanceRepository interface {
	Mark(ctx context.Context, record *models.Attendance) (*models.Attendance, error)
	FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.Attendance, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Attendance, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Attendance, error)
	BackfillAbsences(ctx context.Context, sessionID string, studentIDs []string) (int, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
}

type enrollmentDirectory interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
	EnrolledStudents(ctx context.Context, courseID string) ([]string, error)
}

type markNotifier interface {
	AttendanceMarked(studentID string, summary interface{})
}

// AttendanceService owns the per-student attendance record lifecycle:
// idempotent marking, geofence bookkeeping, and absence backfill.
type AttendanceService struct {
	repo          attendanceRepository
	sessions      sessionReader
	directory     enrollmentDirectory
	notifier      markNotifier
	validator     *validator.Validate
	logger        *zap.Logger
	lateThreshold time.Duration
	now           func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, sessions sessionReader, directory enrollmentDirectory, notifier markNotifier, validate *validator.Validate, logger *zap.Logger, lateThreshold time.Duration) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lateThreshold <= 0 {
		lateThreshold = 15 * time.Minute
	}
	return &AttendanceService{
		repo:          repo,
		sessions:      sessions,
		directory:     directory,
		notifier:      notifier,
		validator:     validate,
		logger:        logger,
		lateThreshold: lateThreshold,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// MarkByLocationRequest is the GPS marking payload.
type MarkByLocationRequest struct {
	SessionID string  `json:"session_id" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// MarkByTokenRequest is the QR scan payload. Coordinates are optional and
// only refine the stored distance.
type MarkByTokenRequest struct {
	Token     string   `json:"token" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// MarkByLocation records a GPS-based attendance attempt. Presence is granted
// only when the submitted location verifies inside the session geofence;
// a failed geofence still writes the attempt (with its distance) as absent
// for audit. A (0,0) submission is the legacy "no GPS" sentinel and is
// treated as an absent location.
func (s *AttendanceService) MarkByLocation(ctx context.Context, studentID string, req MarkByLocationRequest) (*models.MarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	session, err := s.loadActiveSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEnrollment(ctx, studentID, session.CourseID); err != nil {
		return nil, err
	}

	coords := &models.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude}
	record := s.buildRecord(session, studentID, coords, false)

	return s.store(ctx, session, record)
}

// MarkByToken records a QR-based attendance attempt. Possession of a freshly
// verified session token is itself the presence signal: the student is
// marked present regardless of geofence outcome, and any supplied
// coordinates only annotate distance and verification for audit.
func (s *AttendanceService) MarkByToken(ctx context.Context, studentID string, claims *models.TokenClaims, req MarkByTokenRequest) (*models.MarkResult, error) {
	if claims == nil || claims.SessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	session, err := s.loadActiveSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEnrollment(ctx, studentID, session.CourseID); err != nil {
		return nil, err
	}

	var coords *models.Coordinates
	if req.Latitude != nil && req.Longitude != nil {
		coords = &models.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	record := s.buildRecord(session, studentID, coords, true)

	return s.store(ctx, session, record)
}

// BackfillAbsences creates an absent record for every enrolled student who
// never marked presence. Safe to re-run: existing records are never
// downgraded. Returns the number of records created.
func (s *AttendanceService) BackfillAbsences(ctx context.Context, session *models.AttendanceSession) (int, error) {
	students, err := s.directory.EnrolledStudents(ctx, session.CourseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled students")
	}
	created, err := s.repo.BackfillAbsences(ctx, session.ID, students)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to backfill absences")
	}
	if created > 0 {
		s.logger.Info("absences backfilled", zap.String("session_id", session.ID), zap.Int("count", created))
	}
	return created, nil
}

// IsLate reports whether the record was marked after the late threshold past
// session start. Advisory only; it never changes the stored status.
func (s *AttendanceService) IsLate(record *models.Attendance, session *models.AttendanceSession) bool {
	if record == nil || record.MarkedAt == nil {
		return false
	}
	return record.MarkedAt.After(session.StartedAt.Add(s.lateThreshold))
}

// SessionReport returns the roster of attendance records for one session.
func (s *AttendanceService) SessionReport(ctx context.Context, sessionID string) ([]models.Attendance, error) {
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session report")
	}
	return records, nil
}

// StudentHistory returns a student's attendance records, newest first.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, limit int) ([]models.Attendance, error) {
	records, err := s.repo.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return records, nil
}

// Find returns the (session, student) record, or nil when none exists.
func (s *AttendanceService) Find(ctx context.Context, sessionID, studentID string) (*models.Attendance, error) {
	record, err := s.repo.FindBySessionAndStudent(ctx, sessionID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record, nil
}

func (s *AttendanceService) loadActiveSession(ctx context.Context, sessionID string) (*models.AttendanceSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "")
	}
	return session, nil
}

func (s *AttendanceService) requireEnrollment(ctx context.Context, studentID, courseID string) error {
	enrolled, err := s.directory.IsEnrolled(ctx, studentID, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrNotEnrolled, "")
	}
	return nil
}

// buildRecord resolves the geofence outcome and assembles the row to store.
// tokenVerified marks presence unconditionally; otherwise presence follows
// location verification.
func (s *AttendanceService) buildRecord(session *models.AttendanceSession, studentID string, coords *models.Coordinates, tokenVerified bool) *models.Attendance {
	now := s.now()
	record := &models.Attendance{
		SessionID: session.ID,
		StudentID: studentID,
		MarkedAt:  &now,
	}

	if !coords.Absent() {
		distance := geo.DistanceMeters(
			session.ClassroomLatitude, session.ClassroomLongitude,
			coords.Latitude, coords.Longitude)
		record.StudentLatitude = &coords.Latitude
		record.StudentLongitude = &coords.Longitude
		record.DistanceFromClassroom = &distance
		record.LocationVerified = geo.WithinRadius(distance, float64(session.AllowedRadius))
	}

	if tokenVerified || record.LocationVerified {
		record.IsPresent = true
		record.Status = models.AttendancePresent
	} else {
		record.IsPresent = false
		record.Status = models.AttendanceAbsent
	}
	return record
}

func (s *AttendanceService) store(ctx context.Context, session *models.AttendanceSession, record *models.Attendance) (*models.MarkResult, error) {
	stored, err := s.repo.Mark(ctx, record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrAlreadyMarked, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	result := &models.MarkResult{
		Attendance:       stored,
		LocationVerified: stored.LocationVerified,
		Distance:         stored.ReportedDistance(),
		AllowedRadius:    session.AllowedRadius,
		IsLate:           s.IsLate(stored, session),
	}

	s.logger.Info("attendance marked",
		zap.String("session_id", session.ID),
		zap.String("student_id", stored.StudentID),
		zap.String("status", string(stored.Status)),
		zap.Bool("location_verified", stored.LocationVerified))

	if s.notifier != nil {
		s.notifier.AttendanceMarked(stored.StudentID, result)
	}
	return result, nil
}
