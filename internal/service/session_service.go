package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/geo-attendance-api/internal/models"
	appErrors "github.com/noah-isme/geo-attendance-api/pkg/errors"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.AttendanceSession) (*models.AttendanceSession, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error)
	Transition(ctx context.Context, id string, to models.SessionStatus, endedAt time.Time) (*models.AttendanceSession, error)
	Stats(ctx context.Context, teacherID string, recent int) (*models.SessionStats, error)
}

type sessionDirectory interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
	EnrolledStudents(ctx context.Context, courseID string) ([]string, error)
	CoursesForStudent(ctx context.Context, studentID string) ([]string, error)
	TeacherOwnsCourse(ctx context.Context, teacherID, courseID string) (bool, error)
}

type absenceBackfiller interface {
	BackfillAbsences(ctx context.Context, session *models.AttendanceSession) (int, error)
	Find(ctx context.Context, sessionID, studentID string) (*models.Attendance, error)
}

type tokenRevoker interface {
	RevokeAll(ctx context.Context, sessionID string) (int, error)
}

type sessionNotifier interface {
	SessionStarted(session *models.AttendanceSession, studentIDs []string)
	SessionEnded(session *models.AttendanceSession, studentIDs []string)
}

// SessionService owns the attendance-session state machine. Transitions out
// of the active state go through a compare-and-swap in the store, so a manual
// end racing the auto-end scheduler resolves to one winner and one
// SESSION_NOT_ACTIVE no-op.
type SessionService struct {
	repo      sessionRepository
	directory sessionDirectory
	ledger    absenceBackfiller
	tokens    tokenRevoker
	notifier  sessionNotifier
	validator *validator.Validate
	logger    *zap.Logger
	cache     *redis.Client
	statsTTL  time.Duration
	now       func() time.Time
}

// NewSessionService constructs the session service. cache may be nil, which
// disables stats caching.
func NewSessionService(repo sessionRepository, directory sessionDirectory, ledger absenceBackfiller, tokens tokenRevoker, notifier sessionNotifier, validate *validator.Validate, logger *zap.Logger, cache *redis.Client, statsTTL time.Duration) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}
	return &SessionService{
		repo:      repo,
		directory: directory,
		ledger:    ledger,
		tokens:    tokens,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		cache:     cache,
		statsTTL:  statsTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartSessionRequest is the payload for opening an attendance window.
type StartSessionRequest struct {
	CourseID          string  `json:"course_id" validate:"required"`
	Title             string  `json:"title" validate:"required,max=200"`
	Description       string  `json:"description" validate:"max=2000"`
	ClassroomName     string  `json:"classroom_name" validate:"required,max=100"`
	Latitude          float64 `json:"classroom_latitude" validate:"gte=-90,lte=90"`
	Longitude         float64 `json:"classroom_longitude" validate:"gte=-180,lte=180"`
	AllowedRadius     int     `json:"allowed_radius" validate:"required,gte=10,lte=500"`
	ScheduledDuration int     `json:"scheduled_duration" validate:"required,gte=1,lte=1440"`
}

// Start opens a new session in the active state. Teachers may only open
// sessions for courses they are assigned to; admins may open any.
func (s *SessionService) Start(ctx context.Context, actor *models.JWTClaims, req StartSessionRequest) (*models.AttendanceSession, error) {
	if !actor.IsTeacher() && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can start attendance sessions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if actor.IsTeacher() {
		owns, err := s.directory.TeacherOwnsCourse(ctx, actor.UserID, req.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course assignment")
		}
		if !owns {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not assigned to this course")
		}
	}

	session, err := s.repo.Create(ctx, &models.AttendanceSession{
		CourseID:           req.CourseID,
		TeacherID:          actor.UserID,
		Title:              req.Title,
		Description:        req.Description,
		ClassroomName:      req.ClassroomName,
		ClassroomLatitude:  req.Latitude,
		ClassroomLongitude: req.Longitude,
		AllowedRadius:      req.AllowedRadius,
		ScheduledDuration:  req.ScheduledDuration,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.logger.Info("attendance session started",
		zap.String("session_id", session.ID),
		zap.String("course_id", session.CourseID),
		zap.String("teacher_id", session.TeacherID),
		zap.Int("scheduled_duration", session.ScheduledDuration))

	s.notifyEnrolled(ctx, session, true)
	return session, nil
}

// End closes an active session: CAS to ended, backfill absences, revoke
// outstanding tokens, then push SessionEnded. Once the transition commits it
// is never rolled back; failures in the follow-up steps are logged and the
// close still stands.
func (s *SessionService) End(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error) {
	return s.close(ctx, actor, sessionID, models.SessionEnded)
}

// Cancel is the administrative override: the session closes without counting
// toward attendance history, so no absences are backfilled.
func (s *SessionService) Cancel(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error) {
	return s.close(ctx, actor, sessionID, models.SessionCancelled)
}

func (s *SessionService) close(ctx context.Context, actor *models.JWTClaims, sessionID string, to models.SessionStatus) (*models.AttendanceSession, error) {
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.IsTeacher() && session.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only close your own sessions")
	}
	if !actor.IsTeacher() && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	if !session.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "")
	}

	closed, err := s.repo.Transition(ctx, sessionID, to, s.now())
	if err != nil {
		if err == sql.ErrNoRows {
			// Lost the race against another end/cancel.
			return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}

	if to == models.SessionEnded {
		if _, err := s.ledger.BackfillAbsences(ctx, closed); err != nil {
			s.logger.Error("absence backfill failed after session end",
				zap.String("session_id", closed.ID), zap.Error(err))
		}
	}
	if _, err := s.tokens.RevokeAll(ctx, closed.ID); err != nil {
		s.logger.Error("token revocation failed after session close",
			zap.String("session_id", closed.ID), zap.Error(err))
	}

	s.logger.Info("attendance session closed",
		zap.String("session_id", closed.ID),
		zap.String("status", string(closed.Status)),
		zap.String("actor", actor.UserID))

	s.notifyEnrolled(ctx, closed, false)
	s.invalidateStats(ctx, closed.TeacherID)
	return closed, nil
}

// Get loads one session, enforcing role-based access: teachers see their own,
// students sessions of enrolled courses, admins everything.
func (s *SessionService) Get(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.AttendanceSession, error) {
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin():
	case actor.IsTeacher():
		if session.TeacherID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you don't have access to this session")
		}
	case actor.IsStudent():
		enrolled, err := s.directory.IsEnrolled(ctx, actor.UserID, session.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return session, nil
}

// List returns sessions visible to the actor, newest first.
func (s *SessionService) List(ctx context.Context, actor *models.JWTClaims, status *models.SessionStatus, page, pageSize int) ([]models.AttendanceSession, *models.Pagination, error) {
	filter := models.SessionFilter{Status: status, Page: page, PageSize: pageSize}
	switch {
	case actor.IsAdmin():
	case actor.IsTeacher():
		filter.TeacherID = actor.UserID
	case actor.IsStudent():
		courses, err := s.directory.CoursesForStudent(ctx, actor.UserID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
		}
		if len(courses) == 0 {
			return []models.AttendanceSession{}, &models.Pagination{Page: 1, PageSize: pageSize}, nil
		}
		filter.CourseIDs = courses
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return sessions, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ActiveForStudent lists active sessions for the student's enrolled courses
// together with their own marking state, powering the notification poll.
func (s *SessionService) ActiveForStudent(ctx context.Context, studentID string) ([]models.ActiveSessionInfo, error) {
	courses, err := s.directory.CoursesForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(courses) == 0 {
		return []models.ActiveSessionInfo{}, nil
	}

	active := models.SessionActive
	sessions, _, err := s.repo.List(ctx, models.SessionFilter{CourseIDs: courses, Status: &active, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active sessions")
	}

	infos := make([]models.ActiveSessionInfo, 0, len(sessions))
	for _, session := range sessions {
		info := models.ActiveSessionInfo{Session: session, AttendanceStatus: "not_marked"}
		record, err := s.ledger.Find(ctx, session.ID, studentID)
		if err != nil {
			return nil, err
		}
		if record != nil {
			info.AttendanceMarked = record.IsPresent
			info.AttendanceStatus = string(record.Status)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Stats aggregates session and presence counts for teacher/admin dashboards,
// cached briefly in Redis to keep dashboards off the hot path.
func (s *SessionService) Stats(ctx context.Context, actor *models.JWTClaims) (*models.SessionStats, error) {
	if !actor.IsTeacher() && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	teacherID := ""
	if actor.IsTeacher() {
		teacherID = actor.UserID
	}

	cacheKey := statsCacheKey(teacherID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached models.SessionStats
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	stats, err := s.repo.Stats(ctx, teacherID, 5)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stats")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, s.statsTTL).Err(); err != nil {
				s.logger.Warn("stats cache write failed", zap.Error(err))
			}
		}
	}
	return stats, nil
}

func (s *SessionService) findSession(ctx context.Context, sessionID string) (*models.AttendanceSession, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// notifyEnrolled pushes the lifecycle event to every enrolled student.
// Delivery is best-effort; directory failures here are logged, never
// propagated to the caller.
func (s *SessionService) notifyEnrolled(ctx context.Context, session *models.AttendanceSession, started bool) {
	if s.notifier == nil {
		return
	}
	students, err := s.directory.EnrolledStudents(ctx, session.CourseID)
	if err != nil {
		s.logger.Error("failed to resolve notification audience",
			zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	if started {
		s.notifier.SessionStarted(session, students)
	} else {
		s.notifier.SessionEnded(session, students)
	}
}

func (s *SessionService) invalidateStats(ctx context.Context, teacherID string) {
	if s.cache == nil {
		return
	}
	keys := []string{statsCacheKey(""), statsCacheKey(teacherID)}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func statsCacheKey(teacherID string) string {
	if teacherID == "" {
		return "attendance:stats:all"
	}
	return fmt.Sprintf("attendance:stats:teacher:%s", teacherID)
}
