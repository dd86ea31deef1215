package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EnrollmentRepository is the directory collaborator: it answers membership
// questions but never mutates enrollment, which belongs to the academic
// service.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// IsEnrolled reports whether the student holds an active enrollment in the
// course.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	query := `SELECT EXISTS (
SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND active = TRUE)`
	var enrolled bool
	if err := r.db.GetContext(ctx, &enrolled, query, studentID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

// EnrolledStudents returns the IDs of every actively enrolled student.
func (r *EnrollmentRepository) EnrolledStudents(ctx context.Context, courseID string) ([]string, error) {
	var ids []string
	query := `SELECT student_id FROM enrollments WHERE course_id = $1 AND active = TRUE`
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("enrolled students: %w", err)
	}
	return ids, nil
}

// CoursesForStudent returns the course IDs a student is actively enrolled in.
func (r *EnrollmentRepository) CoursesForStudent(ctx context.Context, studentID string) ([]string, error) {
	var ids []string
	query := `SELECT course_id FROM enrollments WHERE student_id = $1 AND active = TRUE`
	if err := r.db.SelectContext(ctx, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("student courses: %w", err)
	}
	return ids, nil
}

// TeacherOwnsCourse reports whether the teacher is assigned to the course.
func (r *EnrollmentRepository) TeacherOwnsCourse(ctx context.Context, teacherID, courseID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1 AND teacher_id = $2)`
	var owns bool
	if err := r.db.GetContext(ctx, &owns, query, courseID, teacherID); err != nil {
		return false, fmt.Errorf("check course ownership: %w", err)
	}
	return owns, nil
}
