package repository

import (
	"errors"

	"github.com/lib/pq"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// Constraint names declared by the academy schema migrations.
const (
	ConstraintPendingApplication = "applications_pending_member_program_key"
	ConstraintStudentMember      = "students_member_id_key"
	ConstraintActiveEnrollment   = "enrollments_one_active_per_student_key"
	ConstraintGraduation         = "graduation_records_student_program_key"
)

var (
	// ErrDuplicatePendingApplication is returned when a member already has a pending application for the program.
	ErrDuplicatePendingApplication = errors.New("pending application already exists")
	// ErrDuplicateGraduation is returned when the student already graduated from the program.
	ErrDuplicateGraduation = errors.New("graduation already recorded")
	// ErrActiveEnrollmentExists is returned when a concurrent writer opened another active enrollment.
	ErrActiveEnrollmentExists = errors.New("student already has an active enrollment")
	// ErrVersionConflict is returned when a compare-and-swap update matched no row.
	ErrVersionConflict = errors.New("row version changed")
	// ErrMissingReference is returned when a write points at a row that does not exist.
	ErrMissingReference = errors.New("referenced record does not exist")
)

// uniqueViolation reports the constraint name when err is a postgres unique violation.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
		return pqErr.Constraint, true
	}
	return "", false
}

// classifyConstraint maps known constraint violations to repository sentinels.
func classifyConstraint(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolationCode {
		return ErrMissingReference
	}
	constraint, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	switch constraint {
	case ConstraintPendingApplication:
		return ErrDuplicatePendingApplication
	case ConstraintGraduation:
		return ErrDuplicateGraduation
	case ConstraintActiveEnrollment:
		return ErrActiveEnrollmentExists
	case ConstraintStudentMember:
		return ErrVersionConflict
	}
	return nil
}
