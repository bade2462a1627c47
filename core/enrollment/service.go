package enrollment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("enrollment not found")
	ErrAlreadyEnrolled  = core.NewConflictError("student is already enrolled in this offering")
	ErrOfferingInactive = core.NewNotFoundError("offering is not active")
	ErrNotAStudent      = core.NewForbiddenError("only students can be enrolled")
)

// Enrollment records that a student may evaluate an offering.
// At most one per (student, offering) pair.
type Enrollment struct {
	ID         int       `json:"id"`
	StudentID  int       `json:"student_id"`
	OfferingID int       `json:"offering_id"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type (
	Repository interface {
		// CreateEnrollment relies on the (student, offering) unique constraint;
		// a violation comes back as ErrAlreadyEnrolled.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, id int) (Enrollment, error)
		GetEnrollmentByPair(ctx context.Context, studentID, offeringID int) (Enrollment, error)
		// DeleteEnrollment removes the enrollment and, in the same transaction,
		// its evaluations and their rubric scores: rubric scores first, then
		// evaluations, then the enrollment itself. The cascade is deliberate;
		// it frees the pair for re-enrollment and a fresh evaluation.
		DeleteEnrollment(ctx context.Context, id int) error
		EnrolledOfferingIDs(ctx context.Context, studentID int) ([]int, error)
	}

	// AcademicDirectory is the slice of the academic repository the ledger needs.
	AcademicDirectory interface {
		GetPersonByID(ctx context.Context, id int) (academic.Person, error)
		GetOfferingByID(ctx context.Context, id int) (academic.Offering, error)
		ActiveOfferingsByProfessor(ctx context.Context, professorID int) ([]academic.Offering, error)
	}

	Service struct {
		repo      Repository
		directory AcademicDirectory
	}
)

func NewService(repo Repository, directory AcademicDirectory) *Service {
	return &Service{repo: repo, directory: directory}
}

// Enroll links a student to an active offering.
func (svc *Service) Enroll(ctx context.Context, studentID, offeringID int) (Enrollment, error) {
	student, err := svc.directory.GetPersonByID(ctx, studentID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding student")
	}
	if !student.IsStudent() {
		return Enrollment{}, ErrNotAStudent
	}

	offering, err := svc.directory.GetOfferingByID(ctx, offeringID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding offering")
	}
	if !offering.IsActive() {
		return Enrollment{}, ErrOfferingInactive
	}

	e := Enrollment{
		StudentID:  studentID,
		OfferingID: offeringID,
		CreatedAt:  time.Now().UTC(),
	}
	return svc.repo.CreateEnrollment(ctx, e)
}

// Unenroll deletes the enrollment together with any evaluation (and rubric
// scores) recorded under it.
func (svc *Service) Unenroll(ctx context.Context, enrollmentID int) error {
	if _, err := svc.repo.GetEnrollment(ctx, enrollmentID); err != nil {
		return err
	}
	return svc.repo.DeleteEnrollment(ctx, enrollmentID)
}

func (svc *Service) IsEnrolled(ctx context.Context, studentID, offeringID int) (bool, error) {
	_, err := svc.repo.GetEnrollmentByPair(ctx, studentID, offeringID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *Service) GetByPair(ctx context.Context, studentID, offeringID int) (Enrollment, error) {
	return svc.repo.GetEnrollmentByPair(ctx, studentID, offeringID)
}

// EligibleOfferings returns the professor's active offerings the student has no
// current enrollment in; it populates "add enrollment" pickers.
func (svc *Service) EligibleOfferings(ctx context.Context, studentID, professorID int) ([]academic.Offering, error) {
	offerings, err := svc.directory.ActiveOfferingsByProfessor(ctx, professorID)
	if err != nil {
		return nil, errors.Wrap(err, "listing professor offerings")
	}
	enrolledIDs, err := svc.repo.EnrolledOfferingIDs(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing student enrollments")
	}

	enrolled := make(map[int]bool, len(enrolledIDs))
	for _, id := range enrolledIDs {
		enrolled[id] = true
	}

	eligible := make([]academic.Offering, 0, len(offerings))
	for _, o := range offerings {
		if !enrolled[o.ID] {
			eligible = append(eligible, o)
		}
	}
	return eligible, nil
}
