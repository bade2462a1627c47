package evaluation

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("evaluation not found")
	ErrAlreadyEvaluated = core.NewConflictError("student has already evaluated this offering")
	ErrNotEnrolled      = core.NewForbiddenError("student is not enrolled in this offering")
	ErrNotAStudent      = core.NewForbiddenError("only students can submit evaluations")
)

type (
	Repository interface {
		// EnsureCategories creates any missing taxonomy rows; idempotent.
		EnsureCategories(ctx context.Context, names []string) ([]Category, error)
		QueryCategories(ctx context.Context) ([]Category, error)
		ScoredEvaluationExists(ctx context.Context, enrollmentID int) (bool, error)
		// CreateEvaluation persists the evaluation and its rubric scores as one
		// atomic unit: on any failure nothing is left behind. A scored-slot
		// uniqueness violation comes back as ErrAlreadyEvaluated.
		CreateEvaluation(ctx context.Context, ev Evaluation, scores []RubricScore) (Evaluation, error)
		GetEvaluationByEnrollment(ctx context.Context, enrollmentID int) (Evaluation, error)
		// CommentsByProfessor returns non-empty comments across the professor's
		// offerings, newest first.
		CommentsByProfessor(ctx context.Context, professorID int) ([]ProfessorComment, error)
	}

	// Ledger is the slice of the enrollment service the submission path needs.
	Ledger interface {
		GetByPair(ctx context.Context, studentID, offeringID int) (enrollment.Enrollment, error)
	}

	// Directory resolves offerings and people for eligibility checks and
	// notifications.
	Directory interface {
		GetPersonByID(ctx context.Context, id int) (academic.Person, error)
		GetOfferingByID(ctx context.Context, id int) (academic.Offering, error)
	}

	Service struct {
		repo      Repository
		ledger    Ledger
		directory Directory
		mailSvc   core.EmailService
		conf      *core.Config
	}
)

func NewService(repo Repository, ledger Ledger, directory Directory, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, ledger: ledger, directory: directory, mailSvc: mailSvc, conf: conf}
}

// Setup seeds the category taxonomy; safe to call on every startup.
func (svc *Service) Setup(ctx context.Context) error {
	_, err := svc.repo.EnsureCategories(ctx, CategoryNames)
	return errors.Wrap(err, "ensuring categories")
}

// Submit records a student's scored evaluation of an offering. The student
// identity always comes from the authenticated caller, never from the payload.
func (svc *Service) Submit(ctx context.Context, studentID int, ne NewEvaluation) (Evaluation, error) {
	student, enr, err := svc.gate(ctx, studentID, ne.OfferingID)
	if err != nil {
		return Evaluation{}, err
	}

	// app-level check first for a friendly error; the storage constraint
	// settles races between duplicate submissions.
	exists, err := svc.repo.ScoredEvaluationExists(ctx, enr.ID)
	if err != nil {
		return Evaluation{}, errors.Wrap(err, "checking prior evaluation")
	}
	if exists {
		return Evaluation{}, ErrAlreadyEvaluated
	}

	categories, err := svc.repo.QueryCategories(ctx)
	if err != nil {
		return Evaluation{}, errors.Wrap(err, "loading categories")
	}
	catIDs := make(map[string]int, len(categories))
	for _, cat := range categories {
		catIDs[cat.Name] = cat.ID
	}

	ev := Evaluation{
		EnrollmentID: enr.ID,
		Comment:      null.NewString(ne.Comment, ne.Comment != ""),
		Scored:       true,
		CreatedAt:    time.Now().UTC(),
	}
	scores := make([]RubricScore, 0, len(CategoryNames))
	for _, cat := range CategoryNames {
		scores = append(scores, RubricScore{
			CategoryID: catIDs[cat],
			Category:   cat,
			Value:      ne.Scores[cat],
		})
	}

	ev, err = svc.repo.CreateEvaluation(ctx, ev, scores)
	if err != nil {
		return Evaluation{}, err
	}

	// post-commit; delivery failure cannot undo the evaluation
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Your evaluation was recorded",
		TemplateName: "evaluation_received",
		TemplateData: struct{ Name string }{student.Name},
	})
	return ev, nil
}

// SubmitComment records a comment-only evaluation. It is enrollment-gated like
// the scored path but does not occupy the scored slot, so it never blocks a
// later Submit and may be repeated.
func (svc *Service) SubmitComment(ctx context.Context, studentID int, nc NewComment) (Evaluation, error) {
	_, enr, err := svc.gate(ctx, studentID, nc.OfferingID)
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{
		EnrollmentID: enr.ID,
		Comment:      null.StringFrom(nc.Text),
		Scored:       false,
		CreatedAt:    time.Now().UTC(),
	}
	return svc.repo.CreateEvaluation(ctx, ev, nil)
}

// gate verifies the caller is a student enrolled in an existing offering.
func (svc *Service) gate(ctx context.Context, studentID, offeringID int) (academic.Person, enrollment.Enrollment, error) {
	student, err := svc.directory.GetPersonByID(ctx, studentID)
	if err != nil {
		return academic.Person{}, enrollment.Enrollment{}, errors.Wrap(err, "finding student")
	}
	if !student.IsStudent() {
		return academic.Person{}, enrollment.Enrollment{}, ErrNotAStudent
	}

	if _, err = svc.directory.GetOfferingByID(ctx, offeringID); err != nil {
		return academic.Person{}, enrollment.Enrollment{}, errors.Wrap(err, "finding offering")
	}

	enr, err := svc.ledger.GetByPair(ctx, studentID, offeringID)
	if err != nil {
		if errors.Cause(err) == enrollment.ErrNotFound {
			return academic.Person{}, enrollment.Enrollment{}, ErrNotEnrolled
		}
		return academic.Person{}, enrollment.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	return student, enr, nil
}

func (svc *Service) Comments(ctx context.Context, professorID int) ([]ProfessorComment, error) {
	return svc.repo.CommentsByProfessor(ctx, professorID)
}
