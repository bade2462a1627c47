package enrollment_test

import (
	"context"
	"testing"

	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	inmemdb "github.com/eduavalia/backend/storage/database/inmem"
	testutil "github.com/eduavalia/backend/tests"
)

type fixtures struct {
	svc      *enrollment.Service
	repo     enrollment.Repository
	evalRepo *inmemdb.EvaluationRepository

	student academic.Person
	prof    academic.Person
	active  academic.Offering
	retired academic.Offering
}

func setup(t *testing.T) fixtures {
	t.Helper()
	db := inmemdb.Open()
	academicRepo := inmemdb.NewAcademicRepository(db)
	repo := inmemdb.NewEnrollmentRepository(db)

	f := fixtures{
		svc:      enrollment.NewService(repo, academicRepo),
		repo:     repo,
		evalRepo: inmemdb.NewEvaluationRepository(db),
		student:  testutil.CreatePerson(t, academicRepo, "Ana Lima", "11111111111", "ana@test.br", academic.RoleStudent),
		prof:     testutil.CreatePerson(t, academicRepo, "Caio Melo", "22222222222", "caio@test.br", academic.RoleProfessor),
	}

	db2 := testutil.CreateCourse(t, academicRepo, "Banco de Dados", "BD001")
	so := testutil.CreateCourse(t, academicRepo, "Sistemas Operacionais", "SO001")
	f.active = testutil.CreateOffering(t, academicRepo, f.prof.ID, db2.ID)

	f.retired = testutil.CreateOffering(t, academicRepo, f.prof.ID, so.ID)
	if err := academicRepo.SetOfferingStatus(context.Background(), f.retired.ID, academic.OfferingInactive); err != nil {
		t.Fatalf("SetOfferingStatus() failed: %v", err)
	}
	return f
}

func TestService_Enroll(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.svc.Enroll(ctx, f.prof.ID, f.active.ID); err != enrollment.ErrNotAStudent {
		t.Errorf("Enroll(professor) error = %v; want ErrNotAStudent", err)
	}

	e, err := f.svc.Enroll(ctx, f.student.ID, f.active.ID)
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	if e.StudentID != f.student.ID || e.OfferingID != f.active.ID {
		t.Errorf("enrollment = %+v; want pair (%d, %d)", e, f.student.ID, f.active.ID)
	}

	if _, err = f.svc.Enroll(ctx, f.student.ID, f.active.ID); err != enrollment.ErrAlreadyEnrolled {
		t.Errorf("Enroll(duplicate) error = %v; want ErrAlreadyEnrolled", err)
	}
}

func TestService_Enroll_inactiveOffering(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Enroll(context.Background(), f.student.ID, f.retired.ID)
	if err != enrollment.ErrOfferingInactive {
		t.Errorf("Enroll(inactive) error = %v; want ErrOfferingInactive", err)
	}
}

func TestService_Unenroll_cascadesAndFreesThePair(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	e, err := f.svc.Enroll(ctx, f.student.ID, f.active.ID)
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	testutil.SubmitEvaluation(t, f.evalRepo, e.ID, testutil.Scores(t, "8", "6.5", "9", "10"), "great course")

	if err = f.svc.Unenroll(ctx, e.ID); err != nil {
		t.Fatalf("Unenroll() failed: %v", err)
	}

	if _, err = f.repo.GetEnrollment(ctx, e.ID); err != enrollment.ErrNotFound {
		t.Errorf("GetEnrollment() error = %v; want ErrNotFound", err)
	}

	// evaluation went with the enrollment and the pair is free again
	exists, err := f.evalRepo.ScoredEvaluationExists(ctx, e.ID)
	if err != nil {
		t.Fatalf("ScoredEvaluationExists() failed: %v", err)
	}
	if exists {
		t.Error("evaluation should be deleted with the enrollment")
	}

	e2, err := f.svc.Enroll(ctx, f.student.ID, f.active.ID)
	if err != nil {
		t.Fatalf("re-Enroll() failed: %v", err)
	}
	testutil.SubmitEvaluation(t, f.evalRepo, e2.ID, testutil.Scores(t, "5", "5", "5", "5"), "")
}

func TestService_Unenroll_notFound(t *testing.T) {
	f := setup(t)
	if err := f.svc.Unenroll(context.Background(), 999); err != enrollment.ErrNotFound {
		t.Errorf("Unenroll(999) error = %v; want ErrNotFound", err)
	}
}

func TestService_EligibleOfferings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// before enrolling, only the active offering is eligible
	offerings, err := f.svc.EligibleOfferings(ctx, f.student.ID, f.prof.ID)
	if err != nil {
		t.Fatalf("EligibleOfferings() failed: %v", err)
	}
	if len(offerings) != 1 || offerings[0].ID != f.active.ID {
		t.Fatalf("eligible = %+v; want just the active offering", offerings)
	}

	if _, err = f.svc.Enroll(ctx, f.student.ID, f.active.ID); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}

	offerings, err = f.svc.EligibleOfferings(ctx, f.student.ID, f.prof.ID)
	if err != nil {
		t.Fatalf("EligibleOfferings() failed: %v", err)
	}
	if len(offerings) != 0 {
		t.Errorf("eligible = %+v; want none after enrolling", offerings)
	}
}
