package stats_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/evaluation"
	"github.com/eduavalia/backend/core/stats"
	inmemdb "github.com/eduavalia/backend/storage/database/inmem"
	testutil "github.com/eduavalia/backend/tests"
)

type fixtures struct {
	svc *stats.Service

	academicRepo   *inmemdb.AcademicRepository
	enrollmentRepo *inmemdb.EnrollmentRepository
	evalRepo       *inmemdb.EvaluationRepository

	prof academic.Person
}

func setup(t *testing.T) fixtures {
	t.Helper()
	db := inmemdb.Open()
	f := fixtures{
		academicRepo:   inmemdb.NewAcademicRepository(db),
		enrollmentRepo: inmemdb.NewEnrollmentRepository(db),
		evalRepo:       inmemdb.NewEvaluationRepository(db),
	}
	f.svc = stats.NewService(inmemdb.NewStatsRepository(db), f.academicRepo)
	testutil.SeedCategories(t, f.evalRepo)
	f.prof = testutil.CreatePerson(t, f.academicRepo, "Caio Melo", "22222222222", "caio@test.br", academic.RoleProfessor)
	return f
}

// evaluate enrolls a fresh student and submits the given scores.
func (f fixtures) evaluate(t *testing.T, seq int, offeringID int, scores map[string]decimal.Decimal) {
	t.Helper()
	student := testutil.CreatePerson(t, f.academicRepo,
		fmt.Sprintf("Aluno %d", seq), fmt.Sprintf("%011d", seq), fmt.Sprintf("aluno%d@test.br", seq),
		academic.RoleStudent)
	enr := testutil.Enroll(t, f.enrollmentRepo, student.ID, offeringID)
	testutil.SubmitEvaluation(t, f.evalRepo, enr.ID, scores, "")
}

func TestService_UniversityMean_empty(t *testing.T) {
	f := setup(t)

	summary, err := f.svc.UniversityMean(context.Background())
	if err != nil {
		t.Fatalf("UniversityMean() failed: %v", err)
	}
	if !summary.Mean.IsZero() || summary.ScoreCount != 0 || summary.EvaluationCount != 0 {
		t.Errorf("summary = %+v; want all zero", summary)
	}
}

func TestService_UniversityMean(t *testing.T) {
	f := setup(t)
	course := testutil.CreateCourse(t, f.academicRepo, "Banco de Dados", "BD001")
	off := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, course.ID)

	f.evaluate(t, 1, off.ID, testutil.Scores(t, "8", "6", "9", "10"))
	f.evaluate(t, 2, off.ID, testutil.Scores(t, "7", "5", "8", "9"))

	summary, err := f.svc.UniversityMean(context.Background())
	if err != nil {
		t.Fatalf("UniversityMean() failed: %v", err)
	}
	if want := decimal.NewFromFloat(7.75); !summary.Mean.Equal(want) {
		t.Errorf("mean = %s; want %s", summary.Mean, want)
	}
	if summary.ScoreCount != 8 || summary.EvaluationCount != 2 {
		t.Errorf("counts = %d scores / %d evaluations; want 8 / 2", summary.ScoreCount, summary.EvaluationCount)
	}
}

func TestService_Ranking(t *testing.T) {
	f := setup(t)
	c1 := testutil.CreateCourse(t, f.academicRepo, "Banco de Dados", "BD001")
	c2 := testutil.CreateCourse(t, f.academicRepo, "Cálculo I", "CI001")
	c3 := testutil.CreateCourse(t, f.academicRepo, "Física", "FIS001")

	now := time.Now().UTC()
	low := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, c1.ID, now)
	high := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, c2.ID, now.Add(time.Minute))
	unscored := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, c3.ID, now.Add(2*time.Minute))
	_ = unscored

	f.evaluate(t, 1, low.ID, testutil.Scores(t, "5", "5", "5", "5"))
	f.evaluate(t, 2, high.ID, testutil.Scores(t, "9", "9", "9", "9"))

	ranking, err := f.svc.Ranking(context.Background(), 10)
	if err != nil {
		t.Fatalf("Ranking() failed: %v", err)
	}
	if len(ranking) != 2 {
		t.Fatalf("ranking has %d entries; want 2 (unevaluated offerings excluded)", len(ranking))
	}
	if ranking[0].Offering.ID != high.ID || ranking[1].Offering.ID != low.ID {
		t.Errorf("ranking order = %d, %d; want %d, %d", ranking[0].Offering.ID, ranking[1].Offering.ID, high.ID, low.ID)
	}
	if want := decimal.NewFromInt(9); !ranking[0].Mean.Equal(want) {
		t.Errorf("top mean = %s; want %s", ranking[0].Mean, want)
	}
	if ranking[0].Count != 4 {
		t.Errorf("top score count = %d; want 4", ranking[0].Count)
	}

	truncated, err := f.svc.Ranking(context.Background(), 1)
	if err != nil {
		t.Fatalf("Ranking(1) failed: %v", err)
	}
	if len(truncated) != 1 || truncated[0].Offering.ID != high.ID {
		t.Errorf("Ranking(1) = %v; want just the top offering", truncated)
	}
}

func TestService_Ranking_tieBreak(t *testing.T) {
	f := setup(t)
	c1 := testutil.CreateCourse(t, f.academicRepo, "Banco de Dados", "BD001")
	c2 := testutil.CreateCourse(t, f.academicRepo, "Cálculo I", "CI001")

	now := time.Now().UTC()
	older := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, c1.ID, now.Add(-time.Hour))
	newer := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, c2.ID, now)

	same := testutil.Scores(t, "8", "8", "8", "8")
	f.evaluate(t, 1, newer.ID, same)
	f.evaluate(t, 2, older.ID, same)

	ranking, err := f.svc.Ranking(context.Background(), 10)
	if err != nil {
		t.Fatalf("Ranking() failed: %v", err)
	}
	if len(ranking) != 2 || ranking[0].Offering.ID != older.ID {
		t.Errorf("tied means should rank the older offering first; got %v", ranking)
	}
}

func TestService_Ranking_noLimit(t *testing.T) {
	f := setup(t)
	for _, limit := range []int{0, -3} {
		ranking, err := f.svc.Ranking(context.Background(), limit)
		if err != nil {
			t.Fatalf("Ranking(%d) failed: %v", limit, err)
		}
		if len(ranking) != 0 {
			t.Errorf("Ranking(%d) = %v; want empty", limit, ranking)
		}
	}
}

func TestService_OfferingBreakdown(t *testing.T) {
	f := setup(t)
	course := testutil.CreateCourse(t, f.academicRepo, "Banco de Dados", "BD001")
	off := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, course.ID)

	f.evaluate(t, 1, off.ID, testutil.Scores(t, "8", "6", "9", "10"))
	f.evaluate(t, 2, off.ID, testutil.Scores(t, "7", "5", "8", "9"))

	bd, err := f.svc.OfferingBreakdown(context.Background(), off.ID)
	if err != nil {
		t.Fatalf("OfferingBreakdown() failed: %v", err)
	}
	for _, cat := range evaluation.CategoryNames {
		if len(bd[cat]) != 2 {
			t.Errorf("%s has %d scores; want 2", cat, len(bd[cat]))
		}
	}
	if len(bd[evaluation.AllCategory]) != 8 {
		t.Errorf("%q has %d scores; want every score merged (8)", evaluation.AllCategory, len(bd[evaluation.AllCategory]))
	}

	if mean, ok := stats.Mean(bd[evaluation.CategoryDidactics]); !ok || !mean.Equal(decimal.NewFromFloat(7.5)) {
		t.Errorf("didactics mean = %s, %t; want 7.5", mean, ok)
	}

	if _, err = f.svc.OfferingBreakdown(context.Background(), 999); errors.Cause(err) != academic.ErrOfferingNotFound {
		t.Errorf("OfferingBreakdown(999) error = %v; want ErrOfferingNotFound", err)
	}
}

func TestService_ProfessorBreakdown(t *testing.T) {
	f := setup(t)
	c1 := testutil.CreateCourse(t, f.academicRepo, "Banco de Dados", "BD001")
	c2 := testutil.CreateCourse(t, f.academicRepo, "Cálculo I", "CI001")
	off1 := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, c1.ID)
	off2 := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, c2.ID)

	f.evaluate(t, 1, off1.ID, testutil.Scores(t, "8", "6", "9", "10"))
	f.evaluate(t, 2, off2.ID, testutil.Scores(t, "4", "4", "4", "4"))

	overall, perOffering, err := f.svc.ProfessorBreakdown(context.Background(), f.prof.ID)
	if err != nil {
		t.Fatalf("ProfessorBreakdown() failed: %v", err)
	}
	if len(overall[evaluation.AllCategory]) != 8 {
		t.Errorf("overall %q has %d scores; want 8", evaluation.AllCategory, len(overall[evaluation.AllCategory]))
	}
	if len(perOffering) != 2 {
		t.Fatalf("perOffering covers %d offerings; want 2", len(perOffering))
	}
	if got := perOffering[off2.ID][evaluation.CategoryDidactics]; len(got) != 1 || !got[0].Equal(decimal.NewFromInt(4)) {
		t.Errorf("off2 didactics = %v; want the single 4", got)
	}
}

func TestService_ProfessorBreakdown_notAProfessor(t *testing.T) {
	f := setup(t)
	student := testutil.CreatePerson(t, f.academicRepo, "Ana Lima", "11111111111", "ana@test.br", academic.RoleStudent)

	_, _, err := f.svc.ProfessorBreakdown(context.Background(), student.ID)
	if errors.Cause(err) != academic.ErrPersonNotFound {
		t.Errorf("ProfessorBreakdown(student) error = %v; want ErrPersonNotFound", err)
	}
}

func TestService_CategoryComparison(t *testing.T) {
	f := setup(t)
	prof2 := testutil.CreatePerson(t, f.academicRepo, "Davi Reis", "33333333333", "davi@test.br", academic.RoleProfessor)
	course := testutil.CreateCourse(t, f.academicRepo, "Banco de Dados", "BD001")
	other := testutil.CreateCourse(t, f.academicRepo, "Cálculo I", "CI001")

	evaluated := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, course.ID)
	bare := testutil.CreateOffering(t, f.academicRepo, prof2.ID, course.ID)
	elsewhere := testutil.CreateOffering(t, f.academicRepo, f.prof.ID, other.ID)
	_ = elsewhere

	f.evaluate(t, 1, evaluated.ID, testutil.Scores(t, "8", "6", "9", "10"))

	rows, err := f.svc.CategoryComparison(context.Background(), course.ID)
	if err != nil {
		t.Fatalf("CategoryComparison() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("comparison has %d rows; want one per offering of the course (2)", len(rows))
	}

	byOffering := make(map[int]stats.ComparisonRow, len(rows))
	for _, row := range rows {
		byOffering[row.Offering.ID] = row
	}

	got := byOffering[evaluated.ID].Means[evaluation.CategoryDidactics]
	if !got.Valid || !got.Decimal.Equal(decimal.NewFromInt(8)) {
		t.Errorf("evaluated didactics mean = %v; want 8", got)
	}
	// "no data" must stay distinct from a mean of zero
	if m := byOffering[bare.ID].Means[evaluation.CategoryDidactics]; m.Valid {
		t.Errorf("unevaluated offering mean = %v; want null", m)
	}

	if _, err = f.svc.CategoryComparison(context.Background(), 999); errors.Cause(err) != academic.ErrCourseNotFound {
		t.Errorf("CategoryComparison(999) error = %v; want ErrCourseNotFound", err)
	}
}
