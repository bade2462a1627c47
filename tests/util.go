package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
)

// NewTestConfig returns a config suitable for tests: no env files are
// consulted beyond defaults, and TestMode silences request logs.
func NewTestConfig(t *testing.T) *core.Config {
	t.Helper()
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	return conf
}

// Logger routes app logs to the test log.
type Logger struct {
	T *testing.T
}

var _ core.Logger = (*Logger)(nil)

func (l Logger) log(msg string, args []interface{}) {
	l.T.Helper()
	l.T.Log(append([]interface{}{msg}, args...)...)
}

func (l Logger) Debug(msg string, args ...interface{}) { l.log(msg, args) }
func (l Logger) Info(msg string, args ...interface{})  { l.log(msg, args) }
func (l Logger) Warn(msg string, args ...interface{})  { l.log(msg, args) }
func (l Logger) Error(msg string, args ...interface{}) { l.log(msg, args) }
func (l Logger) Fatal(msg string, args ...interface{}) {
	l.T.Helper()
	l.T.Fatal(append([]interface{}{msg}, args...)...)
}

func CreatePerson(t *testing.T, repo academic.Repository, name, cpf, email, role string, createdAt ...time.Time) academic.Person {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	p := academic.Person{
		Name:      name,
		CPF:       cpf,
		BirthDate: time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if err := p.SetPassword("secret"); err != nil {
		t.Fatalf("CreatePerson() failed: %v", err)
	}
	p, err := repo.CreatePerson(context.Background(), p)
	if err != nil {
		t.Fatalf("CreatePerson() failed: %v", err)
	}
	return p
}

func CreateCourse(t *testing.T, repo academic.Repository, name, code string) academic.Course {
	t.Helper()
	c, err := repo.CreateCourse(context.Background(), academic.Course{
		Name:      name,
		Code:      code,
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreateOffering(t *testing.T, repo academic.Repository, professorID, courseID int, createdAt ...time.Time) academic.Offering {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	o, err := repo.CreateOffering(context.Background(), academic.Offering{
		ProfessorID: professorID,
		CourseID:    courseID,
		Status:      academic.OfferingActive,
		CreatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateOffering() failed: %v", err)
	}
	return o
}

func Enroll(t *testing.T, repo enrollment.Repository, studentID, offeringID int) enrollment.Enrollment {
	t.Helper()
	e, err := repo.CreateEnrollment(context.Background(), enrollment.Enrollment{
		StudentID:  studentID,
		OfferingID: offeringID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return e
}

// Scores builds a full category score map in taxonomy order:
// didactics, difficulty, rapport, punctuality.
func Scores(t *testing.T, didactics, difficulty, rapport, punctuality string) map[string]decimal.Decimal {
	t.Helper()
	vals := map[string]string{
		evaluation.CategoryDidactics:   didactics,
		evaluation.CategoryDifficulty:  difficulty,
		evaluation.CategoryRapport:     rapport,
		evaluation.CategoryPunctuality: punctuality,
	}
	scores := make(map[string]decimal.Decimal, len(vals))
	for cat, v := range vals {
		d, err := decimal.NewFromString(v)
		if err != nil {
			t.Fatalf("Scores(%q) failed: %v", v, err)
		}
		scores[cat] = d
	}
	return scores
}

// SeedCategories loads the taxonomy and returns it keyed by name.
func SeedCategories(t *testing.T, repo evaluation.Repository) map[string]evaluation.Category {
	t.Helper()
	categories, err := repo.EnsureCategories(context.Background(), evaluation.CategoryNames)
	if err != nil {
		t.Fatalf("SeedCategories() failed: %v", err)
	}
	byName := make(map[string]evaluation.Category, len(categories))
	for _, cat := range categories {
		byName[cat.Name] = cat
	}
	return byName
}

// SubmitEvaluation records a scored evaluation directly through the repository.
func SubmitEvaluation(t *testing.T, repo evaluation.Repository, enrollmentID int, scores map[string]decimal.Decimal, comment string, createdAt ...time.Time) evaluation.Evaluation {
	t.Helper()
	ctx := context.Background()
	cats := SeedCategories(t, repo)

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}

	ev := evaluation.Evaluation{
		EnrollmentID: enrollmentID,
		Scored:       true,
		CreatedAt:    tstamp,
	}
	if comment != "" {
		ev.Comment.SetValid(comment)
	}

	rubric := make([]evaluation.RubricScore, 0, len(evaluation.CategoryNames))
	for _, name := range evaluation.CategoryNames {
		rubric = append(rubric, evaluation.RubricScore{
			CategoryID: cats[name].ID,
			Category:   name,
			Value:      scores[name],
		})
	}

	ev, err := repo.CreateEvaluation(ctx, ev, rubric)
	if err != nil {
		t.Fatalf("SubmitEvaluation() failed: %v", err)
	}
	return ev
}
