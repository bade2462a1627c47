package evaluation_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
	emailsvc "github.com/eduavalia/backend/services/email"
	inmemdb "github.com/eduavalia/backend/storage/database/inmem"
	testutil "github.com/eduavalia/backend/tests"
)

type fixtures struct {
	svc  *evaluation.Service
	repo *inmemdb.EvaluationRepository

	student  academic.Person
	prof     academic.Person
	offering academic.Offering
	other    academic.Offering
}

func setup(t *testing.T) fixtures {
	t.Helper()
	conf := testutil.NewTestConfig(t)
	db := inmemdb.Open()
	academicRepo := inmemdb.NewAcademicRepository(db)
	enrollmentRepo := inmemdb.NewEnrollmentRepository(db)
	repo := inmemdb.NewEvaluationRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	enrollmentSvc := enrollment.NewService(enrollmentRepo, academicRepo)
	svc := evaluation.NewService(repo, enrollmentSvc, academicRepo, mailSvc, conf)

	if err := svc.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}

	f := fixtures{
		svc:     svc,
		repo:    repo,
		student: testutil.CreatePerson(t, academicRepo, "Ana Lima", "11111111111", "ana@test.br", academic.RoleStudent),
		prof:    testutil.CreatePerson(t, academicRepo, "Caio Melo", "22222222222", "caio@test.br", academic.RoleProfessor),
	}
	bd := testutil.CreateCourse(t, academicRepo, "Banco de Dados", "BD001")
	ia := testutil.CreateCourse(t, academicRepo, "Inteligência Artificial", "IA001")
	f.offering = testutil.CreateOffering(t, academicRepo, f.prof.ID, bd.ID)
	f.other = testutil.CreateOffering(t, academicRepo, f.prof.ID, ia.ID)

	testutil.Enroll(t, enrollmentRepo, f.student.ID, f.offering.ID)
	return f
}

func TestService_Submit_preconditions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	scores := testutil.Scores(t, "8", "6.5", "9", "10")

	tests := []struct {
		name       string
		studentID  int
		offeringID int
		wantErr    error
	}{
		{name: "professor cannot submit", studentID: f.prof.ID, offeringID: f.offering.ID, wantErr: evaluation.ErrNotAStudent},
		{name: "unknown offering", studentID: f.student.ID, offeringID: 999, wantErr: academic.ErrOfferingNotFound},
		{name: "not enrolled", studentID: f.student.ID, offeringID: f.other.ID, wantErr: evaluation.ErrNotEnrolled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.studentID, evaluation.NewEvaluation{OfferingID: tt.offeringID, Scores: scores})
			if errors.Cause(err) != tt.wantErr {
				t.Errorf("Submit() error = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_Submit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	core.ParseEmailTemplates(testutil.NewTestConfig(t), testutil.Logger{T: t})
	emailsvc.ClearSentMessages()

	ev, err := f.svc.Submit(ctx, f.student.ID, evaluation.NewEvaluation{
		OfferingID: f.offering.ID,
		Scores:     testutil.Scores(t, "8", "6.5", "9", "10"),
		Comment:    "muito boa didática",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if !ev.Scored {
		t.Error("submitted evaluation should be scored")
	}
	if !ev.Comment.Valid || ev.Comment.String != "muito boa didática" {
		t.Errorf("comment = %v; want the submitted text", ev.Comment)
	}

	if len(emailsvc.SentMessages) != 1 || emailsvc.SentMessages[0].TemplateName != "evaluation_received" {
		t.Errorf("sent messages = %v; want one evaluation_received email", emailsvc.SentMessages)
	}

	// the scored slot is now taken
	_, err = f.svc.Submit(ctx, f.student.ID, evaluation.NewEvaluation{
		OfferingID: f.offering.ID,
		Scores:     testutil.Scores(t, "1", "1", "1", "1"),
	})
	if errors.Cause(err) != evaluation.ErrAlreadyEvaluated {
		t.Errorf("Submit(again) error = %v; want ErrAlreadyEvaluated", err)
	}
}

func TestService_Submit_atomicity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	boom := errors.New("storage exploded")
	var calls int
	f.repo.ScoreInsertHook = func(evaluation.RubricScore) error {
		calls++
		if calls == 4 {
			return boom
		}
		return nil
	}

	_, err := f.svc.Submit(ctx, f.student.ID, evaluation.NewEvaluation{
		OfferingID: f.offering.ID,
		Scores:     testutil.Scores(t, "8", "6.5", "9", "10"),
	})
	if errors.Cause(err) != boom {
		t.Fatalf("Submit() error = %v; want the injected failure", err)
	}

	// nothing of the failed write may remain; a retry must succeed
	f.repo.ScoreInsertHook = nil

	enr, err := f.svc.Submit(ctx, f.student.ID, evaluation.NewEvaluation{
		OfferingID: f.offering.ID,
		Scores:     testutil.Scores(t, "7", "7", "7", "7"),
	})
	if err != nil {
		t.Fatalf("Submit(retry) failed: %v", err)
	}
	if !enr.Scored {
		t.Error("retried evaluation should be scored")
	}
}

func TestService_SubmitComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// gated like the scored path
	_, err := f.svc.SubmitComment(ctx, f.student.ID, evaluation.NewComment{OfferingID: f.other.ID, Text: "oi"})
	if errors.Cause(err) != evaluation.ErrNotEnrolled {
		t.Errorf("SubmitComment(not enrolled) error = %v; want ErrNotEnrolled", err)
	}

	// repeatable, and never occupies the scored slot
	for i := 0; i < 2; i++ {
		ev, err := f.svc.SubmitComment(ctx, f.student.ID, evaluation.NewComment{OfferingID: f.offering.ID, Text: "turma ótima"})
		if err != nil {
			t.Fatalf("SubmitComment() failed: %v", err)
		}
		if ev.Scored {
			t.Error("comment-only evaluation must not be scored")
		}
	}

	if _, err = f.svc.Submit(ctx, f.student.ID, evaluation.NewEvaluation{
		OfferingID: f.offering.ID,
		Scores:     testutil.Scores(t, "8", "6.5", "9", "10"),
	}); err != nil {
		t.Fatalf("Submit() after comments failed: %v", err)
	}
}

func TestService_Comments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.svc.SubmitComment(ctx, f.student.ID, evaluation.NewComment{OfferingID: f.offering.ID, Text: "comentário"}); err != nil {
		t.Fatalf("SubmitComment() failed: %v", err)
	}

	comments, err := f.svc.Comments(ctx, f.prof.ID)
	if err != nil {
		t.Fatalf("Comments() failed: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("comments = %v; want one", comments)
	}
	if comments[0].Text != "comentário" || comments[0].CourseName != "Banco de Dados" {
		t.Errorf("comment = %+v; want text and course name populated", comments[0])
	}
}
