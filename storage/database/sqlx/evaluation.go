package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eduavalia/backend/core/evaluation"
)

type evaluationRepository struct {
	db *sqlx.DB
}

var _ evaluation.Repository = (*evaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *sqlx.DB) *evaluationRepository {
	return &evaluationRepository{db: db}
}

func (repo evaluationRepository) EnsureCategories(ctx context.Context, names []string) ([]evaluation.Category, error) {
	for _, name := range names {
		if _, err := repo.db.ExecContext(ctx,
			`INSERT INTO category (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return nil, errors.Wrap(err, "ensuring category")
		}
	}
	return repo.QueryCategories(ctx)
}

func (repo evaluationRepository) QueryCategories(ctx context.Context) ([]evaluation.Category, error) {
	categories := make([]evaluation.Category, 0, len(evaluation.CategoryNames))
	err := repo.db.SelectContext(ctx, &categories, `SELECT id, name FROM category ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	return categories, nil
}

func (repo evaluationRepository) ScoredEvaluationExists(ctx context.Context, enrollmentID int) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM evaluation WHERE enrollment_id = $1 AND scored)`, enrollmentID)
	return exists, errors.Wrap(err, "checking scored evaluation")
}

// CreateEvaluation writes the evaluation and its rubric scores in one
// transaction; a partial set of scores is never observable. The partial unique
// index on scored evaluations settles duplicate-submission races.
func (repo evaluationRepository) CreateEvaluation(ctx context.Context, ev evaluation.Evaluation, scores []evaluation.RubricScore) (evaluation.Evaluation, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return evaluation.Evaluation{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO evaluation (enrollment_id, comment, scored, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		ev.EnrollmentID, ev.Comment, ev.Scored, ev.CreatedAt.UTC(),
	).Scan(&ev.ID)
	if err != nil {
		if isUniqueViolation(err, "evaluation_scored_enrollment_key") {
			return evaluation.Evaluation{}, evaluation.ErrAlreadyEvaluated
		}
		return evaluation.Evaluation{}, errors.Wrap(err, "inserting evaluation")
	}

	for i := range scores {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO rubric_score (evaluation_id, category_id, value) VALUES ($1, $2, $3) RETURNING id`,
			ev.ID, scores[i].CategoryID, scores[i].Value,
		).Scan(&scores[i].ID)
		if err != nil {
			if isUniqueViolation(err, "rubric_score_evaluation_category_key") {
				return evaluation.Evaluation{}, evaluation.ErrAlreadyEvaluated
			}
			return evaluation.Evaluation{}, errors.Wrap(err, "inserting rubric score")
		}
		scores[i].EvaluationID = ev.ID
	}

	if err = tx.Commit(); err != nil {
		return evaluation.Evaluation{}, errors.Wrap(err, "committing evaluation")
	}
	return ev, nil
}

func (repo evaluationRepository) GetEvaluationByEnrollment(ctx context.Context, enrollmentID int) (evaluation.Evaluation, error) {
	var row struct {
		ID           int         `db:"id"`
		EnrollmentID int         `db:"enrollment_id"`
		Comment      null.String `db:"comment"`
		Scored       bool        `db:"scored"`
		CreatedAt    time.Time   `db:"created_at"`
	}
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, enrollment_id, comment, scored, created_at FROM evaluation WHERE enrollment_id = $1 AND scored`,
		enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return evaluation.Evaluation{}, evaluation.ErrNotFound
		}
		return evaluation.Evaluation{}, errors.Wrap(err, "getting evaluation")
	}
	return evaluation.Evaluation{
		ID:           row.ID,
		EnrollmentID: row.EnrollmentID,
		Comment:      row.Comment,
		Scored:       row.Scored,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (repo evaluationRepository) CommentsByProfessor(ctx context.Context, professorID int) ([]evaluation.ProfessorComment, error) {
	var rows []struct {
		Text       string    `db:"text"`
		CourseName string    `db:"course_name"`
		CreatedAt  time.Time `db:"created_at"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT ev.comment AS text, c.name AS course_name, ev.created_at
		FROM evaluation ev
		JOIN enrollment en ON en.id = ev.enrollment_id
		JOIN offering o ON o.id = en.offering_id
		JOIN course c ON c.id = o.course_id
		WHERE o.professor_id = $1 AND ev.comment IS NOT NULL AND ev.comment <> ''
		ORDER BY ev.created_at DESC`,
		professorID)
	if err != nil {
		return nil, errors.Wrap(err, "querying professor comments")
	}

	comments := make([]evaluation.ProfessorComment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, evaluation.ProfessorComment{Text: r.Text, CourseName: r.CourseName, CreatedAt: r.CreatedAt})
	}
	return comments, nil
}
