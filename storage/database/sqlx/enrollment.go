package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core/enrollment"
)

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

type enrollmentRow struct {
	ID         int       `db:"id"`
	StudentID  int       `db:"student_id"`
	OfferingID int       `db:"offering_id"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r enrollmentRow) toCore() enrollment.Enrollment {
	return enrollment.Enrollment{ID: r.ID, StudentID: r.StudentID, OfferingID: r.OfferingID, CreatedAt: r.CreatedAt}
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	query := `
		INSERT INTO enrollment (student_id, offering_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, query, e.StudentID, e.OfferingID, e.CreatedAt.UTC()).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err, "enrollment_student_offering_key") {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, id int) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, `SELECT id, student_id, offering_id, created_at FROM enrollment WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.toCore(), nil
}

func (repo enrollmentRepository) GetEnrollmentByPair(ctx context.Context, studentID, offeringID int) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, student_id, offering_id, created_at FROM enrollment WHERE student_id = $1 AND offering_id = $2`,
		studentID, offeringID)
	if err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "getting enrollment by pair")
	}
	return row.toCore(), nil
}

// DeleteEnrollment clears the enrollment's evaluations bottom-up in one
// transaction: rubric scores, then evaluations, then the enrollment. The
// cascade is an explicit business rule, not a storage-engine side effect.
func (repo enrollmentRepository) DeleteEnrollment(ctx context.Context, id int) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`DELETE FROM rubric_score WHERE evaluation_id IN (SELECT id FROM evaluation WHERE enrollment_id = $1)`,
		`DELETE FROM evaluation WHERE enrollment_id = $1`,
		`DELETE FROM enrollment WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return errors.Wrap(err, "deleting enrollment")
		}
	}
	return errors.Wrap(tx.Commit(), "committing enrollment delete")
}

func (repo enrollmentRepository) EnrolledOfferingIDs(ctx context.Context, studentID int) ([]int, error) {
	ids := make([]int, 0)
	err := repo.db.SelectContext(ctx, &ids, `SELECT offering_id FROM enrollment WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing enrolled offerings")
	}
	return ids, nil
}
