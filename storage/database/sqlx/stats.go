package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/eduavalia/backend/core/stats"
)

type statsRepository struct {
	db *sqlx.DB
}

var _ stats.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *sqlx.DB) *statsRepository {
	return &statsRepository{db: db}
}

type categoryScoreRow struct {
	OfferingID int             `db:"offering_id"`
	Category   string          `db:"category"`
	Value      decimal.Decimal `db:"value"`
}

const scoreQuery = `
	SELECT en.offering_id, cat.name AS category, rs.value
	FROM rubric_score rs
	JOIN evaluation ev ON ev.id = rs.evaluation_id
	JOIN enrollment en ON en.id = ev.enrollment_id
	JOIN category cat ON cat.id = rs.category_id`

func (repo statsRepository) scores(ctx context.Context, query string, args ...interface{}) ([]stats.CategoryScore, error) {
	var rows []categoryScoreRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying rubric scores")
	}

	scores := make([]stats.CategoryScore, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, stats.CategoryScore{OfferingID: r.OfferingID, Category: r.Category, Value: r.Value})
	}
	return scores, nil
}

func (repo statsRepository) ScoresByOffering(ctx context.Context, offeringID int) ([]stats.CategoryScore, error) {
	return repo.scores(ctx, scoreQuery+` WHERE en.offering_id = $1 ORDER BY rs.id`, offeringID)
}

func (repo statsRepository) ScoresByProfessor(ctx context.Context, professorID int) ([]stats.CategoryScore, error) {
	return repo.scores(ctx,
		scoreQuery+`
		JOIN offering o ON o.id = en.offering_id
		WHERE o.professor_id = $1 ORDER BY rs.id`,
		professorID)
}

func (repo statsRepository) UniversitySummary(ctx context.Context) (stats.Summary, error) {
	var row struct {
		Mean            decimal.Decimal `db:"mean"`
		ScoreCount      int             `db:"score_count"`
		EvaluationCount int             `db:"evaluation_count"`
	}
	err := repo.db.GetContext(ctx, &row, `
		SELECT COALESCE(AVG(value), 0) AS mean,
		       COUNT(*) AS score_count,
		       (SELECT COUNT(*) FROM evaluation WHERE scored) AS evaluation_count
		FROM rubric_score`)
	if err != nil {
		return stats.Summary{}, errors.Wrap(err, "querying university summary")
	}
	return stats.Summary{Mean: row.Mean, ScoreCount: row.ScoreCount, EvaluationCount: row.EvaluationCount}, nil
}

func (repo statsRepository) RankedOfferings(ctx context.Context, limit int) ([]stats.RankingEntry, error) {
	var rows []struct {
		offeringRow
		Mean  decimal.Decimal `db:"mean"`
		Count int             `db:"score_count"`
	}
	// inner joins keep only offerings with at least one rubric score
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT o.id, o.professor_id, o.course_id, o.status, o.created_at,
		       p.name AS professor_name, c.name AS course_name, c.code AS course_code,
		       AVG(rs.value) AS mean, COUNT(rs.id) AS score_count
		FROM offering o
		JOIN person p ON p.id = o.professor_id
		JOIN course c ON c.id = o.course_id
		JOIN enrollment en ON en.offering_id = o.id
		JOIN evaluation ev ON ev.enrollment_id = en.id
		JOIN rubric_score rs ON rs.evaluation_id = ev.id
		GROUP BY o.id, p.name, c.name, c.code
		ORDER BY mean DESC, o.created_at ASC, o.id ASC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying ranking")
	}

	entries := make([]stats.RankingEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, stats.RankingEntry{Offering: r.toCore(), Mean: r.Mean, Count: r.Count})
	}
	return entries, nil
}

func (repo statsRepository) CourseComparison(ctx context.Context, courseID int) ([]stats.ComparisonRow, error) {
	var rows []struct {
		ID            int                 `db:"id"`
		ProfessorID   int                 `db:"professor_id"`
		CourseID      int                 `db:"course_id"`
		Status        string              `db:"status"`
		CreatedAt     time.Time           `db:"created_at"`
		ProfessorName string              `db:"professor_name"`
		CourseName    string              `db:"course_name"`
		CourseCode    string              `db:"course_code"`
		Category      string              `db:"category"`
		Mean          decimal.NullDecimal `db:"mean"`
	}
	// cross join keeps every (offering, category) cell so offerings without
	// evaluations still appear, with null means
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT o.id, o.professor_id, o.course_id, o.status, o.created_at,
		       p.name AS professor_name, c.name AS course_name, c.code AS course_code,
		       cat.name AS category, AVG(rs.value) AS mean
		FROM offering o
		JOIN person p ON p.id = o.professor_id
		JOIN course c ON c.id = o.course_id
		CROSS JOIN category cat
		LEFT JOIN enrollment en ON en.offering_id = o.id
		LEFT JOIN evaluation ev ON ev.enrollment_id = en.id
		LEFT JOIN rubric_score rs ON rs.evaluation_id = ev.id AND rs.category_id = cat.id
		WHERE o.course_id = $1
		GROUP BY o.id, p.name, c.name, c.code, cat.name
		ORDER BY o.created_at, cat.name`,
		courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course comparison")
	}

	byOffering := make(map[int]*stats.ComparisonRow)
	order := make([]int, 0)
	for _, r := range rows {
		row, ok := byOffering[r.ID]
		if !ok {
			row = &stats.ComparisonRow{
				Offering: offeringRow{
					ID:            r.ID,
					ProfessorID:   r.ProfessorID,
					CourseID:      r.CourseID,
					Status:        r.Status,
					CreatedAt:     r.CreatedAt,
					ProfessorName: r.ProfessorName,
					CourseName:    r.CourseName,
					CourseCode:    r.CourseCode,
				}.toCore(),
				Means: make(map[string]decimal.NullDecimal),
			}
			byOffering[r.ID] = row
			order = append(order, r.ID)
		}
		row.Means[r.Category] = r.Mean
	}

	comparison := make([]stats.ComparisonRow, 0, len(order))
	for _, id := range order {
		comparison = append(comparison, *byOffering[id])
	}
	return comparison, nil
}
