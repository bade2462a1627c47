package stats

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/evaluation"
)

type (
	// Breakdown maps a category name to its raw score list, with the "all"
	// pseudo-category merging every category (overview box-plots).
	Breakdown map[string][]decimal.Decimal

	// CategoryScore is one rubric score row tagged with its offering, as read
	// for aggregation.
	CategoryScore struct {
		OfferingID int
		Category   string
		Value      decimal.Decimal
	}

	// Summary is the university-wide headline: mean of every rubric score and
	// the number of scored evaluations. Zero values when no scores exist.
	Summary struct {
		Mean            decimal.Decimal `json:"mean"`
		ScoreCount      int             `json:"score_count"`
		EvaluationCount int             `json:"evaluation_count"`
	}

	// RankingEntry is one offering in the ranking, ordered by descending mean.
	RankingEntry struct {
		Offering academic.Offering `json:"offering"`
		Mean     decimal.Decimal   `json:"mean"`
		Count    int               `json:"score_count"`
	}

	// ComparisonRow carries the per-category means of one offering of a course.
	// Means are null (not zero) for offerings without evaluations.
	ComparisonRow struct {
		Offering academic.Offering              `json:"offering"`
		Means    map[string]decimal.NullDecimal `json:"means"`
	}

	Repository interface {
		ScoresByOffering(ctx context.Context, offeringID int) ([]CategoryScore, error)
		ScoresByProfessor(ctx context.Context, professorID int) ([]CategoryScore, error)
		UniversitySummary(ctx context.Context) (Summary, error)
		// RankedOfferings: only offerings with at least one rubric score, by
		// descending mean; ties broken by offering creation order.
		RankedOfferings(ctx context.Context, limit int) ([]RankingEntry, error)
		// CourseComparison: one row per offering of the course, including
		// offerings with no evaluations.
		CourseComparison(ctx context.Context, courseID int) ([]ComparisonRow, error)
	}

	// Directory validates aggregation targets exist.
	Directory interface {
		GetOfferingByID(ctx context.Context, id int) (academic.Offering, error)
		GetPersonByID(ctx context.Context, id int) (academic.Person, error)
		GetCourseByID(ctx context.Context, id int) (academic.Course, error)
	}

	// Service computes means and rankings over the current rubric scores.
	// Read-only: results are always derived fresh from source rows.
	Service struct {
		repo      Repository
		directory Directory
	}
)

func NewService(repo Repository, directory Directory) *Service {
	return &Service{repo: repo, directory: directory}
}

// OfferingBreakdown returns the offering's raw scores per category plus "all".
func (svc *Service) OfferingBreakdown(ctx context.Context, offeringID int) (Breakdown, error) {
	if _, err := svc.directory.GetOfferingByID(ctx, offeringID); err != nil {
		return nil, errors.Wrap(err, "finding offering")
	}
	scores, err := svc.repo.ScoresByOffering(ctx, offeringID)
	if err != nil {
		return nil, errors.Wrap(err, "loading offering scores")
	}
	return buildBreakdown(scores), nil
}

// ProfessorBreakdown aggregates across every offering taught by the professor.
// The top-level breakdown merges all offerings; perOffering keeps them apart
// for the per-course chart selector.
func (svc *Service) ProfessorBreakdown(ctx context.Context, professorID int) (Breakdown, map[int]Breakdown, error) {
	p, err := svc.directory.GetPersonByID(ctx, professorID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "finding professor")
	}
	if !p.IsProfessor() {
		return nil, nil, academic.ErrPersonNotFound
	}

	scores, err := svc.repo.ScoresByProfessor(ctx, professorID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading professor scores")
	}

	perOffering := make(map[int]Breakdown)
	for _, s := range scores {
		bd, ok := perOffering[s.OfferingID]
		if !ok {
			bd = newBreakdown()
			perOffering[s.OfferingID] = bd
		}
		bd[s.Category] = append(bd[s.Category], s.Value)
		bd[evaluation.AllCategory] = append(bd[evaluation.AllCategory], s.Value)
	}
	return buildBreakdown(scores), perOffering, nil
}

// UniversityMean returns the mean over all rubric scores system-wide; a zero
// mean with zero counts when no scores exist, never an error.
func (svc *Service) UniversityMean(ctx context.Context) (Summary, error) {
	return svc.repo.UniversitySummary(ctx)
}

// Ranking returns at most limit offerings having at least one scored
// evaluation, sorted by descending mean with creation-order tie-break.
func (svc *Service) Ranking(ctx context.Context, limit int) ([]RankingEntry, error) {
	if limit <= 0 {
		return []RankingEntry{}, nil
	}
	return svc.repo.RankedOfferings(ctx, limit)
}

// CategoryComparison lines up the professors teaching a course side by side,
// one row per offering with the four per-category means; offerings without
// evaluations appear with null means.
func (svc *Service) CategoryComparison(ctx context.Context, courseID int) ([]ComparisonRow, error) {
	if _, err := svc.directory.GetCourseByID(ctx, courseID); err != nil {
		return nil, errors.Wrap(err, "finding course")
	}
	return svc.repo.CourseComparison(ctx, courseID)
}

func newBreakdown() Breakdown {
	bd := make(Breakdown, len(evaluation.CategoryNames)+1)
	for _, cat := range evaluation.CategoryNames {
		bd[cat] = []decimal.Decimal{}
	}
	bd[evaluation.AllCategory] = []decimal.Decimal{}
	return bd
}

func buildBreakdown(scores []CategoryScore) Breakdown {
	bd := newBreakdown()
	for _, s := range scores {
		bd[s.Category] = append(bd[s.Category], s.Value)
		bd[evaluation.AllCategory] = append(bd[evaluation.AllCategory], s.Value)
	}
	return bd
}

// Mean averages a score list; ok is false for an empty list ("no data" is
// distinct from a mean of zero).
func Mean(scores []decimal.Decimal) (mean decimal.Decimal, ok bool) {
	if len(scores) == 0 {
		return decimal.Zero, false
	}
	return decimal.Avg(scores[0], scores[1:]...), true
}
