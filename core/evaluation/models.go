package evaluation

import (
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/eduavalia/backend/core"
)

// Rubric categories. The taxonomy is fixed; EnsureCategories seeds it once.
const (
	CategoryDidactics   = "didactics"
	CategoryDifficulty  = "difficulty"
	CategoryRapport     = "rapport"
	CategoryPunctuality = "punctuality"
)

// AllCategory is the pseudo-category the aggregation engine uses to merge
// every category's scores for an offering.
const AllCategory = "all"

var CategoryNames = []string{CategoryDidactics, CategoryDifficulty, CategoryRapport, CategoryPunctuality}

// Score bounds: 0 to 10 in half-point steps. Earlier deployments used a 0-5
// scale; 0-10 with 0.5 granularity is the canonical range.
var (
	ScoreMin  = decimal.Zero
	ScoreMax  = decimal.NewFromInt(10)
	ScoreStep = decimal.New(5, -1) // 0.5
)

type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Evaluation is one submission event for an enrollment. Scored evaluations are
// unique per enrollment (storage-enforced); comment-only ones are not, and do
// not occupy the scored slot.
type Evaluation struct {
	ID           int         `json:"id"`
	EnrollmentID int         `json:"enrollment_id"`
	Comment      null.String `json:"comment"`
	Scored       bool        `json:"scored"`
	CreatedAt    time.Time   `json:"created_at"` // UTC, immutable
}

// RubricScore is one category value of an evaluation. Created as a set of four
// alongside the parent evaluation, never individually mutated.
type RubricScore struct {
	ID           int             `json:"id"`
	EvaluationID int             `json:"evaluation_id"`
	CategoryID   int             `json:"category_id"`
	Category     string          `json:"category"`
	Value        decimal.Decimal `json:"value"`
}

// ProfessorComment is a comment surfaced on a professor's detail page.
type ProfessorComment struct {
	Text       string    `json:"text"`
	CourseName string    `json:"course_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewEvaluation carries a student's rubric submission for an offering.
type NewEvaluation struct {
	OfferingID int                        `json:"offering_id" validate:"required"`
	Scores     map[string]decimal.Decimal `json:"category_scores" validate:"required"`
	Comment    string                     `json:"comment"`
}

func (ne *NewEvaluation) Validate(validate *validator.Validate, translator ut.Translator) error {
	ne.Comment = core.CleanString(ne.Comment)

	if err := validate.Struct(ne); err != nil {
		return err
	}
	if flds := validateScores(ne.Scores); len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// validateScores checks that every category of the taxonomy is supplied, in
// range and on the half-point step, and that no unknown category sneaks in.
// Each offending category is named in the returned field errors.
func validateScores(scores map[string]decimal.Decimal) []core.FieldError {
	var flds []core.FieldError

	for _, cat := range CategoryNames {
		val, ok := scores[cat]
		if !ok {
			flds = append(flds, core.FieldError{Field: cat, Error: "a score for this category is required"})
			continue
		}
		if val.LessThan(ScoreMin) || val.GreaterThan(ScoreMax) {
			flds = append(flds, core.FieldError{
				Field: cat,
				Error: fmt.Sprintf("must be between %s and %s", ScoreMin, ScoreMax),
			})
			continue
		}
		if !val.Mod(ScoreStep).IsZero() {
			flds = append(flds, core.FieldError{
				Field: cat,
				Error: fmt.Sprintf("must be a multiple of %s", ScoreStep),
			})
		}
	}
	for cat := range scores {
		if !isKnownCategory(cat) {
			flds = append(flds, core.FieldError{Field: cat, Error: "unknown category"})
		}
	}
	return flds
}

func isKnownCategory(name string) bool {
	for _, cat := range CategoryNames {
		if cat == name {
			return true
		}
	}
	return false
}

// NewComment carries a comment-only submission for an offering.
type NewComment struct {
	OfferingID int    `json:"offering_id" validate:"required"`
	Text       string `json:"text" validate:"required"`
}

func (nc *NewComment) Validate(validate *validator.Validate, translator ut.Translator) error {
	nc.Text = core.CleanString(nc.Text)
	return validate.Struct(nc)
}
