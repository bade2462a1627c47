package inmemdb

import (
	"context"
	"sort"

	"github.com/eduavalia/backend/core/evaluation"
)

type EvaluationRepository struct {
	db *DB

	// ScoreInsertHook, when set, runs before each rubric score insert. An error
	// aborts the whole write and rolls back anything already inserted; tests
	// use it to exercise mid-write failures.
	ScoreInsertHook func(s evaluation.RubricScore) error
}

var _ evaluation.Repository = (*EvaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (repo *EvaluationRepository) EnsureCategories(ctx context.Context, names []string) ([]evaluation.Category, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, name := range names {
		if repo.db.categoryByName(name) == nil {
			cat := &evaluation.Category{ID: repo.db.nextPK(), Name: name}
			repo.db.categories[cat.ID] = cat
		}
	}
	return repo.db.sortedCategories(), nil
}

func (repo *EvaluationRepository) QueryCategories(ctx context.Context) ([]evaluation.Category, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.sortedCategories(), nil
}

func (repo *EvaluationRepository) ScoredEvaluationExists(ctx context.Context, enrollmentID int) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, ev := range repo.db.evaluations {
		if ev.EnrollmentID == enrollmentID && ev.Scored {
			return true, nil
		}
	}
	return false, nil
}

func (repo *EvaluationRepository) CreateEvaluation(ctx context.Context, ev evaluation.Evaluation, scores []evaluation.RubricScore) (evaluation.Evaluation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if ev.Scored {
		for _, existing := range repo.db.evaluations {
			if existing.EnrollmentID == ev.EnrollmentID && existing.Scored {
				return evaluation.Evaluation{}, evaluation.ErrAlreadyEvaluated
			}
		}
	}

	ev.ID = repo.db.nextPK()
	repo.db.evaluations[ev.ID] = &ev

	inserted := make([]int, 0, len(scores))
	for i := range scores {
		scores[i].EvaluationID = ev.ID
		if repo.ScoreInsertHook != nil {
			if err := repo.ScoreInsertHook(scores[i]); err != nil {
				// roll back: nothing of the evaluation survives a partial write
				for _, sid := range inserted {
					delete(repo.db.scores, sid)
				}
				delete(repo.db.evaluations, ev.ID)
				return evaluation.Evaluation{}, err
			}
		}
		scores[i].ID = repo.db.nextPK()
		s := scores[i]
		repo.db.scores[s.ID] = &s
		inserted = append(inserted, s.ID)
	}
	return ev, nil
}

func (repo *EvaluationRepository) GetEvaluationByEnrollment(ctx context.Context, enrollmentID int) (evaluation.Evaluation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, ev := range repo.db.evaluations {
		if ev.EnrollmentID == enrollmentID && ev.Scored {
			return *ev, nil
		}
	}
	return evaluation.Evaluation{}, evaluation.ErrNotFound
}

func (repo *EvaluationRepository) CommentsByProfessor(ctx context.Context, professorID int) ([]evaluation.ProfessorComment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	comments := make([]evaluation.ProfessorComment, 0)
	for _, ev := range repo.db.evaluations {
		if !ev.Comment.Valid || ev.Comment.String == "" {
			continue
		}
		enr, ok := repo.db.enrollments[ev.EnrollmentID]
		if !ok {
			continue
		}
		o, ok := repo.db.offerings[enr.OfferingID]
		if !ok || o.ProfessorID != professorID {
			continue
		}
		comment := evaluation.ProfessorComment{Text: ev.Comment.String, CreatedAt: ev.CreatedAt}
		if c, ok := repo.db.courses[o.CourseID]; ok {
			comment.CourseName = c.Name
		}
		comments = append(comments, comment)
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.After(comments[j].CreatedAt) })
	return comments, nil
}

// categoryByName and sortedCategories expect db.mu held.

func (db *DB) categoryByName(name string) *evaluation.Category {
	for _, cat := range db.categories {
		if cat.Name == name {
			return cat
		}
	}
	return nil
}

func (db *DB) sortedCategories() []evaluation.Category {
	categories := make([]evaluation.Category, 0, len(db.categories))
	for _, cat := range db.categories {
		categories = append(categories, *cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories
}
