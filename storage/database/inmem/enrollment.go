package inmemdb

import (
	"context"
	"sort"

	"github.com/eduavalia/backend/core/enrollment"
)

type EnrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (repo *EnrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.enrollments {
		if existing.StudentID == e.StudentID && existing.OfferingID == e.OfferingID {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
	}

	e.ID = repo.db.nextPK()
	repo.db.enrollments[e.ID] = &e
	return e, nil
}

func (repo *EnrollmentRepository) GetEnrollment(ctx context.Context, id int) (enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	e, ok := repo.db.enrollments[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return *e, nil
}

func (repo *EnrollmentRepository) GetEnrollmentByPair(ctx context.Context, studentID, offeringID int) (enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, e := range repo.db.enrollments {
		if e.StudentID == studentID && e.OfferingID == offeringID {
			return *e, nil
		}
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *EnrollmentRepository) DeleteEnrollment(ctx context.Context, id int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.enrollments[id]; !ok {
		return enrollment.ErrNotFound
	}

	// rubric scores first, then evaluations, then the enrollment itself
	evaluationIDs := make(map[int]bool)
	for evid, ev := range repo.db.evaluations {
		if ev.EnrollmentID == id {
			evaluationIDs[evid] = true
		}
	}
	for sid, s := range repo.db.scores {
		if evaluationIDs[s.EvaluationID] {
			delete(repo.db.scores, sid)
		}
	}
	for evid := range evaluationIDs {
		delete(repo.db.evaluations, evid)
	}
	delete(repo.db.enrollments, id)
	return nil
}

func (repo *EnrollmentRepository) EnrolledOfferingIDs(ctx context.Context, studentID int) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]int, 0)
	for _, e := range repo.db.enrollments {
		if e.StudentID == studentID {
			ids = append(ids, e.OfferingID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
