package inmemdb

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/eduavalia/backend/core/evaluation"
	"github.com/eduavalia/backend/core/stats"
)

type StatsRepository struct {
	db *DB
}

var _ stats.Repository = (*StatsRepository)(nil) // interface compliance check

func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (repo *StatsRepository) ScoresByOffering(ctx context.Context, offeringID int) ([]stats.CategoryScore, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.db.categoryScores(func(oid int) bool { return oid == offeringID }), nil
}

func (repo *StatsRepository) ScoresByProfessor(ctx context.Context, professorID int) ([]stats.CategoryScore, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.db.categoryScores(func(oid int) bool {
		o, ok := repo.db.offerings[oid]
		return ok && o.ProfessorID == professorID
	}), nil
}

func (repo *StatsRepository) UniversitySummary(ctx context.Context) (stats.Summary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	summary := stats.Summary{Mean: decimal.Zero}
	values := make([]decimal.Decimal, 0, len(repo.db.scores))
	for _, s := range repo.db.scores {
		values = append(values, s.Value)
	}
	if mean, ok := meanOf(values); ok {
		summary.Mean = mean
	}
	summary.ScoreCount = len(values)
	for _, ev := range repo.db.evaluations {
		if ev.Scored {
			summary.EvaluationCount++
		}
	}
	return summary, nil
}

func (repo *StatsRepository) RankedOfferings(ctx context.Context, limit int) ([]stats.RankingEntry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	perOffering := make(map[int][]decimal.Decimal)
	for _, s := range repo.db.categoryScores(func(int) bool { return true }) {
		perOffering[s.OfferingID] = append(perOffering[s.OfferingID], s.Value)
	}

	entries := make([]stats.RankingEntry, 0, len(perOffering))
	for oid, values := range perOffering {
		o, ok := repo.db.offerings[oid]
		if !ok {
			continue
		}
		mean, _ := meanOf(values)
		entries = append(entries, stats.RankingEntry{
			Offering: repo.db.annotateOffering(*o),
			Mean:     mean,
			Count:    len(values),
		})
	}

	// descending mean, ties broken by offering creation order
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Mean.Equal(entries[j].Mean) {
			return entries[i].Mean.GreaterThan(entries[j].Mean)
		}
		if !entries[i].Offering.CreatedAt.Equal(entries[j].Offering.CreatedAt) {
			return entries[i].Offering.CreatedAt.Before(entries[j].Offering.CreatedAt)
		}
		return entries[i].Offering.ID < entries[j].Offering.ID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (repo *StatsRepository) CourseComparison(ctx context.Context, courseID int) ([]stats.ComparisonRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	offeringIDs := make([]int, 0)
	for oid, o := range repo.db.offerings {
		if o.CourseID == courseID {
			offeringIDs = append(offeringIDs, oid)
		}
	}
	sort.Ints(offeringIDs)

	rows := make([]stats.ComparisonRow, 0, len(offeringIDs))
	for _, oid := range offeringIDs {
		perCategory := make(map[string][]decimal.Decimal)
		for _, s := range repo.db.categoryScores(func(id int) bool { return id == oid }) {
			perCategory[s.Category] = append(perCategory[s.Category], s.Value)
		}

		means := make(map[string]decimal.NullDecimal, len(evaluation.CategoryNames))
		for _, cat := range evaluation.CategoryNames {
			if mean, ok := meanOf(perCategory[cat]); ok {
				means[cat] = decimal.NewNullDecimal(mean)
			} else {
				means[cat] = decimal.NullDecimal{}
			}
		}
		rows = append(rows, stats.ComparisonRow{
			Offering: repo.db.annotateOffering(*repo.db.offerings[oid]),
			Means:    means,
		})
	}
	return rows, nil
}

// categoryScores walks score -> evaluation -> enrollment and keeps rows whose
// offering passes the filter, in score insertion order; callers hold db.mu.
func (db *DB) categoryScores(keep func(offeringID int) bool) []stats.CategoryScore {
	ids := make([]int, 0, len(db.scores))
	for id := range db.scores {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]stats.CategoryScore, 0, len(ids))
	for _, id := range ids {
		s := db.scores[id]
		ev, ok := db.evaluations[s.EvaluationID]
		if !ok {
			continue
		}
		enr, ok := db.enrollments[ev.EnrollmentID]
		if !ok || !keep(enr.OfferingID) {
			continue
		}
		name := s.Category
		if cat, ok := db.categories[s.CategoryID]; ok {
			name = cat.Name
		}
		out = append(out, stats.CategoryScore{OfferingID: enr.OfferingID, Category: name, Value: s.Value})
	}
	return out
}
