// Package inmemdb provides map-backed repositories with the same semantics as
// the Postgres ones (uniqueness conflicts, cascades, aggregation). Used by the
// test suites and for local hacking without a database.
package inmemdb

import (
	"sync"

	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
)

type DB struct {
	mu sync.RWMutex
	pk int

	people      map[int]*academic.Person
	courses     map[int]*academic.Course
	offerings   map[int]*academic.Offering
	enrollments map[int]*enrollment.Enrollment
	categories  map[int]*evaluation.Category
	evaluations map[int]*evaluation.Evaluation
	scores      map[int]*evaluation.RubricScore
}

func Open() *DB {
	return &DB{
		people:      make(map[int]*academic.Person),
		courses:     make(map[int]*academic.Course),
		offerings:   make(map[int]*academic.Offering),
		enrollments: make(map[int]*enrollment.Enrollment),
		categories:  make(map[int]*evaluation.Category),
		evaluations: make(map[int]*evaluation.Evaluation),
		scores:      make(map[int]*evaluation.RubricScore),
	}
}

// nextPK must be called with db.mu held.
func (db *DB) nextPK() int {
	db.pk++
	return db.pk
}
