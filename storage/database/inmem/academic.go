package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
)

type AcademicRepository struct {
	db *DB
}

var _ academic.Repository = (*AcademicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *DB) *AcademicRepository {
	return &AcademicRepository{db: db}
}

func (repo *AcademicRepository) CheckPersonUniqueness(ctx context.Context, email, cpf string, excluded ...academic.Person) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excludedIDs := make(map[int]bool, len(excluded))
	for _, p := range excluded {
		excludedIDs[p.ID] = true
	}
	for _, p := range repo.db.people {
		if excludedIDs[p.ID] {
			continue
		}
		if p.Email == email {
			return academic.ErrEmailExists
		}
		if p.CPF == cpf {
			return academic.ErrCPFExists
		}
	}
	return nil
}

func (repo *AcademicRepository) CreatePerson(ctx context.Context, p academic.Person) (academic.Person, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.people {
		if existing.Email == p.Email {
			return academic.Person{}, academic.ErrEmailExists
		}
		if existing.CPF == p.CPF {
			return academic.Person{}, academic.ErrCPFExists
		}
	}

	p.ID = repo.db.nextPK()
	repo.db.people[p.ID] = &p
	return p, nil
}

func (repo *AcademicRepository) GetPersonByID(ctx context.Context, id int) (academic.Person, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.people[id]
	if !ok {
		return academic.Person{}, academic.ErrPersonNotFound
	}
	return *p, nil
}

func (repo *AcademicRepository) GetPersonByEmail(ctx context.Context, email string) (academic.Person, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.people {
		if p.Email == email {
			return *p, nil
		}
	}
	return academic.Person{}, academic.ErrPersonNotFound
}

func (repo *AcademicRepository) SetLastLogin(ctx context.Context, p academic.Person) (academic.Person, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.people[p.ID]
	if !ok {
		return academic.Person{}, academic.ErrPersonNotFound
	}
	stored.LastLogin = p.LastLogin
	return *stored, nil
}

func (repo *AcademicRepository) UpdatePassword(ctx context.Context, id int, hash []byte) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.people[id]
	if !ok {
		return academic.ErrPersonNotFound
	}
	stored.PasswordHash = hash
	return nil
}

func (repo *AcademicRepository) DeletePerson(ctx context.Context, id int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.people[id]; !ok {
		return academic.ErrPersonNotFound
	}

	// cascade: offerings taught by the person and enrollments held by them,
	// together with everything recorded under those, go in the same breath.
	offeringIDs := make(map[int]bool)
	for oid, o := range repo.db.offerings {
		if o.ProfessorID == id {
			offeringIDs[oid] = true
		}
	}
	enrollmentIDs := make(map[int]bool)
	for eid, e := range repo.db.enrollments {
		if e.StudentID == id || offeringIDs[e.OfferingID] {
			enrollmentIDs[eid] = true
		}
	}
	evaluationIDs := make(map[int]bool)
	for evid, ev := range repo.db.evaluations {
		if enrollmentIDs[ev.EnrollmentID] {
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
	for eid := range enrollmentIDs {
		delete(repo.db.enrollments, eid)
	}
	for oid := range offeringIDs {
		delete(repo.db.offerings, oid)
	}
	delete(repo.db.people, id)
	return nil
}

func (repo *AcademicRepository) SearchPeopleNames(ctx context.Context, foldedTerm, role string, limit int) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	seen := make(map[string]bool)
	names := make([]string, 0, limit)
	for _, p := range repo.db.people {
		if p.Role != role || seen[p.Name] {
			continue
		}
		if strings.Contains(p.NameFolded(), foldedTerm) {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (repo *AcademicRepository) CourseNameExists(ctx context.Context, foldedName string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, c := range repo.db.courses {
		if c.NameFolded() == foldedName {
			return true, nil
		}
	}
	return false, nil
}

func (repo *AcademicRepository) CreateCourse(ctx context.Context, c academic.Course) (academic.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.courses {
		if existing.NameFolded() == c.NameFolded() {
			return academic.Course{}, academic.ErrCourseExists
		}
	}

	c.ID = repo.db.nextPK()
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *AcademicRepository) GetCourseByID(ctx context.Context, id int) (academic.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.courses[id]
	if !ok {
		return academic.Course{}, academic.ErrCourseNotFound
	}
	return *c, nil
}

func (repo *AcademicRepository) CountCourseCodesWithPrefix(ctx context.Context, prefix string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var count int
	for _, c := range repo.db.courses {
		if strings.HasPrefix(c.Code, prefix) {
			count++
		}
	}
	return count, nil
}

func (repo *AcademicRepository) CourseCodeExists(ctx context.Context, code string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, c := range repo.db.courses {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (repo *AcademicRepository) SearchCourseNames(ctx context.Context, foldedTerm string, limit int) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	names := make([]string, 0, limit)
	for _, c := range repo.db.courses {
		if strings.Contains(c.NameFolded(), foldedTerm) {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (repo *AcademicRepository) CreateOffering(ctx context.Context, o academic.Offering) (academic.Offering, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.offerings {
		if existing.ProfessorID == o.ProfessorID && existing.CourseID == o.CourseID {
			return academic.Offering{}, academic.ErrOfferingExists
		}
	}

	o.ID = repo.db.nextPK()
	repo.db.offerings[o.ID] = &o
	return repo.db.annotateOffering(o), nil
}

func (repo *AcademicRepository) SetOfferingStatus(ctx context.Context, id int, status string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	o, ok := repo.db.offerings[id]
	if !ok {
		return academic.ErrOfferingNotFound
	}
	o.Status = status
	return nil
}

func (repo *AcademicRepository) GetOfferingByID(ctx context.Context, id int) (academic.Offering, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	o, ok := repo.db.offerings[id]
	if !ok {
		return academic.Offering{}, academic.ErrOfferingNotFound
	}
	return repo.db.annotateOffering(*o), nil
}

func (repo *AcademicRepository) ActiveOfferingsByProfessor(ctx context.Context, professorID int) ([]academic.Offering, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	offerings := make([]academic.Offering, 0)
	for _, o := range repo.db.offerings {
		if o.ProfessorID == professorID && o.IsActive() {
			offerings = append(offerings, repo.db.annotateOffering(*o))
		}
	}
	sort.Slice(offerings, func(i, j int) bool { return offerings[i].ID < offerings[j].ID })
	return offerings, nil
}

func (repo *AcademicRepository) QueryProfessors(ctx context.Context, filter *academic.QueryFilter, ordering []core.DBOrdering) ([]academic.ProfessorRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	searchFolded := core.FoldString(filter.Search)
	courseFolded := core.FoldString(filter.Course)

	rows := make([]academic.ProfessorRow, 0)
	for _, p := range repo.db.people {
		if !p.IsProfessor() {
			continue
		}
		if filter.Search != "" && !strings.Contains(p.NameFolded(), searchFolded) {
			continue
		}

		offeringIDs := make(map[int]bool)
		courseNames := make([]string, 0)
		courseMatch := false
		for _, o := range repo.db.offerings {
			if o.ProfessorID != p.ID {
				continue
			}
			offeringIDs[o.ID] = true
			if c, ok := repo.db.courses[o.CourseID]; ok {
				courseNames = append(courseNames, c.Name)
				if strings.Contains(c.NameFolded(), courseFolded) {
					courseMatch = true
				}
			}
		}
		if filter.Course != "" && !courseMatch {
			continue
		}
		sort.Strings(courseNames)

		row := academic.ProfessorRow{Person: *p, Courses: courseNames}
		if mean, ok := meanOf(repo.db.scoresForOfferings(offeringIDs)); ok {
			row.Mean = decimal.NewNullDecimal(mean)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		for _, ord := range ordering {
			if ord.Field != "name" || rows[i].Name == rows[j].Name {
				continue
			}
			if ord.Ascending {
				return rows[i].Name < rows[j].Name
			}
			return rows[i].Name > rows[j].Name
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

func (repo *AcademicRepository) GetProfessorRow(ctx context.Context, id int) (academic.ProfessorRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.people[id]
	if !ok || !p.IsProfessor() {
		return academic.ProfessorRow{}, academic.ErrPersonNotFound
	}

	offeringIDs := make(map[int]bool)
	courseNames := make([]string, 0)
	for _, o := range repo.db.offerings {
		if o.ProfessorID != p.ID {
			continue
		}
		offeringIDs[o.ID] = true
		if c, ok := repo.db.courses[o.CourseID]; ok {
			courseNames = append(courseNames, c.Name)
		}
	}
	sort.Strings(courseNames)

	row := academic.ProfessorRow{Person: *p, Courses: courseNames}
	if mean, ok := meanOf(repo.db.scoresForOfferings(offeringIDs)); ok {
		row.Mean = decimal.NewNullDecimal(mean)
	}
	return row, nil
}

// annotateOffering fills the joined display fields; callers hold db.mu.
func (db *DB) annotateOffering(o academic.Offering) academic.Offering {
	if p, ok := db.people[o.ProfessorID]; ok {
		o.ProfessorName = p.Name
	}
	if c, ok := db.courses[o.CourseID]; ok {
		o.CourseName = c.Name
		o.CourseCode = c.Code
	}
	return o
}

// scoresForOfferings collects every rubric score value recorded under the given
// offerings; callers hold db.mu.
func (db *DB) scoresForOfferings(offeringIDs map[int]bool) []decimal.Decimal {
	enrollmentIDs := make(map[int]bool)
	for _, e := range db.enrollments {
		if offeringIDs[e.OfferingID] {
			enrollmentIDs[e.ID] = true
		}
	}
	evaluationIDs := make(map[int]bool)
	for _, ev := range db.evaluations {
		if enrollmentIDs[ev.EnrollmentID] {
			evaluationIDs[ev.ID] = true
		}
	}
	values := make([]decimal.Decimal, 0)
	for _, s := range db.scores {
		if evaluationIDs[s.EvaluationID] {
			values = append(values, s.Value)
		}
	}
	return values
}

func meanOf(values []decimal.Decimal) (decimal.Decimal, bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	return decimal.Avg(values[0], values[1:]...), true
}
