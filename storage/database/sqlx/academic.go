package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// uniqueViolation is the postgres error code for a broken unique constraint.
const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *sqlx.DB) *academicRepository {
	return &academicRepository{db: db}
}

type personRow struct {
	ID           int         `db:"id"`
	Name         string      `db:"name"`
	NameFolded   string      `db:"name_folded"`
	CPF          string      `db:"cpf"`
	BirthDate    time.Time   `db:"birth_date"`
	Email        string      `db:"email"`
	Role         string      `db:"role"`
	PhotoPath    null.String `db:"photo_path"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (r personRow) toCore() academic.Person {
	return academic.Person{
		ID:           r.ID,
		Name:         r.Name,
		CPF:          r.CPF,
		BirthDate:    r.BirthDate,
		Email:        r.Email,
		Role:         r.Role,
		PhotoPath:    r.PhotoPath,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin,
	}
}

const personColumns = `id, name, name_folded, cpf, birth_date, email, role, photo_path, is_active, password_hash, created_at, updated_at, last_login`

func (repo academicRepository) CheckPersonUniqueness(ctx context.Context, email, cpf string, excluded ...academic.Person) error {
	exclIDs := make([]int, 0, len(excluded))
	for _, p := range excluded {
		exclIDs = append(exclIDs, p.ID)
	}

	check := func(column, value string, target error) error {
		b := psql.Select("1").From("person").Where(sq.Eq{column: value})
		if len(exclIDs) > 0 {
			b = b.Where(sq.NotEq{"id": exclIDs})
		}
		query, args, err := b.Prefix("SELECT EXISTS (").Suffix(")").ToSql()
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		var exists bool
		if err = repo.db.GetContext(ctx, &exists, query, args...); err != nil {
			return errors.Wrap(err, "checking person uniqueness")
		}
		if exists {
			return target
		}
		return nil
	}

	if err := check("email", email, academic.ErrEmailExists); err != nil {
		return err
	}
	return check("cpf", cpf, academic.ErrCPFExists)
}

func (repo academicRepository) CreatePerson(ctx context.Context, p academic.Person) (academic.Person, error) {
	query := `
		INSERT INTO person (name, name_folded, cpf, birth_date, email, role, photo_path, is_active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		p.Name, p.NameFolded(), p.CPF, p.BirthDate, p.Email, p.Role, p.PhotoPath, p.IsActive, p.PasswordHash, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	).Scan(&p.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err, "person_email_key"):
			return academic.Person{}, academic.ErrEmailExists
		case isUniqueViolation(err, "person_cpf_key"):
			return academic.Person{}, academic.ErrCPFExists
		}
		return academic.Person{}, errors.Wrap(err, "inserting person")
	}
	return p, nil
}

func (repo academicRepository) GetPersonByID(ctx context.Context, id int) (academic.Person, error) {
	var row personRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+personColumns+` FROM person WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Person{}, academic.ErrPersonNotFound
		}
		return academic.Person{}, errors.Wrap(err, "getting person by id")
	}
	return row.toCore(), nil
}

func (repo academicRepository) GetPersonByEmail(ctx context.Context, email string) (academic.Person, error) {
	var row personRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+personColumns+` FROM person WHERE email = $1`, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Person{}, academic.ErrPersonNotFound
		}
		return academic.Person{}, errors.Wrap(err, "getting person by email")
	}
	return row.toCore(), nil
}

func (repo academicRepository) SetLastLogin(ctx context.Context, p academic.Person) (academic.Person, error) {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE person SET last_login = $1, updated_at = $2 WHERE id = $3`,
		p.LastLogin, time.Now().UTC(), p.ID,
	)
	if err != nil {
		return academic.Person{}, errors.Wrap(err, "setting last login")
	}
	return p, nil
}

func (repo academicRepository) UpdatePassword(ctx context.Context, id int, hash []byte) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE person SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academic.ErrPersonNotFound
	}
	return nil
}

// DeletePerson removes a person and everything hanging off their offerings.
// Explicit bottom-up deletes in one transaction, no storage-engine cascade.
func (repo academicRepository) DeletePerson(ctx context.Context, id int) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`DELETE FROM rubric_score WHERE evaluation_id IN (
			SELECT ev.id FROM evaluation ev
			JOIN enrollment en ON en.id = ev.enrollment_id
			JOIN offering o ON o.id = en.offering_id
			WHERE o.professor_id = $1)`,
		`DELETE FROM evaluation WHERE enrollment_id IN (
			SELECT en.id FROM enrollment en
			JOIN offering o ON o.id = en.offering_id
			WHERE o.professor_id = $1)`,
		`DELETE FROM enrollment WHERE offering_id IN (SELECT id FROM offering WHERE professor_id = $1)`,
		`DELETE FROM offering WHERE professor_id = $1`,
		`DELETE FROM enrollment WHERE student_id = $1`,
		`DELETE FROM person WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return errors.Wrap(err, "deleting person")
		}
	}
	return errors.Wrap(tx.Commit(), "committing person delete")
}

func (repo academicRepository) SearchPeopleNames(ctx context.Context, foldedTerm, role string, limit int) ([]string, error) {
	query, args, err := psql.
		Select("DISTINCT name").
		From("person").
		Where(sq.Eq{"role": role}).
		Where(sq.Like{"name_folded": "%" + foldedTerm + "%"}).
		OrderBy("name").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building people search")
	}

	names := make([]string, 0, limit)
	if err = repo.db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, errors.Wrap(err, "searching people names")
	}
	return names, nil
}

type courseRow struct {
	ID         int       `db:"id"`
	Name       string    `db:"name"`
	NameFolded string    `db:"name_folded"`
	Code       string    `db:"code"`
	StartDate  time.Time `db:"start_date"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r courseRow) toCore() academic.Course {
	return academic.Course{ID: r.ID, Name: r.Name, Code: r.Code, StartDate: r.StartDate, CreatedAt: r.CreatedAt}
}

func (repo academicRepository) CourseNameExists(ctx context.Context, foldedName string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM course WHERE name_folded = $1)`, foldedName)
	return exists, errors.Wrap(err, "checking course name")
}

func (repo academicRepository) CreateCourse(ctx context.Context, c academic.Course) (academic.Course, error) {
	query := `
		INSERT INTO course (name, name_folded, code, start_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, query, c.Name, c.NameFolded(), c.Code, c.StartDate, c.CreatedAt.UTC()).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err, "course_name_folded_key") {
			return academic.Course{}, academic.ErrCourseExists
		}
		return academic.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo academicRepository) GetCourseByID(ctx context.Context, id int) (academic.Course, error) {
	var row courseRow
	err := repo.db.GetContext(ctx, &row, `SELECT id, name, name_folded, code, start_date, created_at FROM course WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Course{}, academic.ErrCourseNotFound
		}
		return academic.Course{}, errors.Wrap(err, "getting course by id")
	}
	return row.toCore(), nil
}

func (repo academicRepository) CountCourseCodesWithPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM course WHERE code LIKE $1 || '%'`, prefix)
	return count, errors.Wrap(err, "counting course codes")
}

func (repo academicRepository) CourseCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM course WHERE code = $1)`, code)
	return exists, errors.Wrap(err, "checking course code")
}

func (repo academicRepository) SearchCourseNames(ctx context.Context, foldedTerm string, limit int) ([]string, error) {
	query, args, err := psql.
		Select("DISTINCT name").
		From("course").
		Where(sq.Like{"name_folded": "%" + foldedTerm + "%"}).
		OrderBy("name").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building course search")
	}

	names := make([]string, 0, limit)
	if err = repo.db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, errors.Wrap(err, "searching course names")
	}
	return names, nil
}

type offeringRow struct {
	ID            int       `db:"id"`
	ProfessorID   int       `db:"professor_id"`
	CourseID      int       `db:"course_id"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	ProfessorName string    `db:"professor_name"`
	CourseName    string    `db:"course_name"`
	CourseCode    string    `db:"course_code"`
}

func (r offeringRow) toCore() academic.Offering {
	return academic.Offering{
		ID:            r.ID,
		ProfessorID:   r.ProfessorID,
		CourseID:      r.CourseID,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		ProfessorName: r.ProfessorName,
		CourseName:    r.CourseName,
		CourseCode:    r.CourseCode,
	}
}

const offeringQuery = `
	SELECT o.id, o.professor_id, o.course_id, o.status, o.created_at,
	       p.name AS professor_name, c.name AS course_name, c.code AS course_code
	FROM offering o
	JOIN person p ON p.id = o.professor_id
	JOIN course c ON c.id = o.course_id`

func (repo academicRepository) CreateOffering(ctx context.Context, o academic.Offering) (academic.Offering, error) {
	query := `
		INSERT INTO offering (professor_id, course_id, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, query, o.ProfessorID, o.CourseID, o.Status, o.CreatedAt.UTC()).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err, "offering_professor_course_key") {
			return academic.Offering{}, academic.ErrOfferingExists
		}
		return academic.Offering{}, errors.Wrap(err, "inserting offering")
	}
	return o, nil
}

func (repo academicRepository) SetOfferingStatus(ctx context.Context, id int, status string) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE offering SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return errors.Wrap(err, "updating offering status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academic.ErrOfferingNotFound
	}
	return nil
}

func (repo academicRepository) GetOfferingByID(ctx context.Context, id int) (academic.Offering, error) {
	var row offeringRow
	err := repo.db.GetContext(ctx, &row, offeringQuery+` WHERE o.id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Offering{}, academic.ErrOfferingNotFound
		}
		return academic.Offering{}, errors.Wrap(err, "getting offering by id")
	}
	return row.toCore(), nil
}

func (repo academicRepository) ActiveOfferingsByProfessor(ctx context.Context, professorID int) ([]academic.Offering, error) {
	var rows []offeringRow
	err := repo.db.SelectContext(ctx, &rows,
		offeringQuery+` WHERE o.professor_id = $1 AND o.status = $2 ORDER BY o.created_at`,
		professorID, academic.OfferingActive)
	if err != nil {
		return nil, errors.Wrap(err, "listing professor offerings")
	}

	offerings := make([]academic.Offering, 0, len(rows))
	for _, r := range rows {
		offerings = append(offerings, r.toCore())
	}
	return offerings, nil
}

type professorRowScan struct {
	personRow
	Mean    decimal.NullDecimal `db:"mean"`
	Courses pq.StringArray      `db:"courses"`
}

// professorRowsQuery is the shared base for the annotated professor listing
// and the single-professor detail.
func professorRowsQuery() sq.SelectBuilder {
	return psql.
		Select(
			"p.id", "p.name", "p.name_folded", "p.cpf", "p.birth_date", "p.email", "p.role",
			"p.photo_path", "p.is_active", "p.password_hash", "p.created_at", "p.updated_at", "p.last_login",
			"AVG(rs.value) AS mean",
			"COALESCE(ARRAY_AGG(DISTINCT c.name) FILTER (WHERE c.name IS NOT NULL), '{}') AS courses",
		).
		From("person p").
		LeftJoin("offering o ON o.professor_id = p.id").
		LeftJoin("course c ON c.id = o.course_id").
		LeftJoin("enrollment en ON en.offering_id = o.id").
		LeftJoin("evaluation ev ON ev.enrollment_id = en.id").
		LeftJoin("rubric_score rs ON rs.evaluation_id = ev.id").
		Where(sq.Eq{"p.role": academic.RoleProfessor}).
		GroupBy("p.id")
}

func (repo academicRepository) QueryProfessors(ctx context.Context, filter *academic.QueryFilter, ordering []core.DBOrdering) ([]academic.ProfessorRow, error) {
	b := professorRowsQuery()

	if filter != nil {
		if filter.Search != "" {
			b = b.Where(sq.Like{"p.name_folded": "%" + core.FoldString(filter.Search) + "%"})
		}
		if filter.Course != "" {
			b = b.Where(
				`EXISTS (SELECT 1 FROM offering o2 JOIN course c2 ON c2.id = o2.course_id
				 WHERE o2.professor_id = p.id AND c2.name_folded LIKE ?)`,
				"%"+core.FoldString(filter.Course)+"%",
			)
		}
	}

	if len(ordering) > 0 {
		for _, ord := range ordering {
			b = b.OrderBy("p." + ord.String())
		}
	} else {
		b = b.OrderBy("p.name ASC")
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building professors query")
	}

	var rows []professorRowScan
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying professors")
	}

	professors := make([]academic.ProfessorRow, 0, len(rows))
	for _, r := range rows {
		professors = append(professors, academic.ProfessorRow{
			Person:  r.toCore(),
			Courses: r.Courses,
			Mean:    r.Mean,
		})
	}
	return professors, nil
}

func (repo academicRepository) GetProfessorRow(ctx context.Context, id int) (academic.ProfessorRow, error) {
	query, args, err := professorRowsQuery().Where(sq.Eq{"p.id": id}).ToSql()
	if err != nil {
		return academic.ProfessorRow{}, errors.Wrap(err, "building professor query")
	}

	var row professorRowScan
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return academic.ProfessorRow{}, academic.ErrPersonNotFound
		}
		return academic.ProfessorRow{}, errors.Wrap(err, "getting professor")
	}
	return academic.ProfessorRow{
		Person:  row.toCore(),
		Courses: row.Courses,
		Mean:    row.Mean,
	}, nil
}
