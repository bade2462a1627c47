package academic

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduavalia/backend/core"
)

// Roles
const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
	RoleAdmin     = "admin"
)

var AllRoles = []string{RoleStudent, RoleProfessor, RoleAdmin}

// Offering statuses
const (
	OfferingActive   = "active"
	OfferingInactive = "inactive"
)

type Person struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	CPF          string      `json:"cpf"`
	BirthDate    time.Time   `json:"birth_date"`
	Email        string      `json:"email"`
	Role         string      `json:"role"`
	PhotoPath    null.String `json:"photo_path,omitempty"`
	IsActive     bool        `json:"is_active"`
	PasswordHash []byte      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
	LastLogin    null.Time   `json:"last_login"` // UTC
}

func (p *Person) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	return nil
}

func (p *Person) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(pwd))
}

func (p Person) IsStudent() bool   { return p.Role == RoleStudent }
func (p Person) IsProfessor() bool { return p.Role == RoleProfessor }
func (p Person) IsAdmin() bool     { return p.Role == RoleAdmin }

// NameFolded is the case/accent-insensitive form stored alongside the name
// for search and suggestion lookups.
func (p Person) NameFolded() string { return core.FoldString(p.Name) }

type Course struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	StartDate time.Time `json:"start_date"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (c Course) NameFolded() string { return core.FoldString(c.Name) }

// Offering links a professor to a course. At most one per (professor, course) pair.
type Offering struct {
	ID          int       `json:"id"`
	ProfessorID int       `json:"professor_id"`
	CourseID    int       `json:"course_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC

	// joined display fields, populated on reads
	ProfessorName string `json:"professor_name,omitempty"`
	CourseName    string `json:"course_name,omitempty"`
	CourseCode    string `json:"course_code,omitempty"`
}

func (o Offering) IsActive() bool { return o.Status == OfferingActive }

// ProfessorRow is a professor listing entry annotated with the mean of every
// rubric score given across their offerings. Mean is unset when no evaluations exist.
type ProfessorRow struct {
	Person
	Courses []string            `json:"courses"`
	Mean    decimal.NullDecimal `json:"mean"`
}

// NewPerson contains information needed to provision a new Person.
type NewPerson struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	CPF       string `json:"cpf" validate:"required,cpf"`
	BirthDate string `json:"birth_date" validate:"required"` // DD/MM/YYYY
	Role      string `json:"role" validate:"required,oneof=student professor admin"`
	Password  string `json:"password"`

	birthDate time.Time
}

const birthDateLayout = "02/01/2006"

func (np *NewPerson) Validate(validate *validator.Validate, translator ut.Translator, svc *Service) error {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.CPF = core.CleanString(np.CPF)

	if err := validate.Struct(np); err != nil {
		return err
	}

	bd, err := time.Parse(birthDateLayout, np.BirthDate)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "birth_date", Error: "must be a valid DD/MM/YYYY date"})
	}
	np.birthDate = bd

	return svc.checkPersonUniqueness(np.Email, np.CPF)
}

// NewCourse contains information needed to create a new Course.
// The course code is generated from the name, never supplied.
type NewCourse struct {
	Name      string `json:"name" validate:"required"`
	StartDate string `json:"start_date" validate:"required"` // DD/MM/YYYY

	startDate time.Time
}

func (nc *NewCourse) Validate(validate *validator.Validate, translator ut.Translator, svc *Service) error {
	nc.Name = core.CleanString(nc.Name)

	if err := validate.Struct(nc); err != nil {
		return err
	}

	sd, err := time.Parse(birthDateLayout, nc.StartDate)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "start_date", Error: "must be a valid DD/MM/YYYY date"})
	}
	nc.startDate = sd

	return svc.checkCourseUniqueness(nc.Name)
}

type NewOffering struct {
	ProfessorID int `json:"professor_id" validate:"required"`
	CourseID    int `json:"course_id" validate:"required"`
}

func (no *NewOffering) Validate(validate *validator.Validate) error {
	return validate.Struct(no)
}

// QueryFilter narrows the professor listing.
// Search matches professor names; Course matches taught course names.
// Both are case- and accent-insensitive.
type QueryFilter struct {
	Search string `query:"search"`
	Course string `query:"course"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Course == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Course = core.CleanString(qf.Course)
}
