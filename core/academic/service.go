package academic

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/eduavalia/backend/core"
)

var (
	// errors
	ErrPersonNotFound   = core.NewNotFoundError("person not found")
	ErrCourseNotFound   = core.NewNotFoundError("course not found")
	ErrOfferingNotFound = core.NewNotFoundError("offering not found")
	ErrOfferingExists   = core.NewConflictError("this professor already teaches this course")
	ErrEmailExists      = errors.New("a person with this email already exists")
	ErrCPFExists        = errors.New("a person with this CPF already exists")
	ErrCourseExists     = errors.New("a course with this name already exists")
	ErrNotAProfessor    = core.NewValidationError(errors.New("person is not a professor"))
	ErrNotACourse       = core.NewValidationError(errors.New("course reference is invalid"))
)

// SuggestionLimit caps typeahead results.
const SuggestionLimit = 10

type (
	Repository interface {
		CheckPersonUniqueness(ctx context.Context, email, cpf string, excluded ...Person) error
		CreatePerson(ctx context.Context, p Person) (Person, error)
		GetPersonByID(ctx context.Context, id int) (Person, error)
		GetPersonByEmail(ctx context.Context, email string) (Person, error)
		SetLastLogin(ctx context.Context, p Person) (Person, error)
		UpdatePassword(ctx context.Context, id int, hash []byte) error
		// DeletePerson removes the person and, in the same transaction, their
		// offerings with every enrollment, evaluation and rubric score under them.
		DeletePerson(ctx context.Context, id int) error
		// SearchPeopleNames matches the folded name column; capped at limit.
		SearchPeopleNames(ctx context.Context, foldedTerm, role string, limit int) ([]string, error)

		CourseNameExists(ctx context.Context, foldedName string) (bool, error)
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourseByID(ctx context.Context, id int) (Course, error)
		CountCourseCodesWithPrefix(ctx context.Context, prefix string) (int, error)
		CourseCodeExists(ctx context.Context, code string) (bool, error)
		SearchCourseNames(ctx context.Context, foldedTerm string, limit int) ([]string, error)

		CreateOffering(ctx context.Context, o Offering) (Offering, error)
		GetOfferingByID(ctx context.Context, id int) (Offering, error)
		SetOfferingStatus(ctx context.Context, id int, status string) error
		ActiveOfferingsByProfessor(ctx context.Context, professorID int) ([]Offering, error)
		// QueryProfessors applies AND on the filter fields and annotates each row
		// with the mean over every rubric score across the professor's offerings.
		QueryProfessors(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]ProfessorRow, error)
		// GetProfessorRow returns one professor annotated like the listing rows.
		// ErrPersonNotFound when the id does not belong to a professor.
		GetProfessorRow(ctx context.Context, id int) (ProfessorRow, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) checkPersonUniqueness(email, cpf string, excluded ...Person) error {
	if err := svc.repo.CheckPersonUniqueness(context.Background(), email, cpf, excluded...); err != nil {
		var field string
		switch err {
		case ErrEmailExists:
			field = "email"
		case ErrCPFExists:
			field = "cpf"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) checkCourseUniqueness(name string) error {
	exists, err := svc.repo.CourseNameExists(context.Background(), core.FoldString(name))
	if err != nil {
		return err
	}
	if exists {
		return core.NewValidationError(ErrCourseExists, core.FieldError{Field: "name", Error: ErrCourseExists.Error()})
	}
	return nil
}

// CreatePerson provisions an account. The welcome email goes out after the row
// is committed; a delivery failure never undoes the account.
func (svc *Service) CreatePerson(ctx context.Context, np NewPerson) (Person, error) {
	now := time.Now().UTC()
	p := Person{
		Name:      np.Name,
		CPF:       np.CPF,
		BirthDate: np.birthDate,
		Email:     np.Email,
		Role:      np.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	pwd := np.Password
	if pwd == "" {
		pwd = defaultPassword
	}
	if err := p.SetPassword(pwd); err != nil {
		return Person{}, err
	}

	p, err := svc.repo.CreatePerson(ctx, p)
	if err != nil {
		return Person{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.Name, Address: p.Email}},
		Subject:      "Welcome to " + svc.conf.AppName,
		TemplateName: "welcome",
		TemplateData: struct{ Name string }{p.Name},
	})
	return p, nil
}

// defaultPassword is set on staff-provisioned accounts; the person is expected
// to change it on first login.
const defaultPassword = "mudaragora"

func (svc *Service) GetPersonByID(ctx context.Context, id int) (Person, error) {
	return svc.repo.GetPersonByID(ctx, id)
}

func (svc *Service) GetPersonByEmail(ctx context.Context, email string) (Person, error) {
	return svc.repo.GetPersonByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) SetLastLogin(ctx context.Context, p Person) (Person, error) {
	p.LastLogin.SetValid(time.Now().UTC())
	return svc.repo.SetLastLogin(ctx, p)
}

// ResetPassword replaces the password of the account registered to email.
func (svc *Service) ResetPassword(ctx context.Context, email, pwd string) error {
	p, err := svc.GetPersonByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = p.SetPassword(pwd); err != nil {
		return err
	}
	return svc.repo.UpdatePassword(ctx, p.ID, p.PasswordHash)
}

func (svc *Service) DeleteProfessor(ctx context.Context, id int) error {
	p, err := svc.repo.GetPersonByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.IsProfessor() {
		return ErrNotAProfessor
	}
	return svc.repo.DeletePerson(ctx, id)
}

// CreateCourse creates a course with a code generated from its name.
func (svc *Service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	code, err := svc.generateCourseCode(ctx, nc.Name)
	if err != nil {
		return Course{}, err
	}
	c := Course{
		Name:      nc.Name,
		Code:      code,
		StartDate: nc.startDate,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateCourse(ctx, c)
}

// courseCodeStopWords are skipped when picking name initials ("Estrutura de
// Dados" -> "ED").
var courseCodeStopWords = map[string]bool{
	"e": true, "de": true, "da": true, "do": true, "das": true, "dos": true, "para": true,
}

// generateCourseCode derives a code prefix from the significant-word initials
// and appends a 3-digit sequence number, probing until the code is free.
func (svc *Service) generateCourseCode(ctx context.Context, name string) (string, error) {
	folded := core.FoldString(name)

	var initials strings.Builder
	for _, word := range strings.Fields(folded) {
		if courseCodeStopWords[word] {
			continue
		}
		initials.WriteByte(word[0])
	}

	prefix := strings.ToUpper(initials.String())
	if len(prefix) < 2 && len(folded) >= 3 {
		prefix = strings.ToUpper(folded[:3])
	} else if prefix == "" {
		prefix = "DISC"
	}
	prefix = strings.ReplaceAll(prefix, " ", "")

	count, err := svc.repo.CountCourseCodesWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%s%03d", prefix, count+1)
	for {
		exists, err := svc.repo.CourseCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		count++
		code = fmt.Sprintf("%s%03d", prefix, count+1)
	}
}

func (svc *Service) GetCourseByID(ctx context.Context, id int) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

// CreateOffering links a professor to a course. Referential integrity is
// checked here; the storage unique constraint backs the one-per-pair invariant.
func (svc *Service) CreateOffering(ctx context.Context, no NewOffering) (Offering, error) {
	p, err := svc.repo.GetPersonByID(ctx, no.ProfessorID)
	if err != nil {
		return Offering{}, err
	}
	if !p.IsProfessor() {
		return Offering{}, ErrNotAProfessor
	}
	if _, err = svc.repo.GetCourseByID(ctx, no.CourseID); err != nil {
		return Offering{}, err
	}

	o := Offering{
		ProfessorID: no.ProfessorID,
		CourseID:    no.CourseID,
		Status:      OfferingActive,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateOffering(ctx, o)
}

func (svc *Service) GetOfferingByID(ctx context.Context, id int) (Offering, error) {
	return svc.repo.GetOfferingByID(ctx, id)
}

// DeactivateOffering retires an offering. Enrollments and evaluations under it
// are kept; new enrollments are refused.
func (svc *Service) DeactivateOffering(ctx context.Context, id int) error {
	if _, err := svc.repo.GetOfferingByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.SetOfferingStatus(ctx, id, OfferingInactive)
}

func (svc *Service) ActiveOfferingsByProfessor(ctx context.Context, professorID int) ([]Offering, error) {
	return svc.repo.ActiveOfferingsByProfessor(ctx, professorID)
}

func (svc *Service) Professors(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]ProfessorRow, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryProfessors(ctx, filter, ordering)
}

func (svc *Service) ProfessorDetail(ctx context.Context, id int) (ProfessorRow, error) {
	return svc.repo.GetProfessorRow(ctx, id)
}

// SuggestProfessors returns up to SuggestionLimit distinct professor names
// matching the term, case- and accent-insensitive.
func (svc *Service) SuggestProfessors(ctx context.Context, term string) ([]string, error) {
	return svc.repo.SearchPeopleNames(ctx, core.FoldString(term), RoleProfessor, SuggestionLimit)
}

// SuggestCourses returns up to SuggestionLimit distinct course names matching
// the term, case- and accent-insensitive.
func (svc *Service) SuggestCourses(ctx context.Context, term string) ([]string, error) {
	return svc.repo.SearchCourseNames(ctx, core.FoldString(term), SuggestionLimit)
}
