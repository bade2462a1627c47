package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/evaluation"
)

// demo content for local environments
var (
	seedCourses = []string{
		"Cálculo I", "Álgebra Linear", "Banco de Dados", "Inteligência Artificial",
		"Física Moderna", "Engenharia de Software", "Redes de Computadores",
		"Sistemas Operacionais", "Estrutura de Dados", "Economia I",
	}
	seedProfessors = []string{
		"Ana Beatriz Rocha", "Bruno Carvalho", "Carla Menezes", "Diego Fontes",
		"Elisa Prado", "Fernando Tavares",
	}
	seedStudents = []string{
		"Gabriel Souza", "Helena Martins", "Igor Almeida", "Júlia Castro",
		"Kauã Ribeiro", "Larissa Nunes", "Marcos Vieira", "Natália Lopes",
		"Otávio Pinto", "Paula Duarte", "Rafael Gomes", "Sofia Barros",
	}

	// category score ranges mirror real grading habits: didactics and
	// punctuality trend high, difficulty spreads out.
	seedScoreRanges = map[string][2]float64{
		evaluation.CategoryDidactics:   {4, 10},
		evaluation.CategoryDifficulty:  {2, 9},
		evaluation.CategoryRapport:     {5, 10},
		evaluation.CategoryPunctuality: {7, 10},
	}

	seedComments = []string{
		"Excelentes aulas, muito bem organizadas.",
		"Explica bem, mas as provas são difíceis.",
		"Sempre disponível para tirar dúvidas.",
		"Poderia variar mais os exercícios.",
	}
)

// seed loads the rubric taxonomy and a batch of demo people, courses,
// offerings, enrollments and evaluations. Rerunning skips anything that
// already exists.
func (cli *commandLine) seed() error {
	ctx := context.Background()
	rand.Seed(time.Now().UnixNano())

	if err := cli.evaluationSvc.Setup(ctx); err != nil {
		return errors.Wrap(err, "seeding categories")
	}

	courses := make([]academic.Course, 0, len(seedCourses))
	for _, name := range seedCourses {
		c, err := cli.seedCourse(ctx, name)
		if err != nil {
			return err
		}
		courses = append(courses, c)
	}
	logger.Printf("-> %d courses", len(courses))

	professors := make([]academic.Person, 0, len(seedProfessors))
	for _, name := range seedProfessors {
		p, err := cli.seedPerson(ctx, name, academic.RoleProfessor)
		if err != nil {
			return err
		}
		professors = append(professors, p)
	}
	logger.Printf("-> %d professors", len(professors))

	students := make([]academic.Person, 0, len(seedStudents))
	for _, name := range seedStudents {
		p, err := cli.seedPerson(ctx, name, academic.RoleStudent)
		if err != nil {
			return err
		}
		students = append(students, p)
	}
	logger.Printf("-> %d students", len(students))

	// each professor teaches one or two courses
	offerings := make([]academic.Offering, 0, 2*len(professors))
	for i, prof := range professors {
		for j := 0; j <= rand.Intn(2); j++ {
			course := courses[(2*i+j)%len(courses)]
			o, err := cli.academicSvc.CreateOffering(ctx, academic.NewOffering{
				ProfessorID: prof.ID,
				CourseID:    course.ID,
			})
			if err != nil {
				if errors.Cause(err) == academic.ErrOfferingExists {
					continue
				}
				return errors.Wrap(err, "seeding offering")
			}
			offerings = append(offerings, o)
		}
	}
	logger.Printf("-> %d offerings", len(offerings))

	// every student enrolls in and evaluates a sample of offerings
	var evaluations int
	for _, student := range students {
		for _, o := range offerings {
			if rand.Intn(3) == 0 {
				continue
			}
			if _, err := cli.enrollmentSvc.Enroll(ctx, student.ID, o.ID); err != nil {
				return errors.Wrap(err, "seeding enrollment")
			}

			ne := evaluation.NewEvaluation{OfferingID: o.ID, Scores: randomScores()}
			if rand.Intn(2) == 0 {
				ne.Comment = seedComments[rand.Intn(len(seedComments))]
			}
			if _, err := cli.evaluationSvc.Submit(ctx, student.ID, ne); err != nil {
				return errors.Wrap(err, "seeding evaluation")
			}
			evaluations++
		}
	}
	logger.Printf("-> %d evaluations", evaluations)
	return nil
}

func (cli *commandLine) seedCourse(ctx context.Context, name string) (academic.Course, error) {
	nc := academic.NewCourse{
		Name:      name,
		StartDate: time.Now().AddDate(-1, -rand.Intn(12), 0).Format("02/01/2006"),
	}
	if err := nc.Validate(cli.validate, cli.translator, cli.academicSvc); err != nil {
		return academic.Course{}, errors.Wrapf(err, "seeding course %q (wipe the database before reseeding)", name)
	}
	c, err := cli.academicSvc.CreateCourse(ctx, nc)
	return c, errors.Wrapf(err, "seeding course %q", name)
}

func (cli *commandLine) seedPerson(ctx context.Context, name, role string) (academic.Person, error) {
	np := academic.NewPerson{
		Name:      name,
		Email:     fmt.Sprintf("%s@eduavalia.com", strings.ReplaceAll(core.FoldString(name), " ", ".")),
		CPF:       randomCPF(),
		BirthDate: time.Now().AddDate(-25-rand.Intn(30), 0, 0).Format("02/01/2006"),
		Role:      role,
	}
	if err := np.Validate(cli.validate, cli.translator, cli.academicSvc); err != nil {
		return academic.Person{}, errors.Wrapf(err, "seeding person %q (wipe the database before reseeding)", name)
	}
	p, err := cli.academicSvc.CreatePerson(ctx, np)
	if err != nil {
		return academic.Person{}, errors.Wrapf(err, "seeding person %q", name)
	}
	return p, nil
}

func randomScores() map[string]decimal.Decimal {
	scores := make(map[string]decimal.Decimal, len(seedScoreRanges))
	for cat, bounds := range seedScoreRanges {
		scores[cat] = randomScore(bounds[0], bounds[1])
	}
	return scores
}

// randomScore draws a half-point value within [min, max].
func randomScore(min, max float64) decimal.Decimal {
	steps := int((max - min) * 2)
	v := min + float64(rand.Intn(steps+1))*0.5
	return decimal.NewFromFloat(v)
}

func randomCPF() string {
	digits := make([]byte, 11)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}
