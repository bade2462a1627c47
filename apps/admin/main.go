package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
	emailsvc "github.com/eduavalia/backend/services/email"
	"github.com/eduavalia/backend/storage/database"
	sqlxrepos "github.com/eduavalia/backend/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// set up services
	mailSvc := emailsvc.NewConsoleService(conf)
	academicRepo := sqlxrepos.NewAcademicRepository(db)
	enrollmentRepo := sqlxrepos.NewEnrollmentRepository(db)
	evaluationRepo := sqlxrepos.NewEvaluationRepository(db)

	academicSvc := academic.NewService(academicRepo, mailSvc, conf)
	enrollmentSvc := enrollment.NewService(enrollmentRepo, academicRepo)
	evaluationSvc := evaluation.NewService(evaluationRepo, enrollmentSvc, academicRepo, mailSvc, conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:            db,
		conf:          conf,
		academicSvc:   academicSvc,
		enrollmentSvc: enrollmentSvc,
		evaluationSvc: evaluationSvc,
		validate:      validate,
		translator:    translator,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
