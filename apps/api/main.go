package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/eduavalia/backend/apps/api/echo"
	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
	"github.com/eduavalia/backend/core/stats"
	emailsvc "github.com/eduavalia/backend/services/email"
	logsvc "github.com/eduavalia/backend/services/logger"
	"github.com/eduavalia/backend/storage/database"
	sqlxrepos "github.com/eduavalia/backend/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Fatal("closing database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	academicRepo := sqlxrepos.NewAcademicRepository(db)
	enrollmentRepo := sqlxrepos.NewEnrollmentRepository(db)
	evaluationRepo := sqlxrepos.NewEvaluationRepository(db)
	statsRepo := sqlxrepos.NewStatsRepository(db)

	academicSvc := academic.NewService(academicRepo, mailSvc, conf)
	enrollmentSvc := enrollment.NewService(enrollmentRepo, academicRepo)
	evaluationSvc := evaluation.NewService(evaluationRepo, enrollmentSvc, academicRepo, mailSvc, conf)
	statsSvc := stats.NewService(statsRepo, academicRepo)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	if err = evaluationSvc.Setup(context.Background()); err != nil {
		logger.Fatal(fmt.Sprintf("seeding categories: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			AcademicSvc:   academicSvc,
			EnrollmentSvc: enrollmentSvc,
			EvaluationSvc: evaluationSvc,
			StatsSvc:      statsSvc,
			Validate:      validate,
			Translator:    translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// ask the listener to shut down and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
