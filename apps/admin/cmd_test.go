package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
	emailsvc "github.com/eduavalia/backend/services/email"
	inmemdb "github.com/eduavalia/backend/storage/database/inmem"
	testutil "github.com/eduavalia/backend/tests"
)

var academicRepo *inmemdb.AcademicRepository

func setup(t *testing.T) *commandLine {
	t.Helper()
	conf := testutil.NewTestConfig(t)

	db := inmemdb.Open()
	academicRepo = inmemdb.NewAcademicRepository(db)
	enrollmentRepo := inmemdb.NewEnrollmentRepository(db)
	evalRepo := inmemdb.NewEvaluationRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	academicSvc := academic.NewService(academicRepo, mailSvc, conf)
	enrollmentSvc := enrollment.NewService(enrollmentRepo, academicRepo)
	evaluationSvc := evaluation.NewService(evalRepo, enrollmentSvc, academicRepo, mailSvc, conf)

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	return &commandLine{
		db:            sqlx.NewDb(&sql.DB{}, conf.Database.Engine), // migrations are mocked
		conf:          conf,
		academicSvc:   academicSvc,
		enrollmentSvc: enrollmentSvc,
		evaluationSvc: evaluationSvc,
		validate:      validate,
		translator:    translator,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "offering", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addAdmin(t *testing.T) {
	cli := setup(t)

	type extra struct {
		pwd string
	}
	valid := []string{"addadmin", "-name", "Root", "-email", "root@test.br", "-cpf", "99999999999", "-birthdate", "01/01/1980"}

	tests := []cliTest{
		{name: "missing flags", args: []string{"addadmin", "-name", "Root"}, wantErr: errHelp},
		{name: "no password", args: valid, wantErr: errHelp},
		{name: "ok", args: valid, extra: extra{pwd: "s3cret"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != tt.wantErr {
				t.Fatalf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			p, err := cli.academicSvc.GetPersonByEmail(context.Background(), "root@test.br")
			if err != nil {
				t.Fatalf("GetPersonByEmail() failed: %v", err)
			}
			if !p.IsAdmin() {
				t.Errorf("role = %q; want admin", p.Role)
			}
			if err = p.CheckPassword("s3cret"); err != nil {
				t.Error("prompted password was not set")
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	p := testutil.CreatePerson(t, academicRepo, "Ana Lima", "11111111111", "ana@test.br", academic.RoleStudent)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.br"}, wantErr: errHelp},
		{name: "person not found", args: []string{"resetpassword", "-email", "lol@test.br"}, extra: extra{pwd: "lol"}, wantErr: academic.ErrPersonNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", p.Email}, extra: extra{pwd: "n3w-pwd"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := academicRepo.GetPersonByID(context.Background(), p.ID)
				if err != nil {
					t.Fatalf("GetPersonByID() failed: %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, p.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
