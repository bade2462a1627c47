package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/eduavalia/backend/core"
	"github.com/eduavalia/backend/core/academic"
	"github.com/eduavalia/backend/core/enrollment"
	"github.com/eduavalia/backend/core/evaluation"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db            *sqlx.DB
	conf          *core.Config
	academicSvc   *academic.Service
	enrollmentSvc *enrollment.Service
	evaluationSvc *evaluation.Service
	validate      *validator.Validate
	translator    ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [args] - run database migrations (up|down|status|...)")
	fmt.Println("  seed - load the category taxonomy and demo data")
	fmt.Println("  addadmin -name NAME -email EMAIL -cpf CPF -birthdate DD/MM/YYYY - create an admin account; the password will be prompted next")
	fmt.Println("  resetpassword -email EMAIL - reset a person's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ExitOnError)
	addAdminName := addAdminCmd.String("name", "", "The admin's full name.")
	addAdminEmail := addAdminCmd.String("email", "", "The admin's email address.")
	addAdminCPF := addAdminCmd.String("cpf", "", "The admin's 11-digit national ID.")
	addAdminBirthDate := addAdminCmd.String("birthdate", "", "The admin's birth date, DD/MM/YYYY.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The person's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "seed":
		return cli.seed()
	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminName == "" || *addAdminEmail == "" || *addAdminCPF == "" || *addAdminBirthDate == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addAdmin(*addAdminName, *addAdminEmail, *addAdminCPF, *addAdminBirthDate, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
