package main

import (
	"context"

	"github.com/eduavalia/backend/core/academic"
)

// addAdmin provisions an admin account.
func (cli *commandLine) addAdmin(name, email, cpf, birthDate, pwd string) error {
	np := academic.NewPerson{
		Name:      name,
		Email:     email,
		CPF:       cpf,
		BirthDate: birthDate,
		Role:      academic.RoleAdmin,
		Password:  pwd,
	}
	if err := np.Validate(cli.validate, cli.translator, cli.academicSvc); err != nil {
		return err
	}
	_, err := cli.academicSvc.CreatePerson(context.Background(), np)
	return err
}
