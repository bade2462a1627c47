package main

import (
	"context"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.academicSvc.ResetPassword(context.Background(), email, pwd)
}
