package main

import (
	"errors"
	"fmt"

	echoapi "github.com/rahulsahu-12/nexus2/apps/api/echo"
	"github.com/rahulsahu-12/nexus2/core/user"
)

var (
	errUnknownRole    = errors.New("unknown role")
	errBranchRequired = errors.New("branch is required for teachers and students")
	errYearRequired   = errors.New("year is required for students")
)

// token prints a signed API token for the identity. Credentials are managed elsewhere; this is for operators and local dev.
func (cli *commandLine) token(id int64, role, branch, year string) error {
	ident := user.NewIdentity(id, role, branch, year)
	switch {
	case !user.IsValidRole(ident.Role):
		return errUnknownRole
	case !ident.IsAdmin() && ident.Branch == "":
		return errBranchRequired
	case ident.IsStudent() && ident.Year == "":
		return errYearRequired
	}

	token, err := echoapi.GenerateToken(cli.conf, echoapi.NewClaims(cli.conf, ident))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
