package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db   *sqlx.DB
	conf *core.Config
	svc  attendance.Sweepable
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Fprintln(cli.out, "  sweep - deactivate every expired attendance session now")
	fmt.Fprintln(cli.out, "  token -id ID -role ROLE [-branch BRANCH] [-year YEAR] - issue an API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenID := tokenCmd.Int64("id", 0, "The user's id.")
	tokenRole := tokenCmd.String("role", "", "The user's role: admin, teacher or student.")
	tokenBranch := tokenCmd.String("branch", "", "The user's branch (required for teachers and students).")
	tokenYear := tokenCmd.String("year", "", "The student's year.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "sweep":
		return cli.sweep()
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			if err == flag.ErrHelp {
				return errHelp
			}
			return err
		}
		if *tokenID <= 0 || *tokenRole == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenID, *tokenRole, *tokenBranch, *tokenYear)
	default:
		cli.printUsage()
		return errHelp
	}
}
