package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/rahulsahu-12/nexus2/apps/api/echo"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	"github.com/rahulsahu-12/nexus2/storage/database/sqlxrepos"
	"github.com/rahulsahu-12/nexus2/tests"
)

var sessRepo attendance.SessionRepository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := testutil.NewConfig(t)

	// set up DB & repos
	db := testutil.PrepareDB(t, conf)
	sessRepo = sqlxrepos.NewSessionRepository(db)

	// start CLI
	var out bytes.Buffer
	return &commandLine{
		db:   db,
		conf: conf,
		out:  &out,
		svc:  attendance.NewService(db, sessRepo, sqlxrepos.NewRecordRepository(db), nil, conf),
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func checkErr(t *testing.T, tt cliTest, err error) {
	if err != nil {
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
	} else if tt.wantErr != nil || tt.wantErrStr != "" {
		t.Errorf("cli.run() error = nil, want an error")
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			checkErr(t, tt, cli.run(args))
			assert.Contains(t, out.String(), "Usage:")
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	defer func(orig func(string, *sql.DB, string, ...string) error) { gooseRunFunc = orig }(gooseRunFunc)
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		if dir != "migrations/sqlite3" {
			return fmt.Errorf("unexpected migrations dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
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
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "0"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "timetable", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}
}

func Test_commandLine_sweep(t *testing.T) {
	cli, out := setup(t)

	now := time.Now()
	testutil.CreateSession(t, sessRepo, 1, "CSE", "2", "DBMS", "111111", now.Add(-10*time.Minute), 3*time.Minute)
	testutil.CreateSession(t, sessRepo, 2, "CSE", "3", "OS", "222222", now, time.Hour)

	require.NoError(t, cli.run([]string{"admin", "sweep"}))
	assert.Equal(t, "deactivated 1 expired session(s)\n", out.String())

	_, err := sessRepo.FindActiveByCode(context.Background(), "111111")
	assert.Equal(t, attendance.ErrSessionNotFound, err)
	_, err = sessRepo.FindActiveByCode(context.Background(), "222222")
	assert.NoError(t, err)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "sweep"}))
	assert.Equal(t, "deactivated 0 expired session(s)\n", out.String())
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"token"}, wantErr: errHelp},
		{name: "no role", args: []string{"token", "-id", "1"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"token", "-id", "1", "-role", "dean"}, wantErr: errUnknownRole},
		{name: "teacher without branch", args: []string{"token", "-id", "1", "-role", "teacher"}, wantErr: errBranchRequired},
		{name: "student without year", args: []string{"token", "-id", "10", "-role", "student", "-branch", "CSE"}, wantErr: errYearRequired},
		{name: "admin", args: []string{"token", "-id", "99", "-role", "admin"}},
		{name: "teacher", args: []string{"token", "-id", "1", "-role", "Teacher", "-branch", "CSE"}},
		{name: "student", args: []string{"token", "-id", "10", "-role", "student", "-branch", "CSE", "-year", "2"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			checkErr(t, tt, err)
			if err != nil {
				return
			}

			claims := new(echoapi.Claims)
			_, err = jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
				return []byte(cli.conf.SecretKey), nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.args[2], claims.Subject)
			assert.Equal(t, strings.ToLower(tt.args[4]), claims.Role)
		})
	}
}
