package main

import (
	"fmt"
	"log"
	"os"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	logsvc "github.com/rahulsahu-12/nexus2/services/logger"
	"github.com/rahulsahu-12/nexus2/storage/database"
	"github.com/rahulsahu-12/nexus2/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:   db,
		conf: conf,
		out:  os.Stdout,
		svc: attendance.NewService(
			db,
			sqlxrepos.NewSessionRepository(db),
			sqlxrepos.NewRecordRepository(db),
			nil, /* no live feed */
			conf,
		),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
