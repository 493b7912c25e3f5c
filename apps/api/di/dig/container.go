package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/rahulsahu-12/nexus2/apps/api/echo"
	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
	"github.com/rahulsahu-12/nexus2/services/live"
	logsvc "github.com/rahulsahu-12/nexus2/services/logger"
	"github.com/rahulsahu-12/nexus2/storage/database"
	"github.com/rahulsahu-12/nexus2/storage/database/sqlxrepos"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	AttendanceSvc *attendance.Service
	Hub           *live.Hub
	Validate      *validator.Validate
	Translator    ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	db, err := database.SetUp(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newPublisher(hub *live.Hub) attendance.Publisher {
	return hub
}

func newSweeper(svc *attendance.Service, conf *core.Config, loggerParam DBLoggerParam) *attendance.Sweeper {
	return attendance.NewSweeper(svc, conf, loggerParam.Logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		AttendanceSvc: p.AttendanceSvc,
		Hub:           p.Hub,
		Validate:      p.Validate,
		Translator:    p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewSessionRepository, dig.As(new(attendance.SessionRepository))))
	must(c.Provide(sqlxrepos.NewRecordRepository, dig.As(new(attendance.RecordRepository))))
	must(c.Provide(live.NewHub))
	must(c.Provide(newPublisher))
	must(c.Provide(attendance.NewService))
	must(c.Provide(newSweeper))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
