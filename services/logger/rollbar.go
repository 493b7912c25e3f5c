package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/user"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, user.Identity
// The first identity becomes the rollbar person; its role and class are merged into the extras.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		id     user.Identity
		idSet  bool
		extras map[string]interface{}
	)
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.Identity:
			if !idSet && a.ID > 0 {
				id, idSet = a, true
			}
		case map[string]interface{}:
			extras = a // rollbar keeps the last one anyway
		default:
			newArgs = append(newArgs, arg)
		}
	}

	if !idSet {
		rollbar.ClearPerson()
		if extras != nil {
			newArgs = append(newArgs, extras)
		}
		return newArgs
	}
	rollbar.SetPerson(id.IDString(), id.Role, "")
	return append(newArgs, identityExtras(id, extras))
}

func identityExtras(id user.Identity, extras map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(extras)+3)
	for k, v := range extras {
		merged[k] = v
	}
	merged["role"] = id.Role
	if id.Branch != "" {
		merged["branch"] = id.Branch
	}
	if id.Year != "" {
		merged["year"] = id.Year
	}
	return merged
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(msg, args)
	l.std.Fatal(msg)
}
