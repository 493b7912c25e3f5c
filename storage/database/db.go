package database

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/rahulsahu-12/nexus2/core"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

func dataSourceName(dbName string, admin bool, conf *core.Config) (string, error) {
	switch conf.Database.Engine {
	case EnginePostgres:
		user := url.UserPassword(conf.Database.User, conf.Database.Password)
		if admin && conf.Database.AdminUser != "" {
			user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
		}

		sslMode := "require"
		if conf.Database.DisableTLS {
			sslMode = "disable"
		}
		q := make(url.Values)
		q.Set("sslmode", sslMode)
		q.Set("timezone", "utc")

		u := url.URL{
			Scheme:   conf.Database.Engine,
			User:     user,
			Host:     conf.Database.Address(),
			Path:     dbName,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case EngineSQLite:
		// immediate transactions serialize writers instead of failing them on lock upgrade
		return conf.Database.Path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate", nil
	default:
		return "", fmt.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	dsn, err := dataSourceName(dbName, admin, conf)
	if err != nil {
		return nil, err
	}
	return sqlx.Open(conf.Database.Engine, dsn)
}

// Open connects to the app database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Database.Engine == EngineSQLite {
		// a single connection keeps sqlite writes ordered
		db.SetMaxOpenConns(1)
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	err := db.Get(&exists, "SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}

	if !exists {
		q := fmt.Sprintf("CREATE USER %q CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	var exists bool
	err := db.Get(&exists, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}

	if !exists {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %q", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist makes sure the app user and database exist.
// For sqlite3 it only creates the directory holding the database file.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine == EngineSQLite {
		if dir := filepath.Dir(conf.Database.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "creating database directory")
			}
		}
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	if err = createDB(appDB, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// MigrationsDir is the embedded migrations directory for the db's engine.
func MigrationsDir(db *sqlx.DB) string {
	return path.Join("migrations", db.DriverName())
}

// SetUpMigrations points goose at the embedded migrations of the db's engine.
func SetUpMigrations(db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(db.DriverName()); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	return nil
}

// Migrate applies every pending migration.
func Migrate(db *sqlx.DB) error {
	if err := SetUpMigrations(db); err != nil {
		return err
	}
	if err := goose.Up(db.DB, MigrationsDir(db)); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// SetUp creates, opens and migrates the app database.
func SetUp(conf *core.Config) (*sqlx.DB, error) {
	if err := CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := Open(conf)
	if err != nil {
		return nil, err
	}

	if err = Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Truncate empties every app table. Meant for tests.
func Truncate(ctx context.Context, db *sqlx.DB) error {
	return core.RunInTx(ctx, db, func(tx core.DBTransactor) error {
		for _, table := range []string{"attendance_records", "attendance_sessions"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return errors.Wrapf(err, "truncating %s", table)
			}
		}
		return nil
	})
}
