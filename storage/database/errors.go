package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const pqUniqueViolation = "23505"

// UniqueViolation reports whether err was raised by a unique constraint or index.
// The returned string identifies the constraint: its name on postgres, the offending columns on sqlite3.
func UniqueViolation(err error) (string, bool) {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		if e.Code == pqUniqueViolation {
			return e.Constraint, true
		}
	case sqlite3.Error:
		if e.ExtendedCode == sqlite3.ErrConstraintUnique {
			return e.Error(), true
		}
	}
	return "", false
}

// ViolatesUnique reports whether err comes from the unique constraint covering column.
func ViolatesUnique(err error, column string) bool {
	constraint, ok := UniqueViolation(err)
	return ok && strings.Contains(constraint, column)
}
