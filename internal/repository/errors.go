// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver-specific errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as lowering an event's capacity below the
// number of registrations it already holds.
var ErrConflict = errors.New("conflict")

// ErrDuplicate wraps unique-constraint violations.  Use isUniqueViolation
// with a column name to tell which constraint fired.
var ErrDuplicate = errors.New("duplicate")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isUniqueViolation reports whether err is a unique-constraint violation
// from either supported driver.  When column is non-empty the violated
// key must mention it (MySQL key names and SQLite messages both embed the
// column name).
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	matched := false
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		matched = true
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			matched = true
		}
	}
	if !matched {
		msg := strings.ToLower(err.Error())
		matched = strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate entry")
	}
	if !matched {
		return false
	}
	return column == "" || strings.Contains(strings.ToLower(err.Error()), column)
}
