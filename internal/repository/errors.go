// Package repository defines the MySQL persistence layer and the sentinel
// errors reused across repositories.  Higher layers distinguish failure
// scenarios with errors.Is; for example ErrConflict signals a duplicate
// username, email or serial and ErrNoDeviceAvailable signals an empty
// device pool during a claim.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a user, device or session does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness rule
// (username, email or serial).  Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrNoDeviceAvailable is returned by a claim when no unowned device is left.
var ErrNoDeviceAvailable = errors.New("no device available")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL duplicate-key error.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
