// Package service holds the business rules of the vitals platform: device
// inventory and pairing, credentials, sessions, vitals ingestion and the
// dashboard views built on the trend analyzer.  Services are constructed
// once in main with a *sql.DB and a repository.Manager and are safe for
// concurrent use; every consistency rule that spans requests is enforced
// in SQL.
package service

import (
	"errors"

	"github.com/iliyamo/medhome/internal/database"
	"github.com/iliyamo/medhome/internal/repository"
)

var (
	// ErrInvalidSession is returned for an empty, unknown or expired token.
	ErrInvalidSession = errors.New("invalid session")
	// ErrForbidden is returned when a caller may not access a username's data.
	ErrForbidden = errors.New("forbidden")
	// ErrMissingField is returned when a submission omits a required field.
	ErrMissingField = errors.New("missing field")
	// ErrUnknownDevice is returned for a serial that is unknown or unowned.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrInvalidInput is returned for malformed signup data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned by Login for any failed attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Storage-level sentinels re-exported so handlers depend on one package.
var (
	ErrNotFound           = repository.ErrNotFound
	ErrConflict           = repository.ErrConflict
	ErrNoDeviceAvailable  = repository.ErrNoDeviceAvailable
	ErrStorageUnavailable = database.ErrStorageUnavailable
)
