package db

import (
	"context"
	"errors"
	"strings"

	"watchearn/pkg/errutil"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// transientCodes are Postgres SQLSTATEs worth retrying.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled
	"53300": true, // too_many_connections
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsTransient reports whether err is a timeout or contention failure that a
// caller may retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.Timeout(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "Deadlock found")
}

// Classify turns a store error into a BaseError. Errors that already carry a
// BaseError pass through unchanged.
func Classify(err error, msg string) error {
	if err == nil {
		return nil
	}

	var be errutil.BaseError
	if errors.As(err, &be) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errutil.NotFound(msg, err)
	case IsTransient(err):
		return errutil.Transient(msg, err)
	default:
		return errutil.Internal(msg, err)
	}
}
