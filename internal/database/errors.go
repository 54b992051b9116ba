package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/Additional-Code/tally/pkg/errorbank"
)

// Classify maps a driver error onto an AppError so callers can tell
// permission failures from transient outages. Errors that already carry a
// kind pass through unchanged.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	cause := errorbank.WithCause(err)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errorbank.NotFound(message, cause)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return errorbank.Unavailable(message, cause)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errorbank.Unavailable(message, cause)
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Field('C'), message, cause)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr.Number, message, cause)
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return errorbank.Unavailable(message, cause)
	}

	return errorbank.Internal(message, cause)
}

func classifyPostgres(code, message string, cause errorbank.Option) error {
	switch {
	case code == "42501":
		return errorbank.Forbidden(message, cause)
	case strings.HasPrefix(code, "08"), code == "40001", code == "40P01", code == "57014", code == "53300":
		return errorbank.Unavailable(message, cause)
	case strings.HasPrefix(code, "23"):
		return errorbank.Conflict(message, cause)
	default:
		return errorbank.Internal(message, cause)
	}
}

func classifyMySQL(number uint16, message string, cause errorbank.Option) error {
	switch number {
	case 1044, 1045, 1142, 1143:
		return errorbank.Forbidden(message, cause)
	case 1205, 1213, 1040, 2006, 2013:
		return errorbank.Unavailable(message, cause)
	case 1062, 1451, 1452:
		return errorbank.Conflict(message, cause)
	default:
		return errorbank.Internal(message, cause)
	}
}
