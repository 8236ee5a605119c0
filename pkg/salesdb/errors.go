package salesdb

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrValidation indicates a row violated a store constraint (price, stock,
	// quantity, foreign key) or could not be mapped to a record at all.
	ErrValidation = errors.New("validation failure")
	// ErrUnknownTable indicates an introspection call named a relation outside the schema.
	ErrUnknownTable = errors.New("unknown table")
	// ErrNoTransaction indicates a Tx was used after Commit or Rollback.
	ErrNoTransaction = errors.New("no transaction in progress")
)

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify maps driver-level constraint violations onto ErrValidation so
// callers can test with errors.Is regardless of the backing engine.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	// Class 23 is "integrity constraint violation".
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return err
}
