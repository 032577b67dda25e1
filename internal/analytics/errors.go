package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrColumnNotFound is returned when a requested column is absent.
	ErrColumnNotFound = errors.New("column not found")

	// ErrEmptySeries is returned when no rows survive cleaning.
	ErrEmptySeries = errors.New("time series is empty after preprocessing")
)

// ColumnError names the missing column.
type ColumnError struct {
	Column string
	Role   string // time, target, exogenous
}

func (e *ColumnError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("column '%s' not found", e.Column)
	}
	return fmt.Sprintf("%s column '%s' not found", e.Role, e.Column)
}

func (e *ColumnError) Unwrap() error {
	return ErrColumnNotFound
}

// MissingColumn builds a ColumnError.
func MissingColumn(role, column string) error {
	return &ColumnError{Column: column, Role: role}
}
