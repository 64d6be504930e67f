package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// Driver messages for unique violations that reach us untranslated, such as errors
// raised inside raw Exec calls.
var uniqueViolationMarkers = []string{
	"duplicate key value violates unique constraint",
	"UNIQUE constraint failed",
	"Error 1062",
}

// IsDuplicateKeyErr reports whether err is a unique constraint violation. It is how
// concurrent first-of-month inserts and duplicate project slugs are detected.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := err.Error()
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
