package database

import "strings"

// IsUniqueViolation reports whether err is a unique constraint violation from
// PostgreSQL ("duplicate key value violates unique constraint") or MySQL (Error 1062).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "1062")
}
