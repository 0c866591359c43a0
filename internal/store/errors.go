package store

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// isUniqueViolation recognises duplicate key errors from drivers that gorm does
// not translate without TranslateError.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
