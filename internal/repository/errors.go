package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// 競合として扱うPostgreSQLのエラーコード
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// wrapPQError はPostgreSQLのエラーを分類し、競合の場合はErrConflictでラップする。
func wrapPQError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation, pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", op, ErrConflict, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
