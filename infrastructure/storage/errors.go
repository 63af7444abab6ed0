package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// postgres SQLSTATE codes and classes.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqConnectionException  = "08"
	pqOperatorIntervention = "57"
)

// mapError classifies a driver error and wraps it in a *ports.StoreError.
// Missing rows become domain.ErrNotFound, unique violations
// ports.ErrConflict, and lock contention or broken connections
// ports.ErrServiceUnavailable so callers can retry.
func mapError(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	return ports.NewStoreError(entity, op, classify(err))
}

func classify(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ports.ErrTimeout, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqUniqueViolation:
			return fmt.Errorf("%w: %v", ports.ErrConflict, err)
		case pqErr.Code == pqSerializationFailure,
			pqErr.Code == pqDeadlockDetected,
			pqErr.Code.Class() == pqConnectionException,
			pqErr.Code.Class() == pqOperatorIntervention:
			return fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ports.ErrConflict, err)
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err)
		}
	}
	return err
}
