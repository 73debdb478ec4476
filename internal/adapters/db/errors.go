package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-offer-service/internal/domain/shared"

	"github.com/lib/pq"
)

// PostgreSQL error codes the store translates
const (
	codeSerializationFailure = pq.ErrorCode("40001")
	codeDeadlockDetected     = pq.ErrorCode("40P01")
	codeLockNotAvailable     = pq.ErrorCode("55P03")
	codeQueryCanceled        = pq.ErrorCode("57014")
	codeUniqueViolation      = pq.ErrorCode("23505")
	codeNumericOutOfRange    = pq.ErrorCode("22003")
)

// translateError maps driver errors onto shared errors. notFound replaces sql.ErrNoRows when set.
func translateError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if shared.KindOf(err) != shared.KindInternal {
		return err
	}
	if notFound != nil && errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrStoreTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %v", shared.ErrTransactionAborted, err)
		case codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("%w: %v", shared.ErrStoreTimeout, err)
		case codeNumericOutOfRange:
			return fmt.Errorf("%w: %v", shared.ErrAmountTooLarge, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
