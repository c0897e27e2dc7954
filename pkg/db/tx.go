package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// RunInTx executes fn inside a transaction bounded by timeout. Errors returned
// by fn pass through untouched; begin and commit failures are reported as
// StorageError.
func RunInTx(ctx context.Context, conn *gorm.DB, timeout time.Duration, op string, fn func(tx *gorm.DB) error) error {
	ctx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	var fnErr error
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(tx)
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	return Storage(op, err)
}
