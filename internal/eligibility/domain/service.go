package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	// ComputeEligible never fails; roster errors are logged and yield an empty list.
	ComputeEligible(ctx context.Context, wage decimal.Decimal) []EligibleEmployee
	// ComputeEligibleTx evaluates the roster inside tx and reports storage failures.
	ComputeEligibleTx(ctx context.Context, tx *gorm.DB, wage decimal.Decimal) ([]EligibleEmployee, error)
	Preview(ctx context.Context, deliveryDate time.Time) (*Preview, error)
}
