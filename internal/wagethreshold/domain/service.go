package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

const (
	MinYear = 2000
	MaxYear = 3000
)

type UpsertRequest struct {
	Year         int             `json:"year"`
	MonthlyValue decimal.Decimal `json:"monthly_value"`
	Note         *string         `json:"note,omitempty"`
}

type Service interface {
	Get(ctx context.Context, year int) (*WageThreshold, error)
	Upsert(ctx context.Context, req UpsertRequest, actor string) (*WageThreshold, error)
	List(ctx context.Context) ([]WageThreshold, error)
	Delete(ctx context.Context, year int, actor string) error
	EligibleRange(ctx context.Context, year int) (*Range, error)
}

var (
	ErrNotFound        = errors.New("wage_threshold_not_found")
	ErrNoWageThreshold = errors.New("no_wage_threshold")
	ErrInvalidYear     = errors.New("invalid_year")
	ErrInvalidValue    = errors.New("invalid_monthly_value")
	ErrThresholdInUse  = errors.New("wage_threshold_in_use")
)

func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return ErrInvalidYear
	}
	return nil
}
