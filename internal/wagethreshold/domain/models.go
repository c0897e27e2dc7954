package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WageThreshold is the reference monthly minimum wage of a calendar year.
type WageThreshold struct {
	Year         int             `gorm:"primaryKey;autoIncrement:false" json:"year"`
	MonthlyValue decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"monthly_value"`
	Note         *string         `gorm:"type:text" json:"note,omitempty"`
	UpdatedBy    *string         `gorm:"type:text" json:"updated_by,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (WageThreshold) TableName() string { return "wage_thresholds" }

// Range is the salary band eligible under a threshold.
type Range struct {
	Year    int             `json:"year"`
	Minimum decimal.Decimal `json:"minimum"`
	Maximum decimal.Decimal `json:"maximum"`
}
