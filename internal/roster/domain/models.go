// Package domain holds the read-only employee roster owned by HR.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Area groups employees; each area may own one active kit.
type Area struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Name string       `gorm:"type:text;not null" json:"name"`
}

func (Area) TableName() string { return "areas" }

// Employee is the subset of the HR record the dotation engine reads.
type Employee struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	FirstName string          `gorm:"type:text;not null" json:"first_name"`
	LastName  string          `gorm:"type:text;not null" json:"last_name"`
	HireDate  time.Time       `gorm:"not null" json:"hire_date"`
	Salary    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"salary"`
	AreaID    snowflake.ID    `gorm:"not null;index" json:"area_id"`
	GenderID  int64           `gorm:"not null" json:"gender_id"`
	Active    bool            `gorm:"not null" json:"active"`
}

func (Employee) TableName() string { return "employees" }

func (e Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// RosterEntry is an employee joined with its area name.
type RosterEntry struct {
	Employee
	AreaName string `json:"area_name"`
}
