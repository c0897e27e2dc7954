package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrEmployeeNotFound = errors.New("employee_not_found")

type Repository interface {
	// FindEmployee returns nil, nil when the employee does not exist.
	FindEmployee(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Employee, error)
	// ListActive returns active employees with a positive salary ordered by
	// area name, last name, first name.
	ListActive(ctx context.Context, db *gorm.DB) ([]RosterEntry, error)
}
