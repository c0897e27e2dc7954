package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dotation/internal/roster/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEmployee(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Employee, error) {
	var row domain.Employee
	err := db.WithContext(ctx).Raw(
		`SELECT id, first_name, last_name, hire_date, salary, area_id, gender_id, active
		 FROM employees
		 WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.RosterEntry, error) {
	var rows []domain.RosterEntry
	err := db.WithContext(ctx).Raw(
		`SELECT e.id, e.first_name, e.last_name, e.hire_date, e.salary, e.area_id, e.gender_id, e.active,
		        COALESCE(a.name, '') AS area_name
		 FROM employees e
		 LEFT JOIN areas a ON a.id = e.area_id
		 WHERE e.active = ? AND e.salary > 0
		 ORDER BY area_name ASC, e.last_name ASC, e.first_name ASC, e.id ASC`,
		true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
