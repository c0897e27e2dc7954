package service

import (
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	"gorm.io/gorm"
)

// SetLockClause swaps the row lock builder of a cycle service.
func SetLockClause(svc cycledomain.Service, fn func(tx *gorm.DB, query string) string) {
	svc.(*Service).forUpdate = fn
}
