package service

import (
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	"gorm.io/gorm"
)

// SetLockClause swaps the row lock builder of an order service.
func SetLockClause(svc orderdomain.Service, fn func(tx *gorm.DB, query string) string) {
	svc.(*Service).forUpdate = fn
}
