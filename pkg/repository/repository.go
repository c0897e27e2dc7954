package repository

import (
	"context"

	"github.com/smallbiznis/dotation/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm store for plain reads and writes of one model.
// Struct filters follow gorm semantics: zero-valued fields are not matched.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID any, resource any) error
	Delete(ctx context.Context, resourceID any) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}
