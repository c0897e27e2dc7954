package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type SizeSelection struct {
	ArticleID snowflake.ID `json:"article_id"`
	SizeID    snowflake.ID `json:"size_id"`
}

type Service interface {
	UpsertSize(ctx context.Context, employeeID, articleID, sizeID snowflake.ID) (*EmployeeArticleSize, error)
	UpsertSizes(ctx context.Context, employeeID snowflake.ID, selections []SizeSelection) (int, error)
	ListSizes(ctx context.Context, employeeID snowflake.ID) ([]EmployeeSizeView, error)

	// SelectedSizes loads recorded sizes for the given employees inside tx.
	SelectedSizes(ctx context.Context, tx *gorm.DB, employeeIDs []snowflake.ID) (map[SizeKey]SelectedSize, error)
	// EnsurePlaceholderSize returns the placeholder size for a gender scope,
	// creating it inside tx when missing.
	EnsurePlaceholderSize(ctx context.Context, tx *gorm.DB, label string, genderID int64) (*Size, error)
}

var (
	ErrInvalidEmployee = errors.New("invalid_employee")
	ErrInvalidArticle  = errors.New("invalid_article")
	ErrInvalidSize     = errors.New("invalid_size")
	ErrArticleNotFound = errors.New("article_not_found")
	ErrSizeNotFound    = errors.New("size_not_found")
	ErrEmptySelection  = errors.New("empty_size_selection")
)
