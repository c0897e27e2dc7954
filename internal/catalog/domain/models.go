package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const ArticleTypeGeneral = "General"

// Article is a dotation catalog item.
type Article struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"type:text;not null" json:"name"`
	Category     string          `gorm:"type:text;not null" json:"category"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	RequiresSize bool            `gorm:"not null" json:"requires_size"`
}

func (Article) TableName() string { return "articles" }

// Size is a size label scoped by article type and gender.
type Size struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Label       string       `gorm:"type:text;not null;uniqueIndex:ux_sizes_scope,priority:1" json:"label"`
	ArticleType string       `gorm:"type:text;not null;uniqueIndex:ux_sizes_scope,priority:2" json:"article_type"`
	GenderID    int64        `gorm:"not null;uniqueIndex:ux_sizes_scope,priority:3" json:"gender_id"`
}

func (Size) TableName() string { return "sizes" }

// EmployeeArticleSize is the last size an employee picked for an article.
type EmployeeArticleSize struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	EmployeeID snowflake.ID `gorm:"not null;uniqueIndex:ux_employee_article_size,priority:1" json:"employee_id"`
	ArticleID  snowflake.ID `gorm:"not null;uniqueIndex:ux_employee_article_size,priority:2" json:"article_id"`
	SizeID     snowflake.ID `gorm:"not null" json:"size_id"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (EmployeeArticleSize) TableName() string { return "employee_article_sizes" }

// SizeKey identifies an (employee, article) pair.
type SizeKey struct {
	EmployeeID snowflake.ID
	ArticleID  snowflake.ID
}

// SelectedSize is a recorded size with its label.
type SelectedSize struct {
	EmployeeID snowflake.ID `json:"employee_id"`
	ArticleID  snowflake.ID `json:"article_id"`
	SizeID     snowflake.ID `json:"size_id"`
	Label      string       `json:"label"`
}

// EmployeeSizeView is a size preference joined with article and size names.
type EmployeeSizeView struct {
	ArticleID    snowflake.ID `json:"article_id"`
	ArticleName  string       `json:"article_name"`
	Category     string       `json:"category"`
	RequiresSize bool         `json:"requires_size"`
	SizeID       snowflake.ID `json:"size_id"`
	SizeLabel    string       `json:"size_label"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NormalizeSizeLabel makes equivalent labels compare equal.
func NormalizeSizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}
