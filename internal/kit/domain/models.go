package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Kit is the default supply bundle of an area.
type Kit struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	Name   string       `gorm:"type:text;not null" json:"name"`
	AreaID snowflake.ID `gorm:"not null;index" json:"area_id"`
	Active bool         `gorm:"not null" json:"active"`
}

func (Kit) TableName() string { return "kits" }

type KitLine struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	KitID     snowflake.ID `gorm:"not null;index" json:"kit_id"`
	ArticleID snowflake.ID `gorm:"not null" json:"article_id"`
	Quantity  int          `gorm:"not null" json:"quantity"`
}

func (KitLine) TableName() string { return "kit_lines" }

// KitLineView is a kit line joined with its article.
type KitLineView struct {
	KitID        snowflake.ID    `json:"kit_id"`
	ArticleID    snowflake.ID    `json:"article_id"`
	ArticleName  string          `json:"article_name"`
	Category     string          `json:"category"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	RequiresSize bool            `json:"requires_size"`
	Quantity     int             `json:"quantity"`
}

// EffectiveQuantity treats a missing quantity as one unit.
func (l KitLineView) EffectiveQuantity() int64 {
	if l.Quantity <= 0 {
		return 1
	}
	return int64(l.Quantity)
}
