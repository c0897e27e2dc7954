package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderStateSent              OrderState = "sent"
	OrderStatePartiallyReceived OrderState = "partially_received"
	OrderStateReceived          OrderState = "received"
)

// Receivable reports whether receptions may still be registered.
func (s OrderState) Receivable() bool {
	return s == OrderStateSent || s == OrderStatePartiallyReceived
}

// PurchaseOrder is the consolidated order of one generation run.
type PurchaseOrder struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	CycleID     snowflake.ID    `gorm:"not null;index" json:"cycle_id"`
	Reference   string          `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	OrderDate   time.Time       `gorm:"not null" json:"order_date"`
	State       OrderState      `gorm:"type:text;not null" json:"state"`
	Notes       *string         `gorm:"type:text" json:"notes,omitempty"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	CreatedBy   *string         `gorm:"type:text" json:"created_by,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

type PurchaseOrderLine struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID           snowflake.ID    `gorm:"not null;index" json:"order_id"`
	ArticleID         snowflake.ID    `gorm:"not null" json:"article_id"`
	SizeID            snowflake.ID    `gorm:"not null" json:"size_id"`
	QuantityRequested int64           `gorm:"not null" json:"quantity_requested"`
	QuantityReceived  int64           `gorm:"not null" json:"quantity_received"`
	UnitPrice         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	Subtotal          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"subtotal"`
}

func (PurchaseOrderLine) TableName() string { return "purchase_order_lines" }

// Complete reports whether every requested unit has arrived.
func (l PurchaseOrderLine) Complete() bool {
	return l.QuantityReceived >= l.QuantityRequested
}

// LineView is an order line joined with article and size names.
type LineView struct {
	PurchaseOrderLine
	ArticleName string `json:"article_name"`
	SizeLabel   string `json:"size_label"`
}

type Metadata struct {
	EmployeesConsidered int   `json:"employees_considered"`
	ManualInclusions    int   `json:"manual_inclusions"`
	TotalItems          int64 `json:"total_items"`
}

type GeneratedOrder struct {
	Order    PurchaseOrder `json:"order"`
	Lines    []LineView    `json:"lines"`
	Metadata Metadata      `json:"metadata"`
}

type OrderDetail struct {
	Order     PurchaseOrder `json:"order"`
	CycleName string        `json:"cycle_name"`
	Lines     []LineView    `json:"lines"`
}

// EmployeeRef names an employee in an error payload.
type EmployeeRef struct {
	EmployeeID snowflake.ID `json:"employee_id"`
	FirstName  string       `json:"first_name"`
	LastName   string       `json:"last_name"`
	AreaID     snowflake.ID `json:"area_id"`
}

// PendingSize is a processed member without a size for a size-required article.
type PendingSize struct {
	EmployeeID  snowflake.ID `json:"employee_id"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	ArticleID   snowflake.ID `json:"article_id"`
	ArticleName string       `json:"article_name"`
}

type Stats struct {
	Total             int64           `json:"total"`
	Sent              int64           `json:"sent"`
	PartiallyReceived int64           `json:"partially_received"`
	Received          int64           `json:"received"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}
