package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
)

type ListRequest struct {
	CycleID snowflake.ID
	State   OrderState
	pagination.Pagination
}

type ListResponse struct {
	Items    []PurchaseOrder     `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type ReceivedLine struct {
	LineID   snowflake.ID `json:"line_id"`
	Quantity int64        `json:"quantity"`
}

type ReceptionRequest struct {
	Lines []ReceivedLine `json:"lines"`
}

type Service interface {
	Generate(ctx context.Context, cycleID snowflake.ID, actor string) (*GeneratedOrder, error)
	Fetch(ctx context.Context, orderID snowflake.ID) (*OrderDetail, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Stats(ctx context.Context) (Stats, error)
	PendingSizes(ctx context.Context, cycleID snowflake.ID) ([]PendingSize, error)
	RegisterReception(ctx context.Context, orderID snowflake.ID, req ReceptionRequest, actor string) (*OrderDetail, error)
}
