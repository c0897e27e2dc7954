package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
)

type CreateRequest struct {
	Name         string    `json:"name"`
	DeliveryDate time.Time `json:"delivery_date"`
	Notes        *string   `json:"notes,omitempty"`
}

type CreateResult struct {
	Cycle            Cycle `json:"cycle"`
	ComputedEligible int   `json:"computed_eligible"`
	Inserted         int64 `json:"inserted"`
}

type AddMemberRequest struct {
	EmployeeID snowflake.ID  `json:"employee_id"`
	Reason     string        `json:"reason"`
	KitID      *snowflake.ID `json:"kit_id,omitempty"`
}

type UpdateStateRequest struct {
	State MemberState `json:"state"`
	Notes *string     `json:"notes,omitempty"`
}

type ListRequest struct {
	State CycleState
	Year  int
	pagination.Pagination
}

type CycleListItem struct {
	Cycle
	WindowStatus WindowStatus `json:"window_status"`
	Members      StateSummary `json:"members"`
}

type ListResponse struct {
	Items    []CycleListItem     `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type MemberFilter struct {
	State  MemberState
	AreaID snowflake.ID
	pagination.Pagination
}

type MemberListResponse struct {
	Items    []MemberView        `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest, actor string) (*CreateResult, error)
	Close(ctx context.Context, cycleID snowflake.ID, actor string) (*Cycle, error)
	GetActive(ctx context.Context) (*Cycle, error)
	Get(ctx context.Context, cycleID snowflake.ID) (*CycleDetail, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Delete(ctx context.Context, cycleID snowflake.ID, actor string) error
	ValidateWindow(ctx context.Context, deliveryDate time.Time) WindowCheck
	Stats(ctx context.Context) (Stats, error)

	AddManualMember(ctx context.Context, cycleID snowflake.ID, req AddMemberRequest, actor string) (*Membership, error)
	RemoveMember(ctx context.Context, membershipID snowflake.ID, actor string) error
	UpdateMemberState(ctx context.Context, membershipID snowflake.ID, req UpdateStateRequest, actor string) (*Membership, error)
	ListMembers(ctx context.Context, cycleID snowflake.ID, filter MemberFilter) (MemberListResponse, error)
	MemberSummary(ctx context.Context, cycleID snowflake.ID) (StateSummary, error)
	EmployeeHistory(ctx context.Context, employeeID snowflake.ID) ([]HistoryEntry, error)
}

var (
	ErrNotFound               = errors.New("cycle_not_found")
	ErrInvalidName            = errors.New("invalid_cycle_name")
	ErrInvalidDeliveryDate    = errors.New("invalid_delivery_date")
	ErrConflictingActiveCycle = errors.New("conflicting_active_cycle")
	ErrOutsideCreationWindow  = errors.New("outside_creation_window")
	ErrNoEligibleEmployees    = errors.New("no_eligible_employees")
	ErrCycleClosed            = errors.New("cycle_closed")
	ErrCycleHasMembers        = errors.New("cycle_has_members")

	ErrMembershipNotFound     = errors.New("membership_not_found")
	ErrReasonRequired         = errors.New("manual_reason_required")
	ErrEmployeeNotFound       = errors.New("employee_not_found")
	ErrEmployeeInactive       = errors.New("employee_inactive")
	ErrAlreadyMember          = errors.New("already_member")
	ErrKitNotFound            = errors.New("kit_not_found")
	ErrInvalidStateForRemoval = errors.New("invalid_state_for_removal")
	ErrInvalidMemberState     = errors.New("invalid_member_state")
)
