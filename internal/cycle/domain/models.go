package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CycleState string

const (
	CycleStateActive CycleState = "active"
	CycleStateClosed CycleState = "closed"
)

type MemberState string

const (
	MemberStateProcessed  MemberState = "processed"
	MemberStateInProgress MemberState = "in_progress"
	MemberStateDelivered  MemberState = "delivered"
	MemberStateOmitted    MemberState = "omitted"
)

// IsSettable reports whether state is a valid target of UpdateMemberState.
func (s MemberState) IsSettable() bool {
	switch s {
	case MemberStateProcessed, MemberStateDelivered, MemberStateOmitted:
		return true
	default:
		return false
	}
}

type WindowStatus string

const (
	WindowUpcoming WindowStatus = "upcoming"
	WindowOpen     WindowStatus = "open"
	WindowElapsed  WindowStatus = "elapsed"
)

// Cycle is a dated distribution round. At most one cycle is active.
type Cycle struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name                 string          `gorm:"type:text;not null" json:"name"`
	Slug                 string          `gorm:"type:text;not null;index" json:"slug"`
	DeliveryDate         time.Time       `gorm:"not null" json:"delivery_date"`
	WindowStart          time.Time       `gorm:"not null" json:"window_start"`
	WindowEnd            time.Time       `gorm:"not null" json:"window_end"`
	State                CycleState      `gorm:"type:text;not null" json:"state"`
	AppliedWageThreshold decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"applied_wage_threshold"`
	EligibleCount        int             `gorm:"not null" json:"eligible_count"`
	CreatedBy            *string         `gorm:"type:text" json:"created_by,omitempty"`
	Notes                *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
	ClosedAt             *time.Time      `json:"closed_at,omitempty"`
}

func (Cycle) TableName() string { return "cycles" }

// WindowStatusAt classifies today against the creation window.
func (c Cycle) WindowStatusAt(today time.Time) WindowStatus {
	return StatusOfWindow(c.WindowStart, c.WindowEnd, today)
}

// StatusOfWindow compares dates only.
func StatusOfWindow(start, end, today time.Time) WindowStatus {
	switch {
	case today.Before(start):
		return WindowUpcoming
	case today.After(end):
		return WindowElapsed
	default:
		return WindowOpen
	}
}

// Membership places one employee in one cycle.
type Membership struct {
	ID                       snowflake.ID    `gorm:"primaryKey" json:"id"`
	CycleID                  snowflake.ID    `gorm:"not null;uniqueIndex:ux_cycle_memberships_cycle_employee,priority:1" json:"cycle_id"`
	EmployeeID               snowflake.ID    `gorm:"not null;uniqueIndex:ux_cycle_memberships_cycle_employee,priority:2;index" json:"employee_id"`
	KitID                    *snowflake.ID   `json:"kit_id,omitempty"`
	State                    MemberState     `gorm:"type:text;not null" json:"state"`
	TenureMonthsAtAssignment int             `gorm:"not null" json:"tenure_months_at_assignment"`
	SalaryAtAssignment       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"salary_at_assignment"`
	AreaID                   snowflake.ID    `gorm:"not null;index" json:"area_id"`
	ManualInclusion          bool            `gorm:"not null" json:"manual_inclusion"`
	ManualReason             *string         `gorm:"type:text" json:"manual_reason,omitempty"`
	AssignedAt               time.Time       `gorm:"not null" json:"assigned_at"`
	DeliveredAt              *time.Time      `json:"delivered_at,omitempty"`
	UpdatedBy                *string         `gorm:"type:text" json:"updated_by,omitempty"`
	Notes                    *string         `gorm:"type:text" json:"notes,omitempty"`
	UpdatedAt                time.Time       `gorm:"not null" json:"updated_at"`
}

func (Membership) TableName() string { return "cycle_memberships" }

// StateSummary counts memberships per state.
type StateSummary struct {
	Total      int64 `json:"total"`
	Processed  int64 `json:"processed"`
	InProgress int64 `json:"in_progress"`
	Delivered  int64 `json:"delivered"`
	Omitted    int64 `json:"omitted"`
}

// Add folds a (state, count) row into the summary.
func (s *StateSummary) Add(state MemberState, count int64) {
	s.Total += count
	switch state {
	case MemberStateProcessed:
		s.Processed += count
	case MemberStateInProgress:
		s.InProgress += count
	case MemberStateDelivered:
		s.Delivered += count
	case MemberStateOmitted:
		s.Omitted += count
	}
}

type CycleDetail struct {
	Cycle
	WindowStatus WindowStatus `json:"window_status"`
	Members      StateSummary `json:"members"`
}

// MemberView is a membership joined with employee and area names.
type MemberView struct {
	Membership
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AreaName  string `json:"area_name"`
	KitName   string `json:"kit_name"`
}

// HistoryEntry is a membership of an employee seen from the cycle side.
type HistoryEntry struct {
	MembershipID snowflake.ID  `json:"membership_id"`
	CycleID      snowflake.ID  `json:"cycle_id"`
	CycleName    string        `json:"cycle_name"`
	CycleState   CycleState    `json:"cycle_state"`
	DeliveryDate time.Time     `json:"delivery_date"`
	State        MemberState   `json:"state"`
	KitID        *snowflake.ID `json:"kit_id,omitempty"`
	KitName      string        `json:"kit_name"`
	AssignedAt   time.Time     `json:"assigned_at"`
	DeliveredAt  *time.Time    `json:"delivered_at,omitempty"`
}

// WindowCheck tells whether a cycle for a delivery date may be created today.
type WindowCheck struct {
	CanCreate     bool         `json:"can_create"`
	Status        WindowStatus `json:"status"`
	WindowStart   time.Time    `json:"window_start"`
	WindowEnd     time.Time    `json:"window_end"`
	DaysRemaining int          `json:"days_remaining"`
}

type Stats struct {
	TotalCycles          int64         `json:"total_cycles"`
	ActiveCycleID        *snowflake.ID `json:"active_cycle_id,omitempty"`
	TotalMemberships     int64         `json:"total_memberships"`
	DeliveredMemberships int64         `json:"delivered_memberships"`
}
