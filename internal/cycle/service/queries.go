package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"gorm.io/gorm"
)

const cycleColumns = `id, name, slug, delivery_date, window_start, window_end, state,
	applied_wage_threshold, eligible_count, created_by, notes, created_at, updated_at, closed_at`

const membershipColumns = `id, cycle_id, employee_id, kit_id, state, tenure_months_at_assignment,
	salary_at_assignment, area_id, manual_inclusion, manual_reason, assigned_at, delivered_at,
	updated_by, notes, updated_at`

func findActive(ctx context.Context, conn *gorm.DB) (*cycledomain.Cycle, error) {
	var row cycledomain.Cycle
	err := conn.WithContext(ctx).Raw(
		`SELECT `+cycleColumns+` FROM cycles WHERE state = ? ORDER BY id ASC LIMIT 1`,
		cycledomain.CycleStateActive,
	).Scan(&row).Error
	if err != nil {
		return nil, db.Storage("cycle.find_active", err)
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func findCycle(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*cycledomain.Cycle, error) {
	var row cycledomain.Cycle
	err := conn.WithContext(ctx).Raw(
		`SELECT `+cycleColumns+` FROM cycles WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, db.Storage("cycle.find", err)
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

// findMembership reads a membership row; a non-nil lock decorates the query
// with the row lock clause.
func findMembership(ctx context.Context, conn *gorm.DB, id snowflake.ID, lock lockClause) (*cycledomain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM cycle_memberships WHERE id = ?`
	if lock != nil {
		query = lock(conn, query)
	}
	var row cycledomain.Membership
	if err := conn.WithContext(ctx).Raw(query, id).Scan(&row).Error; err != nil {
		return nil, db.Storage("membership.find", err)
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func summariesFor(ctx context.Context, conn *gorm.DB, cycleIDs []snowflake.ID) (map[snowflake.ID]cycledomain.StateSummary, error) {
	out := make(map[snowflake.ID]cycledomain.StateSummary, len(cycleIDs))
	if len(cycleIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		CycleID snowflake.ID
		State   cycledomain.MemberState
		Total   int64
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT cycle_id, state, COUNT(1) AS total
		 FROM cycle_memberships
		 WHERE cycle_id IN ?
		 GROUP BY cycle_id, state`,
		cycleIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, db.Storage("cycle.summaries", err)
	}
	for _, row := range rows {
		summary := out[row.CycleID]
		summary.Add(row.State, row.Total)
		out[row.CycleID] = summary
	}
	return out, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	return optionalString(*value)
}

// truncateRunes cuts value to at most limit runes.
func truncateRunes(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
