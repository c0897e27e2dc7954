package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dotation/internal/config"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	eligibilitydomain "github.com/smallbiznis/dotation/internal/eligibility/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	"github.com/smallbiznis/dotation/pkg/db"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) AddManualMember(ctx context.Context, cycleID snowflake.ID, req cycledomain.AddMemberRequest, actor string) (*cycledomain.Membership, error) {
	if cycleID == 0 {
		return nil, cycledomain.ErrNotFound
	}
	if req.EmployeeID == 0 {
		return nil, cycledomain.ErrEmployeeNotFound
	}

	policy := config.PolicyOrDefault(s.policy)
	var member cycledomain.Membership
	err := db.RunInTx(ctx, s.db, s.timeout(), "cycle.add_member", func(tx *gorm.DB) error {
		cycle, err := s.lockCycle(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		if cycle == nil {
			return cycledomain.ErrNotFound
		}
		if cycle.State == cycledomain.CycleStateClosed {
			return cycledomain.ErrCycleClosed
		}

		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			return cycledomain.ErrReasonRequired
		}
		reason = truncateRunes(reason, policy.ManualReasonMaxLength)

		employee, err := s.rosterRepo.FindEmployee(ctx, tx, req.EmployeeID)
		if err != nil {
			return db.Storage("cycle.find_employee", err)
		}
		if employee == nil {
			return cycledomain.ErrEmployeeNotFound
		}
		if !employee.Active {
			return cycledomain.ErrEmployeeInactive
		}

		var existing int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM cycle_memberships WHERE cycle_id = ? AND employee_id = ?`,
			cycleID, req.EmployeeID,
		).Scan(&existing).Error; err != nil {
			return db.Storage("cycle.check_member", err)
		}
		if existing > 0 {
			return cycledomain.ErrAlreadyMember
		}

		kitID, err := s.kitForManualMember(ctx, tx, req.KitID, employee.AreaID)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		member = cycledomain.Membership{
			ID:                       s.genID.Generate(),
			CycleID:                  cycleID,
			EmployeeID:               employee.ID,
			KitID:                    kitID,
			State:                    cycledomain.MemberStateProcessed,
			TenureMonthsAtAssignment: eligibilitydomain.TenureMonths(employee.HireDate, now),
			SalaryAtAssignment:       employee.Salary,
			AreaID:                   employee.AreaID,
			ManualInclusion:          true,
			ManualReason:             &reason,
			AssignedAt:               now,
			UpdatedBy:                optionalString(actor),
			UpdatedAt:                now,
		}
		if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return cycledomain.ErrAlreadyMember
			}
			return db.Storage("cycle.insert_member", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("manual member added",
		zap.String("cycle_id", cycleID.String()),
		zap.String("employee_id", member.EmployeeID.String()),
	)
	s.emitAudit(ctx, actor, "cycle.member_added", "cycle_membership", member.ID, map[string]any{
		"cycle_id":    cycleID.String(),
		"employee_id": member.EmployeeID.String(),
		"reason":      *member.ManualReason,
	})
	return &member, nil
}

// kitForManualMember validates an explicit kit or falls back to the area's active kit.
func (s *Service) kitForManualMember(ctx context.Context, tx *gorm.DB, explicit *snowflake.ID, areaID snowflake.ID) (*snowflake.ID, error) {
	index, err := s.kitSvc.LoadIndex(ctx, tx)
	if err != nil {
		return nil, err
	}
	if explicit != nil && *explicit != 0 {
		resolution := index.Resolve(kitdomain.MembershipRef{KitID: explicit})
		if !resolution.IsResolved() {
			return nil, cycledomain.ErrKitNotFound
		}
		id := resolution.Kit.ID
		return &id, nil
	}
	if kitID, ok := index.ActiveKitForArea(areaID); ok {
		return &kitID, nil
	}
	return nil, nil
}

func (s *Service) RemoveMember(ctx context.Context, membershipID snowflake.ID, actor string) error {
	if membershipID == 0 {
		return cycledomain.ErrMembershipNotFound
	}

	var removed *cycledomain.Membership
	err := db.RunInTx(ctx, s.db, s.timeout(), "cycle.remove_member", func(tx *gorm.DB) error {
		member, err := s.lockMembership(ctx, tx, membershipID)
		if err != nil {
			return err
		}
		if member.State != cycledomain.MemberStateProcessed {
			return cycledomain.ErrInvalidStateForRemoval
		}
		if err := tx.WithContext(ctx).Exec(`DELETE FROM cycle_memberships WHERE id = ?`, membershipID).Error; err != nil {
			return db.Storage("cycle.delete_member", err)
		}
		removed = member
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("member removed",
		zap.String("cycle_id", removed.CycleID.String()),
		zap.String("employee_id", removed.EmployeeID.String()),
	)
	s.emitAudit(ctx, actor, "cycle.member_removed", "cycle_membership", membershipID, map[string]any{
		"cycle_id":    removed.CycleID.String(),
		"employee_id": removed.EmployeeID.String(),
	})
	return nil
}

func (s *Service) UpdateMemberState(ctx context.Context, membershipID snowflake.ID, req cycledomain.UpdateStateRequest, actor string) (*cycledomain.Membership, error) {
	if membershipID == 0 {
		return nil, cycledomain.ErrMembershipNotFound
	}
	if !req.State.IsSettable() {
		return nil, cycledomain.ErrInvalidMemberState
	}

	var (
		updated  *cycledomain.Membership
		previous cycledomain.MemberState
	)
	err := db.RunInTx(ctx, s.db, s.timeout(), "cycle.update_member_state", func(tx *gorm.DB) error {
		member, err := s.lockMembership(ctx, tx, membershipID)
		if err != nil {
			return err
		}
		previous = member.State

		now := s.clock.Now().UTC()
		member.State = req.State
		member.UpdatedBy = optionalString(actor)
		member.UpdatedAt = now
		if req.State == cycledomain.MemberStateDelivered {
			member.DeliveredAt = &now
		}
		if req.Notes != nil {
			member.Notes = trimmedOrNil(req.Notes)
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE cycle_memberships
			 SET state = ?, delivered_at = ?, notes = ?, updated_by = ?, updated_at = ?
			 WHERE id = ?`,
			member.State, member.DeliveredAt, member.Notes, member.UpdatedBy, member.UpdatedAt, membershipID,
		).Error; err != nil {
			return db.Storage("cycle.update_member_state", err)
		}
		updated = member
		return nil
	})
	if err != nil {
		return nil, err
	}

	obsmetrics.Dotation().IncMembershipTransition(string(previous), string(req.State))
	s.emitAudit(ctx, actor, "cycle.member_state_updated", "cycle_membership", membershipID, map[string]any{
		"from": string(previous),
		"to":   string(req.State),
	})
	return updated, nil
}

// lockMembership takes the cycle row lock first and the membership lock second,
// the same order order generation uses.
func (s *Service) lockMembership(ctx context.Context, tx *gorm.DB, membershipID snowflake.ID) (*cycledomain.Membership, error) {
	peek, err := findMembership(ctx, tx, membershipID, nil)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, cycledomain.ErrMembershipNotFound
	}
	if _, err := s.lockCycle(ctx, tx, peek.CycleID); err != nil {
		return nil, err
	}

	start := time.Now()
	member, err := findMembership(ctx, tx, membershipID, s.forUpdate)
	obsmetrics.Dotation().ObserveDBLockWait(obsmetrics.LockResourceMembershipID, time.Since(start))
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, cycledomain.ErrMembershipNotFound
	}
	return member, nil
}

func (s *Service) ListMembers(ctx context.Context, cycleID snowflake.ID, filter cycledomain.MemberFilter) (cycledomain.MemberListResponse, error) {
	if cycleID == 0 {
		return cycledomain.MemberListResponse{}, cycledomain.ErrNotFound
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	cycle, err := findCycle(ctx, s.db, cycleID)
	if err != nil {
		return cycledomain.MemberListResponse{}, err
	}
	if cycle == nil {
		return cycledomain.MemberListResponse{}, cycledomain.ErrNotFound
	}

	where := `m.cycle_id = ?`
	args := []any{cycleID}
	if filter.State != "" {
		where += ` AND m.state = ?`
		args = append(args, filter.State)
	}
	if filter.AreaID != 0 {
		where += ` AND m.area_id = ?`
		args = append(args, filter.AreaID)
	}

	var total int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM cycle_memberships m WHERE `+where,
		args...,
	).Scan(&total).Error; err != nil {
		return cycledomain.MemberListResponse{}, db.Storage("cycle.count_members", err)
	}

	page := filter.Pagination.Normalize()
	var items []cycledomain.MemberView
	if err := s.db.WithContext(ctx).Raw(
		`SELECT m.id, m.cycle_id, m.employee_id, m.kit_id, m.state, m.tenure_months_at_assignment,
		        m.salary_at_assignment, m.area_id, m.manual_inclusion, m.manual_reason, m.assigned_at,
		        m.delivered_at, m.updated_by, m.notes, m.updated_at,
		        COALESCE(e.first_name, '') AS first_name, COALESCE(e.last_name, '') AS last_name,
		        COALESCE(a.name, '') AS area_name, COALESCE(k.name, '') AS kit_name
		 FROM cycle_memberships m
		 LEFT JOIN employees e ON e.id = m.employee_id
		 LEFT JOIN areas a ON a.id = m.area_id
		 LEFT JOIN kits k ON k.id = m.kit_id
		 WHERE `+where+`
		 ORDER BY area_name ASC, last_name ASC, first_name ASC, m.id ASC
		 LIMIT ? OFFSET ?`,
		append(args, page.Limit(), page.Offset())...,
	).Scan(&items).Error; err != nil {
		return cycledomain.MemberListResponse{}, db.Storage("cycle.list_members", err)
	}
	if items == nil {
		items = []cycledomain.MemberView{}
	}

	return cycledomain.MemberListResponse{
		Items:    items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) MemberSummary(ctx context.Context, cycleID snowflake.ID) (cycledomain.StateSummary, error) {
	detail, err := s.Get(ctx, cycleID)
	if err != nil {
		return cycledomain.StateSummary{}, err
	}
	return detail.Members, nil
}

func (s *Service) EmployeeHistory(ctx context.Context, employeeID snowflake.ID) ([]cycledomain.HistoryEntry, error) {
	if employeeID == 0 {
		return nil, cycledomain.ErrEmployeeNotFound
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	var rows []cycledomain.HistoryEntry
	if err := s.db.WithContext(ctx).Raw(
		`SELECT m.id AS membership_id, m.cycle_id, c.name AS cycle_name, c.state AS cycle_state,
		        c.delivery_date, m.state, m.kit_id, COALESCE(k.name, '') AS kit_name,
		        m.assigned_at, m.delivered_at
		 FROM cycle_memberships m
		 JOIN cycles c ON c.id = m.cycle_id
		 LEFT JOIN kits k ON k.id = m.kit_id
		 WHERE m.employee_id = ?
		 ORDER BY c.delivery_date DESC, m.assigned_at DESC, m.id DESC`,
		employeeID,
	).Scan(&rows).Error; err != nil {
		return nil, db.Storage("cycle.employee_history", err)
	}
	if rows == nil {
		rows = []cycledomain.HistoryEntry{}
	}
	return rows, nil
}
