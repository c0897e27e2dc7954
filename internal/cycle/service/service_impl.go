package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	eligibilitydomain "github.com/smallbiznis/dotation/internal/eligibility/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const membershipBatchSize = 500

var tracer = otel.Tracer("dotation/cycle")

// lockClause turns a single-row SELECT into a locking read.
type lockClause func(tx *gorm.DB, query string) string

type ServiceParam struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	WageSvc        wagedomain.Service
	EligibilitySvc eligibilitydomain.Service
	KitSvc         kitdomain.Service
	RosterRepo     rosterdomain.Repository
	AuditSvc       auditdomain.Service `optional:"true"`
	Clock          clock.Clock         `optional:"true"`
	Policy         config.PolicySource `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	wageSvc        wagedomain.Service
	eligibilitySvc eligibilitydomain.Service
	kitSvc         kitdomain.Service
	rosterRepo     rosterdomain.Repository
	auditSvc       auditdomain.Service
	clock          clock.Clock
	policy         config.PolicySource
	forUpdate      lockClause
}

func NewService(p ServiceParam) cycledomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("cycle.service"),
		genID:          p.GenID,
		wageSvc:        p.WageSvc,
		eligibilitySvc: p.EligibilitySvc,
		kitSvc:         p.KitSvc,
		rosterRepo:     p.RosterRepo,
		auditSvc:       p.AuditSvc,
		clock:          clk,
		policy:         p.Policy,
		forUpdate:      db.ForUpdate,
	}
}

func (s *Service) Create(ctx context.Context, req cycledomain.CreateRequest, actor string) (*cycledomain.CreateResult, error) {
	ctx, span := tracer.Start(ctx, "cycle.create")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, cycledomain.ErrInvalidName
	}
	if req.DeliveryDate.IsZero() {
		return nil, cycledomain.ErrInvalidDeliveryDate
	}

	active, err := s.GetActive(ctx)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if active != nil {
		return nil, cycledomain.ErrConflictingActiveCycle
	}

	deliveryDate := clock.DateOf(req.DeliveryDate)
	windowStart, windowEnd := s.window(deliveryDate)
	today := clock.Today(s.clock)
	if cycledomain.StatusOfWindow(windowStart, windowEnd, today) != cycledomain.WindowOpen {
		return nil, cycledomain.ErrOutsideCreationWindow
	}

	threshold, err := s.wageSvc.Get(ctx, deliveryDate.Year())
	if err != nil {
		if errors.Is(err, wagedomain.ErrNotFound) {
			return nil, wagedomain.ErrNoWageThreshold
		}
		return nil, recordSpanError(span, err)
	}

	now := s.clock.Now().UTC()
	cycle := cycledomain.Cycle{
		ID:                   s.genID.Generate(),
		Name:                 name,
		Slug:                 slug.Make(name + " " + deliveryDate.Format("2006-01-02")),
		DeliveryDate:         deliveryDate,
		WindowStart:          windowStart,
		WindowEnd:            windowEnd,
		State:                cycledomain.CycleStateActive,
		AppliedWageThreshold: threshold.MonthlyValue,
		CreatedBy:            optionalString(actor),
		Notes:                trimmedOrNil(req.Notes),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	span.SetAttributes(
		attribute.String("dotation.cycle_id", cycle.ID.String()),
		attribute.Int("dotation.year", deliveryDate.Year()),
	)

	var computed int
	var inserted int64
	err = db.RunInTx(ctx, s.db, s.timeout(), "cycle.create", func(tx *gorm.DB) error {
		existing, err := findActive(ctx, tx)
		if err != nil {
			return err
		}
		if existing != nil {
			return cycledomain.ErrConflictingActiveCycle
		}

		eligible, err := s.eligibilitySvc.ComputeEligibleTx(ctx, tx, threshold.MonthlyValue)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			return cycledomain.ErrNoEligibleEmployees
		}
		computed = len(eligible)

		if err := tx.WithContext(ctx).Create(&cycle).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return cycledomain.ErrConflictingActiveCycle
			}
			return db.Storage("cycle.insert", err)
		}

		index, err := s.kitSvc.LoadIndex(ctx, tx)
		if err != nil {
			return err
		}
		rows := s.membershipsFor(cycle.ID, eligible, index, now)
		result := tx.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "cycle_id"}, {Name: "employee_id"}},
				DoNothing: true,
			}).
			CreateInBatches(&rows, membershipBatchSize)
		if result.Error != nil {
			return db.Storage("cycle.insert_memberships", result.Error)
		}
		inserted = result.RowsAffected

		cycle.EligibleCount = int(inserted)
		if err := tx.WithContext(ctx).Exec(
			`UPDATE cycles SET eligible_count = ? WHERE id = ?`,
			cycle.EligibleCount, cycle.ID,
		).Error; err != nil {
			return db.Storage("cycle.update_count", err)
		}
		return nil
	})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	obsmetrics.Dotation().IncCycleCreated()
	s.log.Info("cycle created",
		zap.String("cycle_id", cycle.ID.String()),
		zap.String("slug", cycle.Slug),
		zap.Int("computed_eligible", computed),
		zap.Int64("inserted", inserted),
	)
	s.emitAudit(ctx, actor, "cycle.created", "cycle", cycle.ID, map[string]any{
		"name":              cycle.Name,
		"delivery_date":     cycle.DeliveryDate.Format("2006-01-02"),
		"wage_threshold":    cycle.AppliedWageThreshold.StringFixed(2),
		"computed_eligible": computed,
		"inserted":          inserted,
	})

	return &cycledomain.CreateResult{
		Cycle:            cycle,
		ComputedEligible: computed,
		Inserted:         inserted,
	}, nil
}

func (s *Service) membershipsFor(cycleID snowflake.ID, eligible []eligibilitydomain.EligibleEmployee, index *kitdomain.Index, now time.Time) []cycledomain.Membership {
	rows := make([]cycledomain.Membership, 0, len(eligible))
	for _, emp := range eligible {
		row := cycledomain.Membership{
			ID:                       s.genID.Generate(),
			CycleID:                  cycleID,
			EmployeeID:               emp.EmployeeID,
			State:                    cycledomain.MemberStateProcessed,
			TenureMonthsAtAssignment: emp.TenureMonths,
			SalaryAtAssignment:       emp.Salary,
			AreaID:                   emp.AreaID,
			AssignedAt:               now,
			UpdatedAt:                now,
		}
		if kitID, ok := index.ActiveKitForArea(emp.AreaID); ok {
			id := kitID
			row.KitID = &id
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Service) Close(ctx context.Context, cycleID snowflake.ID, actor string) (*cycledomain.Cycle, error) {
	if cycleID == 0 {
		return nil, cycledomain.ErrNotFound
	}

	var closed *cycledomain.Cycle
	transitioned := false
	err := db.RunInTx(ctx, s.db, s.timeout(), "cycle.close", func(tx *gorm.DB) error {
		cycle, err := s.lockCycle(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		if cycle == nil {
			return cycledomain.ErrNotFound
		}
		if cycle.State == cycledomain.CycleStateClosed {
			closed = cycle
			return nil
		}

		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE cycles SET state = ?, closed_at = ?, updated_at = ? WHERE id = ?`,
			cycledomain.CycleStateClosed, now, now, cycleID,
		).Error; err != nil {
			return db.Storage("cycle.close", err)
		}
		cycle.State = cycledomain.CycleStateClosed
		cycle.ClosedAt = &now
		cycle.UpdatedAt = now
		closed = cycle
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		obsmetrics.Dotation().IncCycleTransition(string(cycledomain.CycleStateActive), string(cycledomain.CycleStateClosed))
		s.log.Info("cycle closed", zap.String("cycle_id", cycleID.String()))
		s.emitAudit(ctx, actor, "cycle.closed", "cycle", cycleID, nil)
	}
	return closed, nil
}

func (s *Service) GetActive(ctx context.Context) (*cycledomain.Cycle, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()
	return findActive(ctx, s.db)
}

func (s *Service) Get(ctx context.Context, cycleID snowflake.ID) (*cycledomain.CycleDetail, error) {
	if cycleID == 0 {
		return nil, cycledomain.ErrNotFound
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	cycle, err := findCycle(ctx, s.db, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, cycledomain.ErrNotFound
	}

	summaries, err := summariesFor(ctx, s.db, []snowflake.ID{cycleID})
	if err != nil {
		return nil, err
	}
	return &cycledomain.CycleDetail{
		Cycle:        *cycle,
		WindowStatus: cycle.WindowStatusAt(clock.Today(s.clock)),
		Members:      summaries[cycleID],
	}, nil
}

func (s *Service) List(ctx context.Context, req cycledomain.ListRequest) (cycledomain.ListResponse, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	page := req.Pagination.Normalize()
	query := s.db.WithContext(ctx).Model(&cycledomain.Cycle{})
	if req.State != "" {
		query = query.Where("state = ?", req.State)
	}
	if req.Year > 0 {
		start := time.Date(req.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		query = query.Where("delivery_date >= ? AND delivery_date < ?", start, start.AddDate(1, 0, 0))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return cycledomain.ListResponse{}, db.Storage("cycle.count", err)
	}

	var cycles []cycledomain.Cycle
	if err := query.
		Order("delivery_date DESC").
		Order("id DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Find(&cycles).Error; err != nil {
		return cycledomain.ListResponse{}, db.Storage("cycle.list", err)
	}

	ids := make([]snowflake.ID, 0, len(cycles))
	for _, c := range cycles {
		ids = append(ids, c.ID)
	}
	summaries, err := summariesFor(ctx, s.db, ids)
	if err != nil {
		return cycledomain.ListResponse{}, err
	}

	today := clock.Today(s.clock)
	items := make([]cycledomain.CycleListItem, 0, len(cycles))
	for _, c := range cycles {
		items = append(items, cycledomain.CycleListItem{
			Cycle:        c,
			WindowStatus: c.WindowStatusAt(today),
			Members:      summaries[c.ID],
		})
	}
	return cycledomain.ListResponse{
		Items:    items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) Delete(ctx context.Context, cycleID snowflake.ID, actor string) error {
	if cycleID == 0 {
		return cycledomain.ErrNotFound
	}

	err := db.RunInTx(ctx, s.db, s.timeout(), "cycle.delete", func(tx *gorm.DB) error {
		cycle, err := s.lockCycle(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		if cycle == nil {
			return cycledomain.ErrNotFound
		}

		var dependents int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT (SELECT COUNT(1) FROM cycle_memberships WHERE cycle_id = ?)
			      + (SELECT COUNT(1) FROM purchase_orders WHERE cycle_id = ?)`,
			cycleID, cycleID,
		).Scan(&dependents).Error; err != nil {
			return db.Storage("cycle.count_dependents", err)
		}
		if dependents > 0 {
			return cycledomain.ErrCycleHasMembers
		}

		if err := tx.WithContext(ctx).Exec(`DELETE FROM cycles WHERE id = ?`, cycleID).Error; err != nil {
			return db.Storage("cycle.delete", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("cycle deleted", zap.String("cycle_id", cycleID.String()))
	s.emitAudit(ctx, actor, "cycle.deleted", "cycle", cycleID, nil)
	return nil
}

func (s *Service) ValidateWindow(ctx context.Context, deliveryDate time.Time) cycledomain.WindowCheck {
	_, span := tracer.Start(ctx, "cycle.validate_window")
	defer span.End()

	deliveryDate = clock.DateOf(deliveryDate)
	start, end := s.window(deliveryDate)
	today := clock.Today(s.clock)
	status := cycledomain.StatusOfWindow(start, end, today)

	remaining := 0
	if status != cycledomain.WindowElapsed {
		remaining = int(end.Sub(today).Hours() / 24)
	}
	span.SetAttributes(
		attribute.String("dotation.delivery_date", deliveryDate.Format(time.DateOnly)),
		attribute.String("dotation.window_status", string(status)),
	)
	return cycledomain.WindowCheck{
		CanCreate:     status == cycledomain.WindowOpen,
		Status:        status,
		WindowStart:   start,
		WindowEnd:     end,
		DaysRemaining: remaining,
	}
}

func (s *Service) Stats(ctx context.Context) (cycledomain.Stats, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	var row struct {
		TotalCycles          int64
		TotalMemberships     int64
		DeliveredMemberships int64
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT (SELECT COUNT(1) FROM cycles) AS total_cycles,
		        (SELECT COUNT(1) FROM cycle_memberships) AS total_memberships,
		        (SELECT COUNT(1) FROM cycle_memberships WHERE state = ?) AS delivered_memberships`,
		cycledomain.MemberStateDelivered,
	).Scan(&row).Error; err != nil {
		return cycledomain.Stats{}, db.Storage("cycle.stats", err)
	}

	stats := cycledomain.Stats{
		TotalCycles:          row.TotalCycles,
		TotalMemberships:     row.TotalMemberships,
		DeliveredMemberships: row.DeliveredMemberships,
	}
	active, err := findActive(ctx, s.db)
	if err != nil {
		return cycledomain.Stats{}, err
	}
	if active != nil {
		id := active.ID
		stats.ActiveCycleID = &id
	}
	return stats, nil
}

// window spans the configured number of months up to the delivery date.
func (s *Service) window(deliveryDate time.Time) (time.Time, time.Time) {
	months := config.PolicyOrDefault(s.policy).CreationWindowMonths
	return deliveryDate.AddDate(0, -months, 0), deliveryDate
}

func (s *Service) lockCycle(ctx context.Context, tx *gorm.DB, cycleID snowflake.ID) (*cycledomain.Cycle, error) {
	start := time.Now()
	var row cycledomain.Cycle
	err := tx.WithContext(ctx).Raw(
		s.forUpdate(tx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`),
		cycleID,
	).Scan(&row).Error
	obsmetrics.Dotation().ObserveDBLockWait(obsmetrics.LockResourceCycleByID, time.Since(start))
	if err != nil {
		return nil, db.Storage("cycle.lock", err)
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) emitAudit(ctx context.Context, actor, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, actor, action, targetType, &id, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) timeout() time.Duration {
	return config.PolicyOrDefault(s.policy).QueryTimeout
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
