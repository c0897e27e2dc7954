package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"github.com/smallbiznis/dotation/pkg/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("dotation/order")

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	KitSvc     kitdomain.Service
	CatalogSvc catalogdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	Policy     config.PolicySource `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	kitSvc     kitdomain.Service
	catalogSvc catalogdomain.Service
	auditSvc   auditdomain.Service
	clock      clock.Clock
	policy     config.PolicySource
	metrics    *obsmetrics.Metrics
	orderrepo  repository.Repository[orderdomain.PurchaseOrder]
	forUpdate  func(tx *gorm.DB, query string) string

	// placeholders caches committed placeholder sizes by scope.
	placeholders sync.Map
	entropyMu    sync.Mutex
	entropy      *ulid.MonotonicEntropy
}

type placeholderScope struct {
	label    string
	genderID int64
}

// processedMember is a processed membership joined with its employee.
type processedMember struct {
	MembershipID    snowflake.ID
	EmployeeID      snowflake.ID
	KitID           *snowflake.ID
	AreaID          snowflake.ID
	ManualInclusion bool
	FirstName       string
	LastName        string
}

func NewService(p ServiceParam) orderdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		kitSvc:     p.KitSvc,
		catalogSvc: p.CatalogSvc,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		policy:     p.Policy,
		metrics:    p.Metrics,
		orderrepo:  repository.ProvideStore[orderdomain.PurchaseOrder](p.DB),
		forUpdate:  db.ForUpdate,
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Service) Generate(ctx context.Context, cycleID snowflake.ID, actor string) (*orderdomain.GeneratedOrder, error) {
	ctx, span := tracer.Start(ctx, "order.generate")
	defer span.End()
	span.SetAttributes(attribute.String("dotation.cycle_id", cycleID.String()))

	started := time.Now()
	policy := config.PolicyOrDefault(s.policy)
	scope := placeholderScope{label: policy.PlaceholderSizeLabel, genderID: policy.PlaceholderGenderID}

	var (
		generated      orderdomain.GeneratedOrder
		newPlaceholder *catalogdomain.Size
	)
	err := db.RunInTx(ctx, s.db, s.timeout(), "order.generate", func(tx *gorm.DB) error {
		cycle, err := s.lockCycle(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		if cycle == nil || cycle.State != cycledomain.CycleStateActive ||
			cycle.WindowStatusAt(clock.Today(s.clock)) != cycledomain.WindowOpen {
			return orderdomain.ErrCycleNotActive
		}

		members, err := loadProcessedMembers(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return orderdomain.ErrNoProcessedEmployees
		}

		kits, err := s.resolveKits(ctx, tx, members)
		if err != nil {
			return err
		}

		kitIDs := make([]snowflake.ID, 0, len(kits))
		seenKits := make(map[snowflake.ID]struct{}, len(kits))
		employeeIDs := make([]snowflake.ID, 0, len(members))
		for _, m := range members {
			employeeIDs = append(employeeIDs, m.EmployeeID)
			kitID := kits[m.MembershipID]
			if _, ok := seenKits[kitID]; !ok {
				seenKits[kitID] = struct{}{}
				kitIDs = append(kitIDs, kitID)
			}
		}

		linesByKit, err := s.kitSvc.LinesForKits(ctx, tx, kitIDs)
		if err != nil {
			return err
		}
		sizes, err := s.catalogSvc.SelectedSizes(ctx, tx, employeeIDs)
		if err != nil {
			return err
		}
		if pending := pendingSizes(members, kits, linesByKit, sizes); len(pending) > 0 {
			return &orderdomain.SizesPendingError{Pending: pending}
		}

		var placeholder *catalogdomain.Size
		contributions := make([]orderdomain.Contribution, 0)
		var totalItems int64
		manual := 0
		for _, m := range members {
			if m.ManualInclusion {
				manual++
			}
			for _, line := range linesByKit[kits[m.MembershipID]] {
				contribution := orderdomain.Contribution{
					ArticleID:   line.ArticleID,
					ArticleName: line.ArticleName,
					UnitPrice:   line.UnitPrice,
					Quantity:    line.EffectiveQuantity(),
				}
				if line.RequiresSize {
					selected := sizes[catalogdomain.SizeKey{EmployeeID: m.EmployeeID, ArticleID: line.ArticleID}]
					contribution.SizeID = selected.SizeID
					contribution.SizeLabel = selected.Label
				} else {
					if placeholder == nil {
						size, created, err := s.placeholderSize(ctx, tx, scope)
						if err != nil {
							return err
						}
						placeholder = size
						if created {
							newPlaceholder = size
						}
					}
					contribution.SizeID = placeholder.ID
					contribution.SizeLabel = placeholder.Label
				}
				totalItems += contribution.Quantity
				contributions = append(contributions, contribution)
			}
		}

		aggregated, total := orderdomain.Aggregate(contributions)
		if len(aggregated) == 0 {
			return orderdomain.ErrNoKitLines
		}
		now := s.clock.Now().UTC()
		order := orderdomain.PurchaseOrder{
			ID:          s.genID.Generate(),
			CycleID:     cycleID,
			Reference:   s.newReference(now),
			OrderDate:   clock.DateOf(now),
			State:       orderdomain.OrderStateSent,
			TotalAmount: total,
			Notes:       optionalString(fmt.Sprintf("Generated automatically for cycle %s", cycle.Name)),
			CreatedBy:   optionalString(actor),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			return db.Storage("order.insert", err)
		}

		rows := make([]orderdomain.PurchaseOrderLine, 0, len(aggregated))
		views := make([]orderdomain.LineView, 0, len(aggregated))
		for _, line := range aggregated {
			row := orderdomain.PurchaseOrderLine{
				ID:                s.genID.Generate(),
				OrderID:           order.ID,
				ArticleID:         line.ArticleID,
				SizeID:            line.SizeID,
				QuantityRequested: line.Quantity,
				UnitPrice:         line.UnitPrice,
				Subtotal:          line.Subtotal,
			}
			rows = append(rows, row)
			views = append(views, orderdomain.LineView{
				PurchaseOrderLine: row,
				ArticleName:       line.ArticleName,
				SizeLabel:         line.SizeLabel,
			})
		}
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
			return db.Storage("order.insert_lines", err)
		}

		generated = orderdomain.GeneratedOrder{
			Order: order,
			Lines: views,
			Metadata: orderdomain.Metadata{
				EmployeesConsidered: len(members),
				ManualInclusions:    manual,
				TotalItems:          totalItems,
			},
		}
		return nil
	})
	if err != nil {
		obsmetrics.Dotation().IncOrderFailure(failureKind(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, failureKind(err))
		s.log.Warn("order generation rejected",
			zap.String("cycle_id", cycleID.String()),
			zap.String("kind", failureKind(err)),
			zap.Error(err),
		)
		return nil, err
	}

	if newPlaceholder != nil {
		s.placeholders.Store(scope, *newPlaceholder)
	}

	obsmetrics.Dotation().RecordOrderGenerated(generated.Metadata.TotalItems, time.Since(started))
	span.SetAttributes(
		attribute.String("dotation.order_id", generated.Order.ID.String()),
		attribute.Int("dotation.order_lines", len(generated.Lines)),
	)
	s.log.Info("purchase order generated",
		zap.String("cycle_id", cycleID.String()),
		zap.String("order_id", generated.Order.ID.String()),
		zap.String("reference", generated.Order.Reference),
		zap.Int("lines", len(generated.Lines)),
		zap.String("total", generated.Order.TotalAmount.StringFixed(2)),
	)
	s.emitAudit(ctx, actor, "order.generated", generated.Order.ID, map[string]any{
		"cycle_id":             cycleID.String(),
		"reference":            generated.Order.Reference,
		"total_amount":         generated.Order.TotalAmount.StringFixed(2),
		"lines":                len(generated.Lines),
		"employees_considered": generated.Metadata.EmployeesConsidered,
	})
	return &generated, nil
}

// resolveKits maps membership id to kit id, failing with every unresolved member.
func (s *Service) resolveKits(ctx context.Context, tx *gorm.DB, members []processedMember) (map[snowflake.ID]snowflake.ID, error) {
	index, err := s.kitSvc.LoadIndex(ctx, tx)
	if err != nil {
		return nil, err
	}

	kits := make(map[snowflake.ID]snowflake.ID, len(members))
	var missing []orderdomain.EmployeeRef
	for _, m := range members {
		resolution := index.Resolve(kitdomain.MembershipRef{KitID: m.KitID, AreaID: m.AreaID})
		if !resolution.IsResolved() {
			missing = append(missing, orderdomain.EmployeeRef{
				EmployeeID: m.EmployeeID,
				FirstName:  m.FirstName,
				LastName:   m.LastName,
				AreaID:     m.AreaID,
			})
			continue
		}
		kits[m.MembershipID] = resolution.Kit.ID
	}
	if len(missing) > 0 {
		return nil, &orderdomain.MissingKitError{Employees: missing}
	}
	return kits, nil
}

// placeholderSize serves the committed cache first. created is true when the
// size came from the database in this transaction and must be cached after commit.
func (s *Service) placeholderSize(ctx context.Context, tx *gorm.DB, scope placeholderScope) (*catalogdomain.Size, bool, error) {
	if cached, ok := s.placeholders.Load(scope); ok {
		size := cached.(catalogdomain.Size)
		return &size, false, nil
	}
	size, err := s.catalogSvc.EnsurePlaceholderSize(ctx, tx, scope.label, scope.genderID)
	if err != nil {
		return nil, false, err
	}
	return size, true, nil
}

func (s *Service) newReference(now time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

func pendingSizes(
	members []processedMember,
	kits map[snowflake.ID]snowflake.ID,
	linesByKit map[snowflake.ID][]kitdomain.KitLineView,
	sizes map[catalogdomain.SizeKey]catalogdomain.SelectedSize,
) []orderdomain.PendingSize {
	var pending []orderdomain.PendingSize
	seen := make(map[catalogdomain.SizeKey]struct{})
	for _, m := range members {
		kitID, ok := kits[m.MembershipID]
		if !ok {
			continue
		}
		for _, line := range linesByKit[kitID] {
			if !line.RequiresSize {
				continue
			}
			key := catalogdomain.SizeKey{EmployeeID: m.EmployeeID, ArticleID: line.ArticleID}
			if _, ok := sizes[key]; ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			pending = append(pending, orderdomain.PendingSize{
				EmployeeID:  m.EmployeeID,
				FirstName:   m.FirstName,
				LastName:    m.LastName,
				ArticleID:   line.ArticleID,
				ArticleName: line.ArticleName,
			})
		}
	}
	return pending
}

// failureKind is the upper-case error kind used for metrics and logs.
func failureKind(err error) string {
	for _, sentinel := range []error{
		orderdomain.ErrCycleNotActive,
		orderdomain.ErrNoProcessedEmployees,
		orderdomain.ErrMissingKit,
		orderdomain.ErrSizesPending,
		orderdomain.ErrNoKitLines,
		db.ErrStorageUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return strings.ToUpper(sentinel.Error())
		}
	}
	return "INTERNAL"
}

func (s *Service) lockCycle(ctx context.Context, tx *gorm.DB, cycleID snowflake.ID) (*cycledomain.Cycle, error) {
	start := time.Now()
	var row cycledomain.Cycle
	err := tx.WithContext(ctx).Raw(
		s.forUpdate(tx, `SELECT id, name, state, delivery_date, window_start, window_end FROM cycles WHERE id = ?`),
		cycleID,
	).Scan(&row).Error
	obsmetrics.Dotation().ObserveDBLockWait(obsmetrics.LockResourceCycleByID, time.Since(start))
	if err != nil {
		return nil, db.Storage("order.lock_cycle", err)
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func loadProcessedMembers(ctx context.Context, tx *gorm.DB, cycleID snowflake.ID) ([]processedMember, error) {
	var rows []processedMember
	err := tx.WithContext(ctx).Raw(
		`SELECT m.id AS membership_id, m.employee_id, m.kit_id, m.area_id, m.manual_inclusion,
		        COALESCE(e.first_name, '') AS first_name, COALESCE(e.last_name, '') AS last_name
		 FROM cycle_memberships m
		 LEFT JOIN employees e ON e.id = m.employee_id
		 WHERE m.cycle_id = ? AND m.state = ?
		 ORDER BY m.id ASC`,
		cycleID, cycledomain.MemberStateProcessed,
	).Scan(&rows).Error
	if err != nil {
		return nil, db.Storage("order.load_members", err)
	}
	return rows, nil
}

func (s *Service) emitAudit(ctx context.Context, actor, action string, orderID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := orderID.String()
	if err := s.auditSvc.AuditLog(ctx, actor, action, "purchase_order", &id, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) timeout() time.Duration {
	return config.PolicyOrDefault(s.policy).QueryTimeout
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
