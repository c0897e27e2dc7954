package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	"github.com/smallbiznis/dotation/internal/cache"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"github.com/smallbiznis/dotation/pkg/db/option"
	"github.com/smallbiznis/dotation/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cache    cache.WageThresholdCache `optional:"true"`
	AuditSvc auditdomain.Service      `optional:"true"`
	Clock    clock.Clock              `optional:"true"`
	Policy   config.PolicySource      `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	wagerepo repository.Repository[wagedomain.WageThreshold]
	cache    cache.WageThresholdCache
	auditSvc auditdomain.Service
	clock    clock.Clock
	policy   config.PolicySource
}

func NewService(p ServiceParam) wagedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("wagethreshold.service"),
		wagerepo: repository.ProvideStore[wagedomain.WageThreshold](p.DB),
		cache:    p.Cache,
		auditSvc: p.AuditSvc,
		clock:    clk,
		policy:   p.Policy,
	}
}

func (s *Service) Get(ctx context.Context, year int) (*wagedomain.WageThreshold, error) {
	if err := wagedomain.ValidateYear(year); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, year); ok {
			return cached, nil
		}
	}

	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	row, err := s.findByYear(ctx, nil, year)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, wagedomain.ErrNotFound
	}
	if s.cache != nil {
		s.cache.Set(ctx, *row)
	}
	return row, nil
}

func (s *Service) Upsert(ctx context.Context, req wagedomain.UpsertRequest, actor string) (*wagedomain.WageThreshold, error) {
	if err := wagedomain.ValidateYear(req.Year); err != nil {
		return nil, err
	}
	if !req.MonthlyValue.IsPositive() {
		return nil, wagedomain.ErrInvalidValue
	}

	now := s.clock.Now().UTC()
	entry := wagedomain.WageThreshold{
		Year:         req.Year,
		MonthlyValue: req.MonthlyValue.Round(2),
		Note:         trimmedOrNil(req.Note),
		UpdatedBy:    trimmedOrNil(&actor),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var stored *wagedomain.WageThreshold
	err := db.RunInTx(ctx, s.db, s.timeout(), "wagethreshold.upsert", func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "year"}},
			DoUpdates: clause.AssignmentColumns([]string{"monthly_value", "note", "updated_by", "updated_at"}),
		}).Create(&entry).Error; err != nil {
			return db.Storage("wagethreshold.upsert", err)
		}
		row, err := s.findByYear(ctx, tx, req.Year)
		if err != nil {
			return err
		}
		stored = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, req.Year)
	}
	s.log.Info("wage threshold upserted",
		zap.Int("year", req.Year),
		zap.String("monthly_value", entry.MonthlyValue.StringFixed(2)),
	)
	s.emitAudit(ctx, actor, "wage_threshold.upserted", req.Year, map[string]any{
		"monthly_value": entry.MonthlyValue.StringFixed(2),
	})
	return stored, nil
}

func (s *Service) List(ctx context.Context) ([]wagedomain.WageThreshold, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	items, err := s.wagerepo.Find(ctx, nil,
		option.WithSortBy(option.WithQuerySortBy("year", "desc", map[string]bool{"year": true})),
	)
	if err != nil {
		return nil, db.Storage("wagethreshold.list", err)
	}
	rows := make([]wagedomain.WageThreshold, 0, len(items))
	for _, item := range items {
		if item != nil {
			rows = append(rows, *item)
		}
	}
	return rows, nil
}

func (s *Service) Delete(ctx context.Context, year int, actor string) error {
	if err := wagedomain.ValidateYear(year); err != nil {
		return err
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	err := db.RunInTx(ctx, s.db, s.timeout(), "wagethreshold.delete", func(tx *gorm.DB) error {
		row, err := s.findByYear(ctx, tx, year)
		if err != nil {
			return err
		}
		if row == nil {
			return wagedomain.ErrNotFound
		}

		var inUse int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM cycles WHERE delivery_date >= ? AND delivery_date < ?`,
			start, end,
		).Scan(&inUse).Error; err != nil {
			return db.Storage("wagethreshold.count_cycles", err)
		}
		if inUse > 0 {
			return wagedomain.ErrThresholdInUse
		}

		if err := tx.WithContext(ctx).Exec(`DELETE FROM wage_thresholds WHERE year = ?`, year).Error; err != nil {
			return db.Storage("wagethreshold.delete", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, year)
	}
	s.emitAudit(ctx, actor, "wage_threshold.deleted", year, nil)
	return nil
}

func (s *Service) EligibleRange(ctx context.Context, year int) (*wagedomain.Range, error) {
	threshold, err := s.Get(ctx, year)
	if err != nil {
		return nil, err
	}
	multiple := config.PolicyOrDefault(s.policy).MaxWageMultiple
	return &wagedomain.Range{
		Year:    year,
		Minimum: threshold.MonthlyValue,
		Maximum: threshold.MonthlyValue.Mul(decimal.NewFromInt(int64(multiple))),
	}, nil
}

func (s *Service) emitAudit(ctx context.Context, actor, action string, year int, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := strconv.Itoa(year)
	if err := s.auditSvc.AuditLog(ctx, actor, action, "wage_threshold", &targetID, metadata); err != nil {
		s.log.Warn("failed to audit wage threshold change", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) timeout() time.Duration {
	return config.PolicyOrDefault(s.policy).QueryTimeout
}

// findByYear reads through tx when given, otherwise through the service pool.
func (s *Service) findByYear(ctx context.Context, tx *gorm.DB, year int) (*wagedomain.WageThreshold, error) {
	row, err := s.wagerepo.WithTrx(tx).FindOne(ctx, &wagedomain.WageThreshold{Year: year})
	if err != nil {
		return nil, db.Storage("wagethreshold.find", err)
	}
	return row, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
