package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	eligibilitydomain "github.com/smallbiznis/dotation/internal/eligibility/domain"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	RosterRepo rosterdomain.Repository
	WageSvc    wagedomain.Service
	Clock      clock.Clock         `optional:"true"`
	Policy     config.PolicySource `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	rosterRepo rosterdomain.Repository
	wageSvc    wagedomain.Service
	clock      clock.Clock
	policy     config.PolicySource
	metrics    *obsmetrics.Metrics
}

func NewService(p ServiceParam) eligibilitydomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("eligibility.service"),
		rosterRepo: p.RosterRepo,
		wageSvc:    p.WageSvc,
		clock:      clk,
		policy:     p.Policy,
		metrics:    p.Metrics,
	}
}

func (s *Service) ComputeEligible(ctx context.Context, wage decimal.Decimal) []eligibilitydomain.EligibleEmployee {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	eligible, err := s.ComputeEligibleTx(ctx, s.db, wage)
	if err != nil {
		s.log.Error("failed to compute eligible employees",
			zap.String("wage", wage.StringFixed(2)),
			zap.Error(err),
		)
		return []eligibilitydomain.EligibleEmployee{}
	}
	return eligible
}

func (s *Service) ComputeEligibleTx(ctx context.Context, tx *gorm.DB, wage decimal.Decimal) ([]eligibilitydomain.EligibleEmployee, error) {
	roster, err := s.rosterRepo.ListActive(ctx, tx)
	if err != nil {
		return nil, db.Storage("eligibility.roster", err)
	}

	policy := config.PolicyOrDefault(s.policy)
	rules := eligibilitydomain.Rules{
		MinTenureMonths: policy.MinTenureMonths,
		MaxWageMultiple: policy.MaxWageMultiple,
	}
	now := s.clock.Now()

	eligible := make([]eligibilitydomain.EligibleEmployee, 0, len(roster))
	rejected := make(map[eligibilitydomain.Outcome]int)
	for _, entry := range roster {
		candidate, outcome := eligibilitydomain.Classify(entry, wage, rules, now)
		if outcome != eligibilitydomain.OutcomeEligible {
			rejected[outcome]++
			continue
		}
		eligible = append(eligible, candidate)
	}

	s.metrics.RecordEligibility(ctx, string(eligibilitydomain.OutcomeEligible), len(eligible))
	for outcome, count := range rejected {
		s.metrics.RecordEligibility(ctx, string(outcome), count)
	}
	s.log.Debug("eligibility computed",
		zap.String("wage", wage.StringFixed(2)),
		zap.Int("roster", len(roster)),
		zap.Int("eligible", len(eligible)),
	)
	return eligible, nil
}

func (s *Service) Preview(ctx context.Context, deliveryDate time.Time) (*eligibilitydomain.Preview, error) {
	deliveryDate = clock.DateOf(deliveryDate)
	year := deliveryDate.Year()

	threshold, err := s.wageSvc.Get(ctx, year)
	if err != nil {
		if errors.Is(err, wagedomain.ErrNotFound) {
			return nil, wagedomain.ErrNoWageThreshold
		}
		return nil, err
	}

	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	eligible, err := s.ComputeEligibleTx(ctx, s.db, threshold.MonthlyValue)
	if err != nil {
		return nil, err
	}

	multiple := config.PolicyOrDefault(s.policy).MaxWageMultiple
	preview := &eligibilitydomain.Preview{
		DeliveryDate:  deliveryDate,
		Year:          year,
		WageThreshold: threshold.MonthlyValue,
		MaxSalary:     threshold.MonthlyValue.Mul(decimal.NewFromInt(int64(multiple))),
		Total:         len(eligible),
		Areas:         groupByArea(eligible),
	}
	return preview, nil
}

// groupByArea keeps the roster order, which is already sorted by area name.
func groupByArea(eligible []eligibilitydomain.EligibleEmployee) []eligibilitydomain.AreaGroup {
	groups := make([]eligibilitydomain.AreaGroup, 0)
	index := make(map[string]int)
	for _, emp := range eligible {
		key := emp.AreaID.String()
		pos, ok := index[key]
		if !ok {
			groups = append(groups, eligibilitydomain.AreaGroup{
				AreaID:   emp.AreaID,
				AreaName: emp.AreaName,
			})
			pos = len(groups) - 1
			index[key] = pos
		}
		groups[pos].Employees = append(groups[pos].Employees, emp)
		groups[pos].Count++
	}
	return groups
}

func (s *Service) timeout() time.Duration {
	return config.PolicyOrDefault(s.policy).QueryTimeout
}
