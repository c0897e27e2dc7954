package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	"github.com/smallbiznis/dotation/pkg/db"
	"github.com/smallbiznis/dotation/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
	Policy   config.PolicySource `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	kitrepo  repository.Repository[kitdomain.Kit]
	auditSvc auditdomain.Service
	clock    clock.Clock
	policy   config.PolicySource
}

func NewService(p ServiceParam) kitdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("kit.service"),
		kitrepo:  repository.ProvideStore[kitdomain.Kit](p.DB),
		auditSvc: p.AuditSvc,
		clock:    clk,
		policy:   p.Policy,
	}
}

func (s *Service) ResolveKit(ctx context.Context, ref kitdomain.MembershipRef) (kitdomain.Resolution, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	if ref.KitID != nil && *ref.KitID != 0 {
		kit, err := s.findKit(ctx, *ref.KitID)
		if err != nil {
			return kitdomain.Resolution{}, err
		}
		if kit == nil {
			return kitdomain.Resolution{Status: kitdomain.Unresolved}, nil
		}
		return kitdomain.Resolution{Status: kitdomain.Resolved, Source: kitdomain.SourceExplicit, Kit: kit}, nil
	}

	if ref.AreaID == 0 {
		return kitdomain.Resolution{Status: kitdomain.Unresolved}, nil
	}
	// First orders by id, so the oldest active kit of the area wins.
	kit, err := s.kitrepo.FindOne(ctx, &kitdomain.Kit{AreaID: ref.AreaID, Active: true})
	if err != nil {
		return kitdomain.Resolution{}, db.Storage("kit.resolve_by_area", err)
	}
	if kit == nil {
		return kitdomain.Resolution{Status: kitdomain.Unresolved}, nil
	}
	return kitdomain.Resolution{Status: kitdomain.Resolved, Source: kitdomain.SourceArea, Kit: kit}, nil
}

func (s *Service) KitLines(ctx context.Context, kitID snowflake.ID) ([]kitdomain.KitLineView, error) {
	if kitID == 0 {
		return nil, kitdomain.ErrInvalidKit
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	kit, err := s.findKit(ctx, kitID)
	if err != nil {
		return nil, err
	}
	if kit == nil {
		return nil, kitdomain.ErrKitNotFound
	}

	lines, err := s.LinesForKits(ctx, s.db, []snowflake.ID{kitID})
	if err != nil {
		return nil, err
	}
	return lines[kitID], nil
}

func (s *Service) BackfillMissingKits(ctx context.Context, cycleID snowflake.ID, actor string) (int64, error) {
	if cycleID == 0 {
		return 0, kitdomain.ErrInvalidCycle
	}

	now := s.clock.Now().UTC()
	var updated int64
	err := db.RunInTx(ctx, s.db, s.timeout(), "kit.backfill", func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE cycle_memberships
			 SET kit_id = (
			     SELECT MIN(k.id) FROM kits k
			     WHERE k.area_id = cycle_memberships.area_id AND k.active = ?
			 ),
			     updated_at = ?
			 WHERE cycle_id = ?
			   AND kit_id IS NULL
			   AND EXISTS (
			     SELECT 1 FROM kits k
			     WHERE k.area_id = cycle_memberships.area_id AND k.active = ?
			   )`,
			true, now, cycleID, true,
		)
		if result.Error != nil {
			return db.Storage("kit.backfill", result.Error)
		}
		updated = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	obsmetrics.Dotation().AddKitsBackfilled(updated)
	if updated > 0 {
		s.log.Info("kits backfilled",
			zap.String("cycle_id", cycleID.String()),
			zap.Int64("updated", updated),
		)
		s.emitAudit(ctx, actor, cycleID, updated)
	}
	return updated, nil
}

func (s *Service) LoadIndex(ctx context.Context, tx *gorm.DB) (*kitdomain.Index, error) {
	var kits []kitdomain.Kit
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, name, area_id, active FROM kits ORDER BY id ASC`,
	).Scan(&kits).Error; err != nil {
		return nil, db.Storage("kit.load_index", err)
	}
	return kitdomain.NewIndex(kits), nil
}

func (s *Service) LinesForKits(ctx context.Context, tx *gorm.DB, kitIDs []snowflake.ID) (map[snowflake.ID][]kitdomain.KitLineView, error) {
	out := make(map[snowflake.ID][]kitdomain.KitLineView, len(kitIDs))
	if len(kitIDs) == 0 {
		return out, nil
	}

	var rows []kitdomain.KitLineView
	err := tx.WithContext(ctx).Raw(
		`SELECT kl.kit_id, kl.article_id, a.name AS article_name, a.category,
		        a.unit_price, a.requires_size, kl.quantity
		 FROM kit_lines kl
		 JOIN articles a ON a.id = kl.article_id
		 WHERE kl.kit_id IN ?
		 ORDER BY kl.kit_id ASC, a.name ASC, kl.id ASC`,
		kitIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, db.Storage("kit.lines", err)
	}
	for _, row := range rows {
		out[row.KitID] = append(out[row.KitID], row)
	}
	return out, nil
}

func (s *Service) emitAudit(ctx context.Context, actor string, cycleID snowflake.ID, updated int64) {
	if s.auditSvc == nil {
		return
	}
	targetID := cycleID.String()
	if err := s.auditSvc.AuditLog(ctx, actor, "cycle.kits_backfilled", "cycle", &targetID, map[string]any{
		"updated": updated,
	}); err != nil {
		s.log.Warn("failed to audit kit backfill", zap.Error(err))
	}
}

func (s *Service) timeout() time.Duration {
	return config.PolicyOrDefault(s.policy).QueryTimeout
}

func (s *Service) findKit(ctx context.Context, id snowflake.ID) (*kitdomain.Kit, error) {
	kit, err := s.kitrepo.FindOne(ctx, &kitdomain.Kit{ID: id})
	if err != nil {
		return nil, db.Storage("kit.find", err)
	}
	return kit, nil
}
