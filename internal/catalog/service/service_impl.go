package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	RosterRepo rosterdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	Policy     config.PolicySource `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	rosterRepo rosterdomain.Repository
	clock      clock.Clock
	policy     config.PolicySource
	metrics    *obsmetrics.Metrics
}

func NewService(p ServiceParam) catalogdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("catalog.service"),
		genID:      p.GenID,
		rosterRepo: p.RosterRepo,
		clock:      clk,
		policy:     p.Policy,
		metrics:    p.Metrics,
	}
}

func (s *Service) UpsertSize(ctx context.Context, employeeID, articleID, sizeID snowflake.ID) (*catalogdomain.EmployeeArticleSize, error) {
	if employeeID == 0 {
		return nil, catalogdomain.ErrInvalidEmployee
	}
	if articleID == 0 {
		return nil, catalogdomain.ErrInvalidArticle
	}
	if sizeID == 0 {
		return nil, catalogdomain.ErrInvalidSize
	}

	var stored catalogdomain.EmployeeArticleSize
	err := db.RunInTx(ctx, s.db, s.timeout(), "catalog.upsert_size", func(tx *gorm.DB) error {
		if err := s.validateSelection(ctx, tx, employeeID, []catalogdomain.SizeSelection{{ArticleID: articleID, SizeID: sizeID}}); err != nil {
			return err
		}
		rows := []catalogdomain.EmployeeArticleSize{s.newPreference(employeeID, articleID, sizeID)}
		if err := upsertPreferences(ctx, tx, rows); err != nil {
			return db.Storage("catalog.upsert_size", err)
		}
		if err := tx.WithContext(ctx).
			Where("employee_id = ? AND article_id = ?", employeeID, articleID).
			First(&stored).Error; err != nil {
			return db.Storage("catalog.load_size", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Service) UpsertSizes(ctx context.Context, employeeID snowflake.ID, selections []catalogdomain.SizeSelection) (int, error) {
	if employeeID == 0 {
		return 0, catalogdomain.ErrInvalidEmployee
	}

	// last selection per article wins
	order := make([]snowflake.ID, 0, len(selections))
	latest := make(map[snowflake.ID]snowflake.ID, len(selections))
	for _, sel := range selections {
		if sel.ArticleID == 0 {
			return 0, catalogdomain.ErrInvalidArticle
		}
		if sel.SizeID == 0 {
			return 0, catalogdomain.ErrInvalidSize
		}
		if _, seen := latest[sel.ArticleID]; !seen {
			order = append(order, sel.ArticleID)
		}
		latest[sel.ArticleID] = sel.SizeID
	}
	if len(order) == 0 {
		return 0, catalogdomain.ErrEmptySelection
	}

	deduped := make([]catalogdomain.SizeSelection, 0, len(order))
	rows := make([]catalogdomain.EmployeeArticleSize, 0, len(order))
	for _, articleID := range order {
		deduped = append(deduped, catalogdomain.SizeSelection{ArticleID: articleID, SizeID: latest[articleID]})
		rows = append(rows, s.newPreference(employeeID, articleID, latest[articleID]))
	}

	err := db.RunInTx(ctx, s.db, s.timeout(), "catalog.upsert_sizes", func(tx *gorm.DB) error {
		if err := s.validateSelection(ctx, tx, employeeID, deduped); err != nil {
			return err
		}
		if err := upsertPreferences(ctx, tx, rows); err != nil {
			return db.Storage("catalog.upsert_sizes", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.RecordSizeSelections(ctx, len(rows))
	return len(rows), nil
}

func (s *Service) ListSizes(ctx context.Context, employeeID snowflake.ID) ([]catalogdomain.EmployeeSizeView, error) {
	if employeeID == 0 {
		return nil, catalogdomain.ErrInvalidEmployee
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	var rows []catalogdomain.EmployeeSizeView
	err := s.db.WithContext(ctx).Raw(
		`SELECT eas.article_id, a.name AS article_name, a.category, a.requires_size,
		        eas.size_id, s.label AS size_label, eas.updated_at
		 FROM employee_article_sizes eas
		 JOIN articles a ON a.id = eas.article_id
		 JOIN sizes s ON s.id = eas.size_id
		 WHERE eas.employee_id = ?
		 ORDER BY a.name ASC`,
		employeeID,
	).Scan(&rows).Error
	if err != nil {
		return nil, db.Storage("catalog.list_sizes", err)
	}
	return rows, nil
}

func (s *Service) SelectedSizes(ctx context.Context, tx *gorm.DB, employeeIDs []snowflake.ID) (map[catalogdomain.SizeKey]catalogdomain.SelectedSize, error) {
	out := make(map[catalogdomain.SizeKey]catalogdomain.SelectedSize)
	if len(employeeIDs) == 0 {
		return out, nil
	}

	var rows []catalogdomain.SelectedSize
	err := tx.WithContext(ctx).Raw(
		`SELECT eas.employee_id, eas.article_id, eas.size_id, s.label
		 FROM employee_article_sizes eas
		 JOIN sizes s ON s.id = eas.size_id
		 WHERE eas.employee_id IN ?`,
		employeeIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, db.Storage("catalog.selected_sizes", err)
	}
	for _, row := range rows {
		out[catalogdomain.SizeKey{EmployeeID: row.EmployeeID, ArticleID: row.ArticleID}] = row
	}
	return out, nil
}

func (s *Service) EnsurePlaceholderSize(ctx context.Context, tx *gorm.DB, label string, genderID int64) (*catalogdomain.Size, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = config.PolicyOrDefault(s.policy).PlaceholderSizeLabel
	}

	size, err := findSize(ctx, tx, label, genderID)
	if err != nil {
		return nil, err
	}
	if size != nil {
		return size, nil
	}

	candidate := catalogdomain.Size{
		ID:          s.genID.Generate(),
		Label:       label,
		ArticleType: catalogdomain.ArticleTypeGeneral,
		GenderID:    genderID,
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&candidate).Error; err != nil {
		return nil, db.Storage("catalog.create_placeholder_size", err)
	}
	s.log.Info("placeholder size created",
		zap.String("label", label),
		zap.Int64("gender_id", genderID),
	)

	size, err = findSize(ctx, tx, label, genderID)
	if err != nil {
		return nil, err
	}
	if size == nil {
		return nil, db.Storage("catalog.create_placeholder_size", errors.New("placeholder size not visible after insert"))
	}
	return size, nil
}

func (s *Service) validateSelection(ctx context.Context, tx *gorm.DB, employeeID snowflake.ID, selections []catalogdomain.SizeSelection) error {
	employee, err := s.rosterRepo.FindEmployee(ctx, tx, employeeID)
	if err != nil {
		return db.Storage("catalog.find_employee", err)
	}
	if employee == nil {
		return rosterdomain.ErrEmployeeNotFound
	}

	articleIDs := make([]snowflake.ID, 0, len(selections))
	sizeIDs := make([]snowflake.ID, 0, len(selections))
	for _, sel := range selections {
		articleIDs = append(articleIDs, sel.ArticleID)
		sizeIDs = append(sizeIDs, sel.SizeID)
	}

	var articleCount int64
	if err := tx.WithContext(ctx).Model(&catalogdomain.Article{}).
		Where("id IN ?", uniqueIDs(articleIDs)).
		Count(&articleCount).Error; err != nil {
		return db.Storage("catalog.count_articles", err)
	}
	if int(articleCount) != len(uniqueIDs(articleIDs)) {
		return catalogdomain.ErrArticleNotFound
	}

	var sizeCount int64
	if err := tx.WithContext(ctx).Model(&catalogdomain.Size{}).
		Where("id IN ?", uniqueIDs(sizeIDs)).
		Count(&sizeCount).Error; err != nil {
		return db.Storage("catalog.count_sizes", err)
	}
	if int(sizeCount) != len(uniqueIDs(sizeIDs)) {
		return catalogdomain.ErrSizeNotFound
	}
	return nil
}

func (s *Service) newPreference(employeeID, articleID, sizeID snowflake.ID) catalogdomain.EmployeeArticleSize {
	return catalogdomain.EmployeeArticleSize{
		ID:         s.genID.Generate(),
		EmployeeID: employeeID,
		ArticleID:  articleID,
		SizeID:     sizeID,
		UpdatedAt:  s.clock.Now().UTC(),
	}
}

func (s *Service) timeout() time.Duration {
	return config.PolicyOrDefault(s.policy).QueryTimeout
}

func upsertPreferences(ctx context.Context, tx *gorm.DB, rows []catalogdomain.EmployeeArticleSize) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee_id"}, {Name: "article_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"size_id", "updated_at"}),
		}).
		Create(&rows).Error
}

func findSize(ctx context.Context, tx *gorm.DB, label string, genderID int64) (*catalogdomain.Size, error) {
	var row catalogdomain.Size
	err := tx.WithContext(ctx).Raw(
		`SELECT id, label, article_type, gender_id
		 FROM sizes
		 WHERE label = ? AND article_type = ? AND gender_id = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		label, catalogdomain.ArticleTypeGeneral, genderID,
	).Scan(&row).Error
	if err != nil {
		return nil, db.Storage("catalog.find_size", err)
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
