package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"github.com/smallbiznis/dotation/pkg/db/option"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
	"gorm.io/gorm"
)

func (s *Service) Fetch(ctx context.Context, orderID snowflake.ID) (*orderdomain.OrderDetail, error) {
	if orderID == 0 {
		return nil, orderdomain.ErrNotFound
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()
	return s.fetchDetail(ctx, s.db, orderID)
}

func (s *Service) List(ctx context.Context, req orderdomain.ListRequest) (orderdomain.ListResponse, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	page := req.Pagination.Normalize()
	filter := &orderdomain.PurchaseOrder{CycleID: req.CycleID, State: req.State}

	total, err := s.orderrepo.Count(ctx, filter)
	if err != nil {
		return orderdomain.ListResponse{}, db.Storage("order.count", err)
	}

	found, err := s.orderrepo.Find(ctx, filter,
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
		option.WithOrder("id", true),
		option.ApplyPagination(page),
	)
	if err != nil {
		return orderdomain.ListResponse{}, db.Storage("order.list", err)
	}
	items := make([]orderdomain.PurchaseOrder, 0, len(found))
	for _, item := range found {
		if item != nil {
			items = append(items, *item)
		}
	}
	return orderdomain.ListResponse{
		Items:    items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) Stats(ctx context.Context) (orderdomain.Stats, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	var rows []struct {
		State  orderdomain.OrderState
		Total  int64
		Amount decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT state, COUNT(1) AS total, COALESCE(SUM(total_amount), 0) AS amount
		 FROM purchase_orders
		 GROUP BY state`,
	).Scan(&rows).Error; err != nil {
		return orderdomain.Stats{}, db.Storage("order.stats", err)
	}

	stats := orderdomain.Stats{TotalAmount: decimal.Zero}
	for _, row := range rows {
		stats.Total += row.Total
		stats.TotalAmount = stats.TotalAmount.Add(row.Amount)
		switch row.State {
		case orderdomain.OrderStateSent:
			stats.Sent += row.Total
		case orderdomain.OrderStatePartiallyReceived:
			stats.PartiallyReceived += row.Total
		case orderdomain.OrderStateReceived:
			stats.Received += row.Total
		}
	}
	stats.TotalAmount = stats.TotalAmount.Round(2)
	return stats, nil
}

func (s *Service) PendingSizes(ctx context.Context, cycleID snowflake.ID) ([]orderdomain.PendingSize, error) {
	if cycleID == 0 {
		return nil, cycledomain.ErrNotFound
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout())
	defer cancel()

	var exists int64
	if err := s.db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM cycles WHERE id = ?`, cycleID).Scan(&exists).Error; err != nil {
		return nil, db.Storage("order.find_cycle", err)
	}
	if exists == 0 {
		return nil, cycledomain.ErrNotFound
	}

	members, err := loadProcessedMembers(ctx, s.db, cycleID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []orderdomain.PendingSize{}, nil
	}

	index, err := s.kitSvc.LoadIndex(ctx, s.db)
	if err != nil {
		return nil, err
	}
	kits := make(map[snowflake.ID]snowflake.ID, len(members))
	kitIDs := make([]snowflake.ID, 0)
	employeeIDs := make([]snowflake.ID, 0, len(members))
	for _, m := range members {
		employeeIDs = append(employeeIDs, m.EmployeeID)
		resolution := index.Resolve(kitdomain.MembershipRef{KitID: m.KitID, AreaID: m.AreaID})
		if !resolution.IsResolved() {
			continue
		}
		kits[m.MembershipID] = resolution.Kit.ID
		kitIDs = append(kitIDs, resolution.Kit.ID)
	}

	linesByKit, err := s.kitSvc.LinesForKits(ctx, s.db, uniqueIDs(kitIDs))
	if err != nil {
		return nil, err
	}
	sizes, err := s.catalogSvc.SelectedSizes(ctx, s.db, employeeIDs)
	if err != nil {
		return nil, err
	}

	pending := pendingSizes(members, kits, linesByKit, sizes)
	if pending == nil {
		pending = []orderdomain.PendingSize{}
	}
	return pending, nil
}

func (s *Service) fetchDetail(ctx context.Context, conn *gorm.DB, orderID snowflake.ID) (*orderdomain.OrderDetail, error) {
	found, err := s.orderrepo.WithTrx(conn).FindOne(ctx, &orderdomain.PurchaseOrder{ID: orderID})
	if err != nil {
		return nil, db.Storage("order.find", err)
	}
	if found == nil {
		return nil, orderdomain.ErrNotFound
	}
	order := *found

	var cycleName string
	if err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(name, '') FROM cycles WHERE id = ?`,
		order.CycleID,
	).Scan(&cycleName).Error; err != nil {
		return nil, db.Storage("order.find_cycle", err)
	}

	var lines []orderdomain.LineView
	if err := conn.WithContext(ctx).Raw(
		`SELECT l.id, l.order_id, l.article_id, l.size_id, l.quantity_requested, l.quantity_received,
		        l.unit_price, l.subtotal,
		        COALESCE(a.name, '') AS article_name, COALESCE(sz.label, '') AS size_label
		 FROM purchase_order_lines l
		 LEFT JOIN articles a ON a.id = l.article_id
		 LEFT JOIN sizes sz ON sz.id = l.size_id
		 WHERE l.order_id = ?
		 ORDER BY article_name ASC, size_label ASC, l.id ASC`,
		orderID,
	).Scan(&lines).Error; err != nil {
		return nil, db.Storage("order.lines", err)
	}
	if lines == nil {
		lines = []orderdomain.LineView{}
	}

	return &orderdomain.OrderDetail{
		Order:     order,
		CycleName: cycleName,
		Lines:     lines,
	}, nil
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
