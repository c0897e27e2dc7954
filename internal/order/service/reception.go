package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const orderColumns = `id, cycle_id, reference, order_date, state, notes, total_amount, created_by, created_at, updated_at`

func (s *Service) RegisterReception(ctx context.Context, orderID snowflake.ID, req orderdomain.ReceptionRequest, actor string) (*orderdomain.OrderDetail, error) {
	if orderID == 0 {
		return nil, orderdomain.ErrNotFound
	}
	if len(req.Lines) == 0 {
		return nil, orderdomain.ErrInvalidReception
	}

	received := make(map[snowflake.ID]int64, len(req.Lines))
	for _, line := range req.Lines {
		if line.LineID == 0 || line.Quantity <= 0 {
			return nil, orderdomain.ErrInvalidReception
		}
		received[line.LineID] += line.Quantity
	}

	var (
		state  orderdomain.OrderState
		detail *orderdomain.OrderDetail
	)
	err := db.RunInTx(ctx, s.db, s.timeout(), "order.register_reception", func(tx *gorm.DB) error {
		var order orderdomain.PurchaseOrder
		if err := tx.WithContext(ctx).Raw(
			s.forUpdate(tx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = ?`),
			orderID,
		).Scan(&order).Error; err != nil {
			return db.Storage("order.lock", err)
		}
		if order.ID == 0 {
			return orderdomain.ErrNotFound
		}
		if !order.State.Receivable() {
			return orderdomain.ErrOrderNotReceivable
		}

		var lines []orderdomain.PurchaseOrderLine
		if err := tx.WithContext(ctx).
			Where("order_id = ?", orderID).
			Order("id ASC").
			Find(&lines).Error; err != nil {
			return db.Storage("order.load_lines", err)
		}

		byID := make(map[snowflake.ID]*orderdomain.PurchaseOrderLine, len(lines))
		for i := range lines {
			byID[lines[i].ID] = &lines[i]
		}
		for lineID, qty := range received {
			line, ok := byID[lineID]
			if !ok {
				return orderdomain.ErrInvalidReception
			}
			if line.QuantityReceived+qty > line.QuantityRequested {
				return orderdomain.ErrReceptionExceedsRequested
			}
			line.QuantityReceived += qty
			if err := tx.WithContext(ctx).Exec(
				`UPDATE purchase_order_lines SET quantity_received = ? WHERE id = ?`,
				line.QuantityReceived, lineID,
			).Error; err != nil {
				return db.Storage("order.update_line", err)
			}
		}

		state = orderdomain.OrderStateReceived
		for _, line := range lines {
			if !line.Complete() {
				state = orderdomain.OrderStatePartiallyReceived
				break
			}
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE purchase_orders SET state = ?, updated_at = ? WHERE id = ?`,
			state, s.clock.Now().UTC(), orderID,
		).Error; err != nil {
			return db.Storage("order.update_state", err)
		}

		loaded, err := s.fetchDetail(ctx, tx, orderID)
		if err != nil {
			return err
		}
		detail = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReception(ctx, string(state))
	s.log.Info("reception registered",
		zap.String("order_id", orderID.String()),
		zap.String("state", string(state)),
	)
	s.emitAudit(ctx, actor, "order.reception_registered", orderID, map[string]any{
		"state": string(state),
		"lines": len(received),
	})
	return detail, nil
}
