package oco

import (
	"context"
	"fmt"

	"trade_core/internal/broker"
	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// GroupIntent — намерение открыть сделку с полной защитой.
type GroupIntent struct {
	Instrument string
	Side       models.Side
	Size       float64
	StopLoss   float64
	TakeProfit float64
}

type GroupResult struct {
	TxID         string
	EntryOrderID string
	SLOrderID    string
	TPOrderID    string
	State        GroupState
}

func (gi GroupIntent) validate() error {
	if gi.Instrument == "" {
		return models.NewError(models.ErrKindValidation, "PlaceGroup: instrument is empty")
	}
	if gi.Size <= 0 {
		return models.NewError(models.ErrKindValidation, "PlaceGroup: size <= 0")
	}
	if gi.StopLoss <= 0 || gi.TakeProfit <= 0 {
		return models.NewError(models.ErrKindValidation, "PlaceGroup: sl/tp <= 0")
	}
	if gi.Side != models.SideBuy && gi.Side != models.SideSell {
		return models.NewError(models.ErrKindValidation, fmt.Sprintf("PlaceGroup: unknown side %q", gi.Side))
	}
	return nil
}

type placedLeg struct {
	role  Role
	order *models.Order
}

// PlaceGroup выставляет ноги строго последовательно: entry → SL → TP.
// Последовательность сознательная: откат при сбое на ноге k должен снимать
// ровно ноги 1..k-1 в обратном порядке. Таймаут накрывает группу целиком,
// чтобы зависший брокер не держал позицию без защиты дольше лимита.
func (m *Manager) PlaceGroup(ctx context.Context, intent GroupIntent) (*GroupResult, error) {
	if err := intent.validate(); err != nil {
		return nil, err
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "oco.place_group")
	defer span.Finish()

	txID := NewTxID()
	span.SetTag("tx_id", txID)

	m.markInflight(txID)
	defer m.unmarkInflight(txID)

	gctx, cancel := context.WithTimeout(ctx, m.cfg.GroupTimeout)
	defer cancel()

	res := &GroupResult{TxID: txID, State: StateIdle}
	var placed []placedLeg

	// 1. Entry (market). Провал здесь — откатывать нечего.
	res.State = StateEntryPlacing
	entry, err := m.placeLeg(gctx, RoleEntry, txID, broker.OrderRequest{
		Instrument: intent.Instrument,
		Side:       intent.Side,
		Type:       models.OrderMarket,
		Amount:     intent.Size,
	})
	if err != nil {
		res.State = StateFailed
		return res, models.WrapError(models.KindOf(err), err, "PlaceGroup entry")
	}
	res.State = StateEntryPlaced
	res.EntryOrderID = entry.OrderID
	placed = append(placed, placedLeg{RoleEntry, entry})

	// 2. Stop-loss (reduce-only, противоположная сторона)
	res.State = StateProtectionPlacing
	sl, err := m.placeLeg(gctx, RoleSL, txID, broker.OrderRequest{
		Instrument: intent.Instrument,
		Side:       intent.Side.Opposite(),
		Type:       models.OrderStopMarket,
		Amount:     intent.Size,
		Price:      intent.StopLoss,
		ReduceOnly: true,
	})
	if err != nil {
		return m.failGroup(res, placed, err, "PlaceGroup stop-loss")
	}
	res.SLOrderID = sl.OrderID
	placed = append(placed, placedLeg{RoleSL, sl})

	// 3. Take-profit
	tp, err := m.placeLeg(gctx, RoleTP, txID, broker.OrderRequest{
		Instrument: intent.Instrument,
		Side:       intent.Side.Opposite(),
		Type:       models.OrderTakeProfit,
		Amount:     intent.Size,
		Price:      intent.TakeProfit,
		ReduceOnly: true,
	})
	if err != nil {
		return m.failGroup(res, placed, err, "PlaceGroup take-profit")
	}
	res.TPOrderID = tp.OrderID

	res.State = StateProtected
	m.emit(Event{Type: EventGroupPlaced, TxID: txID, Instrument: intent.Instrument, OrderID: entry.OrderID})
	return res, nil
}

func (m *Manager) placeLeg(ctx context.Context, role Role, txID string, req broker.OrderRequest) (*models.Order, error) {
	req.Label = BuildLabel(role, txID)

	var out *models.Order
	err := broker.WithRetry(ctx, m.cfg.Retries, "PlaceGroup:"+string(role), func(ctx context.Context) error {
		o, err := m.b.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// failGroup — откат: снимаем уже выставленные ноги в обратном порядке и
// отдаём исходную ошибку. Ошибки отката логируются как critical, но исходную
// причину не маскируют: недоснятые ноги доберёт скан сирот.
func (m *Manager) failGroup(res *GroupResult, placed []placedLeg, cause error, msg string) (*GroupResult, error) {
	res.State = StateRollingBack

	// групповой контекст мог уже истечь — откат идёт на отдельном
	rbCtx, cancel := context.WithTimeout(context.Background(), 3*m.cfg.BrokerCallTimeout)
	defer cancel()

	for i := len(placed) - 1; i >= 0; i-- {
		leg := placed[i]

		if leg.role == RoleEntry {
			// маркет-вход уже исполнен: "снять" его можно только
			// немедленным закрытием — позиция без защиты недопустима
			m.emergencyClose(rbCtx, leg.order)
			continue
		}

		err := broker.WithRetry(rbCtx, m.cfg.Retries, "rollback cancel", func(ctx context.Context) error {
			return m.b.CancelOrder(ctx, leg.order.Instrument, leg.order.OrderID)
		})
		if err != nil {
			logger.Critical("rollback: cancel %s leg %s failed: %v (orphan scan will retry)",
				leg.role, leg.order.OrderID, err)
		}
	}

	res.State = StateFailed
	m.emit(Event{Type: EventGroupFailed, TxID: res.TxID, Err: cause})
	return res, models.WrapError(models.KindOf(cause), cause, msg)
}

// emergencyClose закрывает исполненный entry маркетом reduce-only.
func (m *Manager) emergencyClose(ctx context.Context, entry *models.Order) {
	if entry.Status != models.OrderStatusFilled && entry.Status != models.OrderStatusPartiallyFilled {
		// не исполнился — достаточно снять
		err := broker.WithRetry(ctx, m.cfg.Retries, "rollback cancel entry", func(ctx context.Context) error {
			return m.b.CancelOrder(ctx, entry.Instrument, entry.OrderID)
		})
		if err != nil {
			logger.Critical("rollback: cancel entry %s failed: %v", entry.OrderID, err)
		}
		return
	}

	err := broker.WithRetry(ctx, m.cfg.Retries, "emergency close", func(ctx context.Context) error {
		_, err := m.b.PlaceOrder(ctx, broker.OrderRequest{
			Instrument: entry.Instrument,
			Side:       entry.Side.Opposite(),
			Type:       models.OrderMarket,
			Amount:     entry.Amount,
			ReduceOnly: true,
		})
		return err
	})
	if err != nil {
		// худший случай: незащищённая позиция осталась открытой
		logger.Critical("EMERGENCY: market close of %s %s failed: %v — position is unprotected",
			entry.Instrument, entry.OrderID, err)
	}
}
