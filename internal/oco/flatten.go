package oco

import (
	"context"

	"trade_core/internal/broker"
	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// Flatten — аварийное/плановое обнуление: закрыть позицию маркетом reduce-only
// и снять защитные ордера. Порядок важен: сначала закрытие, потом снятие —
// если снятие упадёт, остатки доберёт скан сирот (позиции уже нет).
func (m *Manager) Flatten(ctx context.Context, instrument string) error {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.BrokerCallTimeout)
	defer cancel()

	pos, err := m.b.GetPosition(cctx, instrument)
	if err != nil {
		return models.WrapError(models.KindOf(err), err, "Flatten: get position")
	}

	if pos != nil && pos.Size > 0 {
		err := broker.WithRetry(ctx, m.cfg.Retries, "flatten close", func(ctx context.Context) error {
			_, err := m.b.PlaceOrder(ctx, broker.OrderRequest{
				Instrument: instrument,
				Side:       pos.Side.Opposite(),
				Type:       models.OrderMarket,
				Amount:     pos.Size,
				ReduceOnly: true,
			})
			return err
		})
		if err != nil {
			return models.WrapError(models.KindOf(err), err, "Flatten: close position")
		}
	}

	orders, err := m.b.GetOpenOrders(cctx, instrument)
	if err != nil {
		return models.WrapError(models.KindOf(err), err, "Flatten: list orders")
	}
	for _, o := range orders {
		if !o.ReduceOnly {
			continue
		}
		err := broker.WithRetry(ctx, m.cfg.Retries, "flatten cancel", func(ctx context.Context) error {
			return m.b.CancelOrder(ctx, instrument, o.OrderID)
		})
		if err != nil {
			logger.Warn("flatten: cancel %s failed: %v", o.OrderID, err)
		}
	}

	m.emit(Event{Type: EventFlattened, Instrument: instrument})
	logger.Info("flatten %s: position closed, protective orders canceled", instrument)
	return nil
}
