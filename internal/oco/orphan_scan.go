package oco

import (
	"context"
	"time"

	"trade_core/internal/broker"
	"trade_core/pkg/logger"
)

// RunOrphanScan — фоновый цикл зачистки сирот: reduce-only ордера без живой
// позиции снимаются. Группы в процессе выставления пропускаются, иначе скан
// порежет ноги раньше, чем менеджер успеет их связать с позицией.
func (m *Manager) RunOrphanScan(ctx context.Context, instrument string) {
	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.ScanOnce(ctx, instrument); err != nil {
				logger.Warn("orphan scan %s: %v", instrument, err)
			}
		}
	}
}

// ScanOnce — один проход: позиция дёргается одним запросом на весь проход,
// а не на каждый ордер.
func (m *Manager) ScanOnce(ctx context.Context, instrument string) error {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.BrokerCallTimeout)
	defer cancel()

	pos, err := m.b.GetPosition(cctx, instrument)
	if err != nil {
		return err
	}
	if pos != nil && pos.Size > 0 {
		// позиция жива — защитные ордера легитимны
		return nil
	}

	orders, err := m.b.GetOpenOrders(cctx, instrument)
	if err != nil {
		return err
	}

	for _, o := range orders {
		if !o.ReduceOnly {
			continue
		}
		role, txID, ok := ParseLabel(o.Label)
		if ok && m.isInflight(txID) {
			// группа ещё выставляется — не трогаем
			continue
		}

		err := broker.WithRetry(ctx, m.cfg.Retries, "orphan cancel", func(ctx context.Context) error {
			return m.b.CancelOrder(ctx, instrument, o.OrderID)
		})
		if err != nil {
			logger.Warn("orphan scan: cancel %s %s failed: %v", role, o.OrderID, err)
			continue
		}
		logger.Info("orphan scan: canceled %s %s (%s, no position)", role, o.OrderID, instrument)
		m.emit(Event{Type: EventOrphanCanceled, TxID: txID, Instrument: instrument, OrderID: o.OrderID})
	}
	return nil
}
