package recon

import (
	"context"
	"fmt"
	"time"

	"trade_core/internal/broker"
	"trade_core/internal/models"
	"trade_core/internal/oco"
	"trade_core/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// Result — итог сверки сохранённой позиции с живым состоянием брокера.
// Matched == nil означает "локальной записи быть не должно": владелец
// стирает её после Apply. Matched != nil — позицию мониторим дальше
// (возможно, с перепривязанными id защитных ордеров).
type Result struct {
	Matched *models.Position
	Actions []models.ReconciliationAction
}

type Reconciler struct {
	b           broker.Broker
	callTimeout time.Duration
	retries     int
}

func NewReconciler(b broker.Broker, callTimeout time.Duration, retries int) *Reconciler {
	if callTimeout <= 0 {
		callTimeout = 3 * time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	return &Reconciler{b: b, callTimeout: callTimeout, retries: retries}
}

// Reconcile сверяет сохранённую запись (может быть nil) с брокером.
// Порядок проверок фиксирован: сначала "жива ли позиция", и только потом
// выводы о закрытии; при неоднозначной защите — всегда alert, никогда
// молчаливая реконструкция.
func (r *Reconciler) Reconcile(ctx context.Context, instrument string, persisted *models.Position) (*Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "recon.reconcile")
	defer span.Finish()

	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	pos, err := r.b.GetPosition(cctx, instrument)
	if err != nil {
		return nil, models.WrapError(models.KindOf(err), err, "reconcile: get position")
	}
	open, err := r.b.GetOpenOrders(cctx, instrument)
	if err != nil {
		return nil, models.WrapError(models.KindOf(err), err, "reconcile: get open orders")
	}

	if persisted == nil {
		return r.reconcileBlank(instrument, pos, open), nil
	}
	return r.reconcilePersisted(instrument, persisted, pos, open), nil
}

// reconcileBlank: записи нет. Всё живое с нашей меткой — остаток
// прошлой упавшей сессии, снимаем. Живая позиция без записи — только alert.
func (r *Reconciler) reconcileBlank(instrument string, pos *models.BrokerPosition, open []models.Order) *Result {
	res := &Result{}

	for _, o := range open {
		if !oco.HasTxPrefix(o.Label) {
			continue
		}
		res.Actions = append(res.Actions, models.ReconciliationAction{
			Type:    models.ReconCancelOrder,
			OrderID: o.OrderID,
			Message: fmt.Sprintf("leftover order %s (%s) from previous session", o.OrderID, o.Label),
		})
	}

	if pos != nil && pos.Size > 0 {
		res.Actions = append(res.Actions, models.ReconciliationAction{
			Type:    models.ReconAlert,
			Message: fmt.Sprintf("live %s position on %s with no local record, manual review required", pos.Side, instrument),
		})
	}
	return res
}

func (r *Reconciler) reconcilePersisted(instrument string, p *models.Position, pos *models.BrokerPosition, open []models.Order) *Result {
	res := &Result{}

	byID := make(map[string]*models.Order, len(open))
	for i := range open {
		byID[open[i].OrderID] = &open[i]
	}

	// 1. Entry всё ещё в открытых = не исполнился: сделка фактически
	// не началась — снимаем его и всё защитное, запись стираем.
	if entry, ok := byID[p.OrderID]; ok {
		res.Actions = append(res.Actions, models.ReconciliationAction{
			Type:    models.ReconCancelOrder,
			OrderID: entry.OrderID,
			Message: "entry order never filled, canceling",
			Order:   entry,
		})
		for _, id := range []string{p.SLOrderID, p.TPOrderID} {
			if o, ok := byID[id]; ok {
				res.Actions = append(res.Actions, models.ReconciliationAction{
					Type:    models.ReconCancelOrder,
					OrderID: id,
					Message: "protective leg of unfilled entry",
					Order:   o,
				})
			}
		}
		return res
	}

	// 2. Позиции на брокере нет — закрыта извне. Добиваем её защитные
	// ордера, запись стираем.
	if pos == nil || pos.Size <= 0 {
		for _, o := range open {
			if o.OrderID == p.SLOrderID || o.OrderID == p.TPOrderID || oco.HasTxPrefix(o.Label) {
				res.Actions = append(res.Actions, models.ReconciliationAction{
					Type:    models.ReconCancelOrder,
					OrderID: o.OrderID,
					Message: "position closed externally, canceling protective order",
				})
			}
		}
		return res
	}

	// 3. Позиция жива: ищем защитные ноги — сперва по id, потом по label.
	sl, slRebound := findLeg(byID, open, p.SLOrderID, oco.RoleSL)
	tp, tpRebound := findLeg(byID, open, p.TPOrderID, oco.RoleTP)

	if sl == nil || tp == nil {
		// защита неполная — чинить вслепую нельзя, только алерт
		res.Matched = p
		res.Actions = append(res.Actions, models.ReconciliationAction{
			Type:    models.ReconAlert,
			Message: fmt.Sprintf("position %s is live but protection is incomplete (sl found=%v, tp found=%v)", instrument, sl != nil, tp != nil),
		})
		return res
	}

	if !slRebound && !tpRebound {
		// всё на месте — просто возобновляем мониторинг
		res.Matched = p
		return res
	}

	// id разошлись с записью, но ноги однозначно нашлись по меткам —
	// перепривязываем и просим владельца пересохранить запись
	restored := *p
	restored.SLOrderID = sl.OrderID
	restored.TPOrderID = tp.OrderID
	res.Matched = &restored
	res.Actions = append(res.Actions, models.ReconciliationAction{
		Type:    models.ReconRestorePosition,
		Message: fmt.Sprintf("rebound protective orders: sl=%s tp=%s", sl.OrderID, tp.OrderID),
	})
	return res
}

// findLeg ищет защитную ногу: точное совпадение id, иначе единственный
// reduce-only ордер нужной роли с нашей меткой. Двусмысленность = не нашли.
func findLeg(byID map[string]*models.Order, open []models.Order, wantID string, role oco.Role) (*models.Order, bool) {
	if o, ok := byID[wantID]; ok {
		return o, false
	}

	var found *models.Order
	for i := range open {
		o := &open[i]
		if !o.ReduceOnly {
			continue
		}
		if r, _, ok := oco.ParseLabel(o.Label); !ok || r != role {
			continue
		}
		if found != nil {
			return nil, false // больше одного кандидата
		}
		found = o
	}
	return found, found != nil
}

// Apply исполняет корректирующие действия. Судьбу самой записи (стереть или
// пересохранить Matched) решает вызывающий — у реконсиляции нет доступа к
// хранилищу намеренно.
func (r *Reconciler) Apply(ctx context.Context, instrument string, res *Result) error {
	var firstErr error
	for _, a := range res.Actions {
		switch a.Type {
		case models.ReconCancelOrder:
			err := broker.WithRetry(ctx, r.retries, "recon cancel", func(ctx context.Context) error {
				return r.b.CancelOrder(ctx, instrument, a.OrderID)
			})
			if err != nil {
				logger.Warn("recon: cancel %s failed: %v", a.OrderID, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			logger.Info("recon: canceled %s (%s)", a.OrderID, a.Message)

		case models.ReconAlert:
			logger.Critical("recon alert [%s]: %s", instrument, a.Message)

		case models.ReconRestorePosition:
			logger.Info("recon: %s", a.Message)
		}
	}
	if firstErr != nil {
		return models.WrapError(models.KindOf(firstErr), firstErr, "reconcile apply")
	}
	return nil
}
