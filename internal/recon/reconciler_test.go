package recon

import (
	"context"
	"testing"
	"time"

	"trade_core/internal/broker/brokertest"
	"trade_core/internal/models"
	"trade_core/internal/oco"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inst = "BTC-USDT-SWAP"

func newReconciler(f *brokertest.Fake) *Reconciler {
	return NewReconciler(f, time.Second, 1)
}

func persistedPos(slID, tpID string) *models.Position {
	return &models.Position{
		OrderID:    "entry-1",
		Instrument: inst,
		Side:       models.SideBuy,
		EntryPrice: 50_000,
		Amount:     1,
		StopLoss:   49_500,
		TakeProfit: 51_000,
		EntryTime:  time.Now(),
		SLOrderID:  slID,
		TPOrderID:  tpID,
	}
}

func addProtective(f *brokertest.Fake, id string, role oco.Role, txID string) string {
	return f.AddOpen(models.Order{
		OrderID:    id,
		Instrument: inst,
		Side:       models.SideSell,
		Type:       models.OrderStopMarket,
		Amount:     1,
		Label:      oco.BuildLabel(role, txID),
		ReduceOnly: true,
	})
}

func TestReconcile_AllLegsLive_NoActions(t *testing.T) {
	f := brokertest.New()
	txID := oco.NewTxID()
	f.SetPosition(models.BrokerPosition{Instrument: inst, Side: models.SideBuy, Size: 1})
	addProtective(f, "sl-1", oco.RoleSL, txID)
	addProtective(f, "tp-1", oco.RoleTP, txID)

	res, err := newReconciler(f).Reconcile(context.Background(), inst, persistedPos("sl-1", "tp-1"))
	require.NoError(t, err)
	require.NotNil(t, res.Matched)
	assert.Empty(t, res.Actions)
}

func TestReconcile_ProtectionMissing_Alert(t *testing.T) {
	f := brokertest.New()
	f.SetPosition(models.BrokerPosition{Instrument: inst, Side: models.SideBuy, Size: 1})
	addProtective(f, "sl-1", oco.RoleSL, oco.NewTxID())
	// tp отсутствует

	res, err := newReconciler(f).Reconcile(context.Background(), inst, persistedPos("sl-1", "tp-1"))
	require.NoError(t, err)
	require.NotNil(t, res.Matched, "позицию продолжаем мониторить")
	require.Len(t, res.Actions, 1)
	assert.Equal(t, models.ReconAlert, res.Actions[0].Type)
}

func TestReconcile_PendingEntry_CanceledAndCleared(t *testing.T) {
	f := brokertest.New()
	f.AddOpen(models.Order{
		OrderID:    "entry-1",
		Instrument: inst,
		Side:       models.SideBuy,
		Type:       models.OrderLimit,
		Amount:     1,
		Price:      50_000,
	})
	addProtective(f, "sl-1", oco.RoleSL, oco.NewTxID())

	r := newReconciler(f)
	res, err := r.Reconcile(context.Background(), inst, persistedPos("sl-1", "tp-1"))
	require.NoError(t, err)
	assert.Nil(t, res.Matched, "запись должна быть стёрта")
	require.Len(t, res.Actions, 2)
	assert.Equal(t, models.ReconCancelOrder, res.Actions[0].Type)
	assert.Equal(t, "entry-1", res.Actions[0].OrderID)

	require.NoError(t, r.Apply(context.Background(), inst, res))
	open, _ := f.GetOpenOrders(context.Background(), inst)
	assert.Empty(t, open)
}

// Позиция закрыта извне, SL/TP ещё висят: обе ноги снимаются, запись стирается.
func TestReconcile_ExternallyClosed(t *testing.T) {
	f := brokertest.New()
	txID := oco.NewTxID()
	slID := addProtective(f, "sl-1", oco.RoleSL, txID)
	tpID := addProtective(f, "tp-1", oco.RoleTP, txID)

	r := newReconciler(f)
	res, err := r.Reconcile(context.Background(), inst, persistedPos(slID, tpID))
	require.NoError(t, err)
	assert.Nil(t, res.Matched)
	require.Len(t, res.Actions, 2)
	for _, a := range res.Actions {
		assert.Equal(t, models.ReconCancelOrder, a.Type)
	}

	require.NoError(t, r.Apply(context.Background(), inst, res))
	assert.ElementsMatch(t, []string{slID, tpID}, f.Canceled)
	open, _ := f.GetOpenOrders(context.Background(), inst)
	assert.Empty(t, open)
}

func TestReconcile_BlankState_LeftoversCanceled(t *testing.T) {
	f := brokertest.New()
	slID := addProtective(f, "sl-1", oco.RoleSL, oco.NewTxID())
	// чужой ордер без нашей метки не трогаем
	foreign := f.AddOpen(models.Order{Instrument: inst, Type: models.OrderLimit, Label: "manual"})

	r := newReconciler(f)
	res, err := r.Reconcile(context.Background(), inst, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Matched)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, slID, res.Actions[0].OrderID)

	require.NoError(t, r.Apply(context.Background(), inst, res))
	_, err = f.GetOrder(context.Background(), inst, foreign)
	assert.NoError(t, err)
}

func TestReconcile_BlankState_UnknownPosition_Alert(t *testing.T) {
	f := brokertest.New()
	f.SetPosition(models.BrokerPosition{Instrument: inst, Side: models.SideSell, Size: 2})

	res, err := newReconciler(f).Reconcile(context.Background(), inst, nil)
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, models.ReconAlert, res.Actions[0].Type)
}

// Id ног в записи устарели, но ноги однозначно находятся по меткам:
// перепривязка вместо алерта.
func TestReconcile_ReboundByLabel(t *testing.T) {
	f := brokertest.New()
	txID := oco.NewTxID()
	f.SetPosition(models.BrokerPosition{Instrument: inst, Side: models.SideBuy, Size: 1})
	slID := addProtective(f, "", oco.RoleSL, txID)
	tpID := addProtective(f, "", oco.RoleTP, txID)

	res, err := newReconciler(f).Reconcile(context.Background(), inst, persistedPos("stale-sl", "stale-tp"))
	require.NoError(t, err)
	require.NotNil(t, res.Matched)
	assert.Equal(t, slID, res.Matched.SLOrderID)
	assert.Equal(t, tpID, res.Matched.TPOrderID)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, models.ReconRestorePosition, res.Actions[0].Type)
}

// 1-й прогон + Apply + пересохранение Matched => 2-й прогон без действий.
func TestReconcile_Idempotent(t *testing.T) {
	f := brokertest.New()
	txID := oco.NewTxID()
	f.SetPosition(models.BrokerPosition{Instrument: inst, Side: models.SideBuy, Size: 1})
	addProtective(f, "", oco.RoleSL, txID)
	addProtective(f, "", oco.RoleTP, txID)

	r := newReconciler(f)
	first, err := r.Reconcile(context.Background(), inst, persistedPos("stale-sl", "stale-tp"))
	require.NoError(t, err)
	require.NoError(t, r.Apply(context.Background(), inst, first))

	second, err := r.Reconcile(context.Background(), inst, first.Matched)
	require.NoError(t, err)
	require.NotNil(t, second.Matched)
	assert.Empty(t, second.Actions)
	assert.Equal(t, first.Matched, second.Matched)
}
