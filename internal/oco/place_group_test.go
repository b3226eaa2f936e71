package oco

import (
	"context"
	"testing"
	"time"

	"trade_core/internal/broker"
	"trade_core/internal/broker/brokertest"
	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(f *brokertest.Fake) *Manager {
	return NewManager(f, Config{
		GroupTimeout:      2 * time.Second,
		ScanInterval:      time.Hour, // сканом управляем вручную через ScanOnce
		BrokerCallTimeout: time.Second,
		Retries:           1,
	})
}

func intentBTC() GroupIntent {
	return GroupIntent{
		Instrument: "BTC-USDT-SWAP",
		Side:       models.SideBuy,
		Size:       1.0,
		StopLoss:   49_500,
		TakeProfit: 51_000,
	}
}

func TestPlaceGroup_HappyPath(t *testing.T) {
	f := brokertest.New()
	m := newTestManager(f)

	res, err := m.PlaceGroup(context.Background(), intentBTC())
	require.NoError(t, err)
	assert.Equal(t, StateProtected, res.State)
	require.NotEmpty(t, res.TxID)
	assert.NotEmpty(t, res.EntryOrderID)
	assert.NotEmpty(t, res.SLOrderID)
	assert.NotEmpty(t, res.TPOrderID)

	// порядок строго entry -> sl -> tp
	require.Len(t, f.Placed, 3)
	assert.Equal(t, models.OrderMarket, f.Placed[0].Type)
	assert.Equal(t, models.SideBuy, f.Placed[0].Side)
	assert.False(t, f.Placed[0].ReduceOnly)

	assert.Equal(t, models.OrderStopMarket, f.Placed[1].Type)
	assert.Equal(t, models.SideSell, f.Placed[1].Side)
	assert.True(t, f.Placed[1].ReduceOnly)
	assert.InDelta(t, 49_500.0, f.Placed[1].Price, 1e-9)

	assert.Equal(t, models.OrderTakeProfit, f.Placed[2].Type)
	assert.True(t, f.Placed[2].ReduceOnly)

	// все три ноги связаны одним txID
	for i, role := range []Role{RoleEntry, RoleSL, RoleTP} {
		assert.Equal(t, BuildLabel(role, res.TxID), f.Placed[i].Label)
	}

	// позиция открыта, две защитные ноги живы
	pos, _ := f.GetPosition(context.Background(), "BTC-USDT-SWAP")
	require.NotNil(t, pos)
	open, _ := f.GetOpenOrders(context.Background(), "BTC-USDT-SWAP")
	assert.Len(t, open, 2)

	select {
	case ev := <-m.Events():
		assert.Equal(t, EventGroupPlaced, ev.Type)
		assert.Equal(t, res.TxID, ev.TxID)
	default:
		t.Fatal("expected group_placed event")
	}
}

func TestPlaceGroup_SLFails_EntryClosed(t *testing.T) {
	f := brokertest.New()
	f.PlaceErr = func(req broker.OrderRequest) error {
		if req.Type == models.OrderStopMarket {
			return models.NewError(models.ErrKindBrokerRejected, "sz too large")
		}
		return nil
	}
	m := newTestManager(f)

	res, err := m.PlaceGroup(context.Background(), intentBTC())
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBrokerRejected, models.KindOf(err))
	assert.Equal(t, StateFailed, res.State)

	// entry закрыт аварийным reduce-only маркетом, позиции нет
	pos, _ := f.GetPosition(context.Background(), "BTC-USDT-SWAP")
	assert.Nil(t, pos)

	// чистый итог по ордерам — ноль
	open, _ := f.GetOpenOrders(context.Background(), "BTC-USDT-SWAP")
	assert.Empty(t, open)

	// последний Placed — аварийное закрытие
	last := f.Placed[len(f.Placed)-1]
	assert.Equal(t, models.OrderMarket, last.Type)
	assert.Equal(t, models.SideSell, last.Side)
	assert.True(t, last.ReduceOnly)

	select {
	case ev := <-m.Events():
		assert.Equal(t, EventGroupFailed, ev.Type)
	default:
		t.Fatal("expected group_failed event")
	}
}

func TestPlaceGroup_TPFails_ReverseRollback(t *testing.T) {
	f := brokertest.New()
	f.PlaceErr = func(req broker.OrderRequest) error {
		if req.Type == models.OrderTakeProfit {
			return models.NewError(models.ErrKindBrokerRejected, "px out of band")
		}
		return nil
	}
	m := newTestManager(f)

	res, err := m.PlaceGroup(context.Background(), intentBTC())
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)

	// SL снят до закрытия entry (обратный порядок)
	require.Len(t, f.Canceled, 1)
	assert.Equal(t, res.SLOrderID, f.Canceled[0])

	pos, _ := f.GetPosition(context.Background(), "BTC-USDT-SWAP")
	assert.Nil(t, pos)
	open, _ := f.GetOpenOrders(context.Background(), "BTC-USDT-SWAP")
	assert.Empty(t, open)
}

func TestPlaceGroup_EntryFails_NothingToRollBack(t *testing.T) {
	f := brokertest.New()
	f.PlaceErr = func(req broker.OrderRequest) error {
		return models.NewError(models.ErrKindBrokerRejected, "insufficient margin")
	}
	m := newTestManager(f)

	res, err := m.PlaceGroup(context.Background(), intentBTC())
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, f.Canceled)
	assert.Empty(t, f.Placed)
}

func TestPlaceGroup_ValidatesIntent(t *testing.T) {
	m := newTestManager(brokertest.New())

	bad := intentBTC()
	bad.Size = 0
	_, err := m.PlaceGroup(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindValidation, models.KindOf(err))
}

func TestScanOnce_CancelsOrphans(t *testing.T) {
	f := brokertest.New()
	m := newTestManager(f)

	txID := NewTxID()
	slID := f.AddOpen(models.Order{
		Instrument: "BTC-USDT-SWAP",
		Side:       models.SideSell,
		Type:       models.OrderStopMarket,
		Amount:     1,
		Label:      BuildLabel(RoleSL, txID),
		ReduceOnly: true,
	})
	// обычный лимитник не трогаем даже без позиции
	limitID := f.AddOpen(models.Order{
		Instrument: "BTC-USDT-SWAP",
		Side:       models.SideBuy,
		Type:       models.OrderLimit,
		Amount:     1,
		Price:      48_000,
	})

	require.NoError(t, m.ScanOnce(context.Background(), "BTC-USDT-SWAP"))

	assert.Contains(t, f.Canceled, slID)
	_, err := f.GetOrder(context.Background(), "BTC-USDT-SWAP", limitID)
	assert.NoError(t, err)

	select {
	case ev := <-m.Events():
		assert.Equal(t, EventOrphanCanceled, ev.Type)
		assert.Equal(t, txID, ev.TxID)
	default:
		t.Fatal("expected orphan_canceled event")
	}
}

func TestScanOnce_SkipsInflightAndLivePosition(t *testing.T) {
	f := brokertest.New()
	m := newTestManager(f)

	// группа в процессе выставления — скан её не режет
	txID := NewTxID()
	m.markInflight(txID)
	f.AddOpen(models.Order{
		Instrument: "BTC-USDT-SWAP",
		Type:       models.OrderStopMarket,
		Label:      BuildLabel(RoleSL, txID),
		ReduceOnly: true,
	})

	require.NoError(t, m.ScanOnce(context.Background(), "BTC-USDT-SWAP"))
	assert.Empty(t, f.Canceled)

	// при живой позиции защитные ноги легитимны
	m.unmarkInflight(txID)
	f.SetPosition(models.BrokerPosition{Instrument: "BTC-USDT-SWAP", Side: models.SideBuy, Size: 1})

	require.NoError(t, m.ScanOnce(context.Background(), "BTC-USDT-SWAP"))
	assert.Empty(t, f.Canceled)
}

func TestFlatten(t *testing.T) {
	f := brokertest.New()
	m := newTestManager(f)

	_, err := m.PlaceGroup(context.Background(), intentBTC())
	require.NoError(t, err)
	<-m.Events()

	require.NoError(t, m.Flatten(context.Background(), "BTC-USDT-SWAP"))

	pos, _ := f.GetPosition(context.Background(), "BTC-USDT-SWAP")
	assert.Nil(t, pos)
	open, _ := f.GetOpenOrders(context.Background(), "BTC-USDT-SWAP")
	assert.Empty(t, open)

	select {
	case ev := <-m.Events():
		assert.Equal(t, EventFlattened, ev.Type)
	default:
		t.Fatal("expected flattened event")
	}
}
