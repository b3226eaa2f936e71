package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_core/internal/broker"
	"trade_core/internal/models"
)

// Fake — брокер для тестов: ордера в памяти, маркет-ордера исполняются сразу.
type Fake struct {
	mu  sync.Mutex
	seq int

	Open      map[string]*models.Order          // живые (неисполненные) ордера
	Positions map[string]*models.BrokerPosition // instrument -> позиция
	Bal       models.Balance
	Meta      models.Instrument

	Placed   []broker.OrderRequest
	Canceled []string

	// хуки для симуляции отказов
	PlaceErr  func(req broker.OrderRequest) error
	CancelErr func(orderID string) error
}

var _ broker.Broker = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Open:      make(map[string]*models.Order),
		Positions: make(map[string]*models.BrokerPosition),
		Bal:       models.Balance{Currency: "USDT", Available: 10_000, Equity: 10_000},
		Meta: models.Instrument{
			InstID: "BTC-USDT-SWAP",
			LastPx: 50_000,
			LotSz:  0.001,
			MinSz:  0.001,
			TickSz: 0.1,
			CtVal:  1,
		},
	}
}

func (f *Fake) nextID() string {
	f.seq++
	return fmt.Sprintf("ord-%d", f.seq)
}

func (f *Fake) PlaceOrder(_ context.Context, req broker.OrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PlaceErr != nil {
		if err := f.PlaceErr(req); err != nil {
			return nil, err
		}
	}

	f.Placed = append(f.Placed, req)

	o := &models.Order{
		OrderID:    f.nextID(),
		Instrument: req.Instrument,
		Side:       req.Side,
		Type:       req.Type,
		Amount:     req.Amount,
		Price:      req.Price,
		Label:      req.Label,
		ReduceOnly: req.ReduceOnly,
		Status:     models.OrderStatusLive,
		CreatedAt:  time.Now(),
	}

	if req.Type == models.OrderMarket {
		o.Status = models.OrderStatusFilled
		if req.ReduceOnly {
			delete(f.Positions, req.Instrument)
		} else {
			f.Positions[req.Instrument] = &models.BrokerPosition{
				Instrument: req.Instrument,
				Side:       req.Side,
				Size:       req.Amount,
				EntryPrice: f.Meta.LastPx,
			}
		}
		return o, nil
	}

	f.Open[o.OrderID] = o
	return o, nil
}

func (f *Fake) CancelOrder(_ context.Context, _ string, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CancelErr != nil {
		if err := f.CancelErr(orderID); err != nil {
			return err
		}
	}
	if _, ok := f.Open[orderID]; !ok {
		return models.NewError(models.ErrKindBrokerRejected, "order not found: "+orderID)
	}
	delete(f.Open, orderID)
	f.Canceled = append(f.Canceled, orderID)
	return nil
}

func (f *Fake) CancelAllOrders(_ context.Context, instrument string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, o := range f.Open {
		if o.Instrument == instrument {
			delete(f.Open, id)
			f.Canceled = append(f.Canceled, id)
		}
	}
	return nil
}

func (f *Fake) GetOpenOrders(_ context.Context, instrument string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Order, 0, len(f.Open))
	for _, o := range f.Open {
		if instrument == "" || o.Instrument == instrument {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *Fake) GetOrder(_ context.Context, _ string, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if o, ok := f.Open[orderID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, models.NewError(models.ErrKindBrokerRejected, "order not found: "+orderID)
}

func (f *Fake) GetPosition(_ context.Context, instrument string) (*models.BrokerPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.Positions[instrument]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *Fake) GetBalance(_ context.Context, _ string) (models.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Bal, nil
}

func (f *Fake) GetInstrumentMeta(_ context.Context, _ string) (models.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Meta, nil
}

// AddOpen кладёт живой ордер напрямую (для сценариев реконсиляции).
func (f *Fake) AddOpen(o models.Order) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.OrderID == "" {
		o.OrderID = f.nextID()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusLive
	}
	cp := o
	f.Open[o.OrderID] = &cp
	return o.OrderID
}

// SetPosition выставляет живую позицию напрямую.
func (f *Fake) SetPosition(p models.BrokerPosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	f.Positions[p.Instrument] = &cp
}
