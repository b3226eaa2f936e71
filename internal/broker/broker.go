package broker

import (
	"context"

	"trade_core/internal/models"
)

// OrderRequest — запрос на выставление одного ордера. Label обязателен для
// ног OCO-группы: это единственная связка между ними на стороне биржи.
type OrderRequest struct {
	Instrument string
	Side       models.Side
	Type       models.OrderType
	Amount     float64
	Price      float64 // для stop/tp — триггерная цена
	Label      string
	ReduceOnly bool
}

// Factory строит клиент под креденшалы конкретного пользователя/джобы.
type Factory func(creds models.BrokerCredentials) Broker

// Broker — абстрактный биржевой клиент. Конкретный адаптер один (OKX-образный),
// но ядро ничего не знает про его wire-формат.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, instrument, orderID string) error
	CancelAllOrders(ctx context.Context, instrument string) error
	GetOpenOrders(ctx context.Context, instrument string) ([]models.Order, error)
	GetOrder(ctx context.Context, instrument, orderID string) (*models.Order, error)
	GetPosition(ctx context.Context, instrument string) (*models.BrokerPosition, error)
	GetBalance(ctx context.Context, currency string) (models.Balance, error)
	GetInstrumentMeta(ctx context.Context, instID string) (models.Instrument, error)
}
