package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderMarket      OrderType = "market"
	OrderLimit       OrderType = "limit"
	OrderStopMarket  OrderType = "stop_market"
	OrderTakeProfit  OrderType = "take_profit"
)

type OrderStatus string

const (
	OrderStatusLive            OrderStatus = "live"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Order — абстрактный ордер брокера. Label — единственная долговечная связка
// ног OCO-группы, никакой побочной таблицы нет.
type Order struct {
	OrderID    string
	Instrument string
	Side       Side
	Type       OrderType
	Amount     float64
	Price      float64
	Label      string
	ReduceOnly bool
	Status     OrderStatus
	CreatedAt  time.Time
}

// BrokerPosition — живая позиция на бирже (источник правды, не кэш).
type BrokerPosition struct {
	Instrument string
	Side       Side
	Size       float64
	EntryPrice float64
	MarkPrice  float64
	UnrealPnl  float64
}

type Balance struct {
	Currency  string
	Available float64
	Equity    float64
}

// Instrument — торговые параметры инструмента с биржи.
type Instrument struct {
	InstID   string
	LastPx   float64
	LotSz    float64
	MinSz    float64
	TickSz   float64
	CtVal    float64
	MaxMktSz float64
}
