package models

import "time"

// Position — персистентная запись об открытой сделке. Это подсказка, а не
// источник правды: на холодном старте запись сверяется с живым состоянием
// биржи сервисом реконсиляции.
type Position struct {
	OrderID    string    `json:"order_id"`
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	Amount     float64   `json:"amount"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	EntryTime  time.Time `json:"entry_time"`
	SLOrderID  string    `json:"sl_order_id,omitempty"`
	TPOrderID  string    `json:"tp_order_id,omitempty"`
}

type ReconActionType string

const (
	ReconRestorePosition ReconActionType = "restore_position"
	ReconCancelOrder     ReconActionType = "cancel_order"
	ReconAlert           ReconActionType = "alert"
)

// ReconciliationAction — корректирующее действие, выполняется один раз,
// не персистится.
type ReconciliationAction struct {
	Type    ReconActionType
	OrderID string
	Message string
	Order   *Order
}
