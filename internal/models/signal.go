package models

import "time"

type Signal struct {
	InstID   string
	TF       string
	Side     Side
	Price    float64
	Strategy string
	Reason   string
	At       time.Time
}

type CandleTick struct {
	InstID string
	TF     string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Start  time.Time
	End    time.Time
}

// TradeParams — рассчитанные параметры входа (до выставления ордеров).
type TradeParams struct {
	Entry     float64
	SL        float64
	TP        float64
	Size      float64
	Leverage  float64
	RiskDist  float64
	RiskPct   float64
	RR        float64
	TickSize  float64
	Direction Side
}
