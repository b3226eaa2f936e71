package models

import (
	"fmt"
	"time"
)

// RunnerConfig — торговая конфигурация одной джобы. Валидируется один раз
// на границе (StartRunner), до первого обращения к брокеру: дальше по коду
// значения считаются корректными.
type RunnerConfig struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`

	RiskPct      float64 `json:"risk_pct"`       // риск на сделку, % от equity
	StopPct      float64 `json:"stop_pct"`       // дистанция SL от цены, %
	TakeProfitRR float64 `json:"take_profit_rr"` // TP = RR * дистанция до SL
	MaxLeverage  float64 `json:"max_leverage"`

	MaxOpenPositions int `json:"max_open_positions"`

	// Стратегия (минимум, который нужен сигнальному источнику)
	Strategy string `json:"strategy"`
	EMAShort int    `json:"ema_short"`
	EMALong  int    `json:"ema_long"`

	CooldownPerSymbol time.Duration `json:"cooldown_per_symbol"`
}

func (c *RunnerConfig) Validate() error {
	if c.Instrument == "" {
		return NewError(ErrKindValidation, "instrument is empty")
	}
	if c.Timeframe == "" {
		return NewError(ErrKindValidation, "timeframe is empty")
	}
	if c.RiskPct <= 0 || c.RiskPct > 100 {
		return NewError(ErrKindValidation, fmt.Sprintf("risk_pct out of range: %.4f", c.RiskPct))
	}
	if c.StopPct <= 0 || c.StopPct >= 100 {
		return NewError(ErrKindValidation, fmt.Sprintf("stop_pct out of range: %.4f", c.StopPct))
	}
	if c.TakeProfitRR <= 0 {
		return NewError(ErrKindValidation, fmt.Sprintf("take_profit_rr <= 0: %.4f", c.TakeProfitRR))
	}
	if c.MaxLeverage <= 0 {
		return NewError(ErrKindValidation, fmt.Sprintf("max_leverage <= 0: %.4f", c.MaxLeverage))
	}
	if c.MaxOpenPositions < 0 {
		return NewError(ErrKindValidation, "max_open_positions < 0")
	}
	if c.EMAShort > 0 && c.EMALong > 0 && c.EMAShort >= c.EMALong {
		return NewError(ErrKindValidation, "ema_short must be < ema_long")
	}
	return nil
}
