package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"trade_core/internal/models"
)

// Классифицированные ошибки сайзинга. Все — валидационные: не ретраятся,
// отдаются вызывающему как есть.
var (
	ErrInvalidInput        = models.NewError(models.ErrKindValidation, "invalid sizing input")
	ErrLeverageExceeded    = models.NewError(models.ErrKindValidation, "leverage exceeds maximum")
	ErrBelowMinimum        = models.NewError(models.ErrKindValidation, "size below minimum trade amount")
	ErrInsufficientBalance = models.NewError(models.ErrKindValidation, "insufficient balance")
)

const defaultSoftLeverageWarn = 10.0

type Input struct {
	Balance        float64
	EntryPrice     float64
	StopLossPrice  float64
	RiskPercent    float64 // доля, напр. 0.01 => 1% equity
	MaxLeverage    float64
	LotSize        float64
	MinTradeAmount float64

	// мягкий порог: при превышении — варнинг, не отказ
	SoftLeverageWarn float64
}

type Result struct {
	Quantity   float64
	Leverage   float64
	RiskAmount float64

	// непустой, если плечо выше мягкого порога; исполнение не блокирует
	Warning string
}

// CalcSize считает размер позиции так, чтобы потеря по стоп-лоссу была равна
// RiskPercent от баланса. Детерминированная, без I/O.
//
//	riskAmount = balance * riskPercent
//	quantity   = riskAmount / |entry - sl|   (в монетах)
//	leverage   = quantity * entry / balance
func CalcSize(in Input) (Result, error) {
	if bad(in.EntryPrice) || bad(in.StopLossPrice) || bad(in.RiskPercent) || bad(in.MaxLeverage) {
		return Result{}, fmt.Errorf("%w: entry=%.8f sl=%.8f risk=%.8f maxLev=%.2f",
			ErrInvalidInput, in.EntryPrice, in.StopLossPrice, in.RiskPercent, in.MaxLeverage)
	}
	if in.Balance <= 0 || math.IsNaN(in.Balance) || math.IsInf(in.Balance, 0) {
		return Result{}, fmt.Errorf("%w: balance=%.8f", ErrInsufficientBalance, in.Balance)
	}
	if in.RiskPercent > 1 {
		return Result{}, fmt.Errorf("%w: riskPercent > 1 (%.4f)", ErrInvalidInput, in.RiskPercent)
	}

	// нулевая дистанция до стопа = деление на ноль
	stopDist := math.Abs(in.EntryPrice - in.StopLossPrice)
	if stopDist == 0 {
		return Result{}, fmt.Errorf("%w: stopLossPrice == entryPrice", ErrInvalidInput)
	}

	riskAmount := in.Balance * in.RiskPercent

	// 1. Сырой размер по риску
	rawQty := riskAmount / stopDist
	if rawQty <= 0 || math.IsNaN(rawQty) || math.IsInf(rawQty, 0) {
		return Result{}, fmt.Errorf("%w: rawQty=%.8f", ErrInvalidInput, rawQty)
	}

	// 2. Округляем ВНИЗ до шага lotSize
	lot := in.LotSize
	if lot <= 0 {
		lot = 1
	}
	steps := math.Floor(rawQty/lot + 1e-9)
	qty := stepsToQty(steps, lot)

	if qty < in.MinTradeAmount || qty <= 0 {
		return Result{}, fmt.Errorf("%w: qty=%.8f min=%.8f", ErrBelowMinimum, qty, in.MinTradeAmount)
	}

	// 3. Плечо по факту (после округления)
	leverage := qty * in.EntryPrice / in.Balance
	if leverage > in.MaxLeverage {
		return Result{}, fmt.Errorf("%w: leverage=%.2f max=%.2f", ErrLeverageExceeded, leverage, in.MaxLeverage)
	}

	res := Result{
		Quantity:   qty,
		Leverage:   leverage,
		RiskAmount: riskAmount,
	}

	soft := in.SoftLeverageWarn
	if soft <= 0 {
		soft = defaultSoftLeverageWarn
	}
	if leverage > soft {
		res.Warning = fmt.Sprintf("leverage %.2fx above soft threshold %.2fx", leverage, soft)
	}

	return res, nil
}

func bad(v float64) bool {
	return v <= 0 || math.IsNaN(v) || math.IsInf(v, 0)
}

// stepsToQty переводит целое число шагов в количество. Голое steps*lot на
// больших объёмах дрейфует мимо кратности шагу, поэтому произведение
// прибивается к десятичной точности самого шага.
func stepsToQty(steps, lot float64) float64 {
	d := decimalsOf(lot)
	if d == 0 {
		return steps * lot
	}
	p := math.Pow(10, float64(d))
	return math.Round(steps*lot*p) / p
}

func decimalsOf(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// RoundDownToTick / RoundUpToTick — округление цен к шагу тика
// "в безопасную сторону" (SL вниз для лонга, TP вверх и т.д.).
func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	return math.Floor(px/tick+1e-12) * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	return math.Ceil(px/tick-1e-12) * tick
}
