package service

import (
	"fmt"
	"sync"
	"time"

	"trade_core/internal/models"
)

type emaState struct {
	short, long float64
	seen        int
	lastAbove   bool
}

// EMASource — минимальный сигнальный источник: пересечение двух EMA по
// закрытым свечам. Сигнал только в момент смены стороны, не на каждой свече.
type EMASource struct {
	shortN, longN int

	mu    sync.Mutex
	insts map[string]*emaState // instID:tf -> состояние
}

func NewEMASource(shortN, longN int) *EMASource {
	if shortN <= 0 {
		shortN = 9
	}
	if longN <= shortN {
		longN = shortN * 2
	}
	return &EMASource{
		shortN: shortN,
		longN:  longN,
		insts:  make(map[string]*emaState),
	}
}

// OnTick обновляет EMA и возвращает сигнал, если произошло пересечение.
// До прогрева (longN свечей) сигналов нет.
func (e *EMASource) OnTick(ct models.CandleTick) *models.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := ct.InstID + ":" + ct.TF
	st, ok := e.insts[key]
	if !ok {
		st = &emaState{short: ct.Close, long: ct.Close}
		e.insts[key] = st
	}

	st.short = ema(st.short, ct.Close, e.shortN)
	st.long = ema(st.long, ct.Close, e.longN)
	st.seen++

	above := st.short > st.long
	defer func() { st.lastAbove = above }()

	if st.seen <= e.longN || above == st.lastAbove {
		return nil
	}

	side := models.SideSell
	if above {
		side = models.SideBuy
	}
	return &models.Signal{
		InstID:   ct.InstID,
		TF:       ct.TF,
		Side:     side,
		Price:    ct.Close,
		Strategy: "ema_cross",
		Reason:   fmt.Sprintf("ema%d/%d cross, close=%.4f", e.shortN, e.longN, ct.Close),
		At:       time.Now(),
	}
}

func ema(prev, px float64, n int) float64 {
	k := 2.0 / (float64(n) + 1.0)
	return px*k + prev*(1-k)
}
