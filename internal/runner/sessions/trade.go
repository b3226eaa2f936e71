package sessions

import (
	"context"
	"math"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/oco"
	"trade_core/internal/risk"
	"trade_core/pkg/logger"
)

// handleSignal — один торговый цикл: параметры → сайзинг → oco-группа →
// персист. Любая ошибка здесь не валит воркер, только пропускает сигнал.
func (s *WorkerSession) handleSignal(ctx context.Context, sig models.Signal) {
	if sig.InstID != s.Job.Config.Instrument {
		return
	}

	// 0) кулдаун по символу и лимит открытых позиций
	s.mu.Lock()
	onCooldown := time.Now().Before(s.cooldownTil)
	hasPos := s.position != nil
	s.mu.Unlock()
	if onCooldown {
		return
	}
	if hasPos && s.Job.Config.MaxOpenPositions <= 1 {
		logger.Info("worker %s: [%s] position already open, signal skipped", s.WorkerID, sig.InstID)
		return
	}

	s.inflight.Add(1)
	defer s.inflight.Done()

	// 1) расчёт параметров сделки
	params, err := s.calcTradeParams(ctx, sig.Side, sig.Price)
	if err != nil {
		logger.Warn("worker %s: [%s] trade params: %v", s.WorkerID, sig.InstID, err)
		return
	}
	if params.Warning != "" {
		s.Notifier.Notify(ctx, "[%s] %s", sig.InstID, params.Warning)
	}

	// 2) группа entry + SL + TP (последовательно, с откатом)
	res, err := s.Oco.PlaceGroup(ctx, oco.GroupIntent{
		Instrument: sig.InstID,
		Side:       sig.Side,
		Size:       params.Size,
		StopLoss:   params.SL,
		TakeProfit: params.TP,
	})
	if err != nil {
		s.Notifier.Notify(ctx, "[%s] entry failed: %v", sig.InstID, err)
		s.setCooldown(s.Job.Config.CooldownPerSymbol)
		return
	}

	// 3) запись о позиции — на каждой мутации
	pos := &models.Position{
		OrderID:    res.EntryOrderID,
		Instrument: sig.InstID,
		Side:       sig.Side,
		EntryPrice: params.Entry,
		Amount:     params.Size,
		StopLoss:   params.SL,
		TakeProfit: params.TP,
		EntryTime:  time.Now(),
		SLOrderID:  res.SLOrderID,
		TPOrderID:  res.TPOrderID,
	}
	if err := s.Store.Save(ctx, s.Job.UserID, s.Job.JobID, pos); err != nil {
		// сделка уже на бирже — только алерт, откатывать её из-за БД нельзя
		s.Notifier.Alert(ctx, "[%s] position opened but record not saved: %v", sig.InstID, err)
	}
	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()
	s.setCooldown(s.Job.Config.CooldownPerSymbol)

	s.Notifier.Notify(ctx, "[%s] OPEN %s @ %.4f | SL=%.4f TP=%.4f size=%.4f | %s",
		sig.InstID, sig.Side, params.Entry, params.SL, params.TP, params.Size, s.Job.Config.Strategy)
}

type tradeParams struct {
	Entry   float64
	SL      float64
	TP      float64
	Size    float64
	Warning string
}

// calcTradeParams считает SL/TP/размер по конфигу джобы и метаданным
// инструмента.
func (s *WorkerSession) calcTradeParams(ctx context.Context, side models.Side, entry float64) (*tradeParams, error) {
	cfg := s.Job.Config

	meta, err := s.B.GetInstrumentMeta(ctx, cfg.Instrument)
	if err != nil {
		return nil, err
	}
	if entry <= 0 {
		entry = meta.LastPx
	}
	if entry <= 0 {
		return nil, models.NewError(models.ErrKindValidation, "entry price unknown")
	}

	// 1) сырой SL от StopPct
	stopPct := cfg.StopPct / 100.0
	var slRaw float64
	if side == models.SideBuy {
		slRaw = entry * (1 - stopPct)
	} else {
		slRaw = entry * (1 + stopPct)
	}

	// 2) округляем SL в безопасную сторону
	var sl float64
	if side == models.SideBuy {
		sl = risk.RoundDownToTick(slRaw, meta.TickSz)
	} else {
		sl = risk.RoundUpToTick(slRaw, meta.TickSz)
	}

	// 3) фактическая дистанция риска после округления
	riskDist := math.Abs(entry - sl)
	if riskDist <= 0 {
		return nil, models.NewError(models.ErrKindValidation, "risk distance is zero after rounding")
	}

	// 4) TP от 1R, округляем тоже в безопасную сторону
	var tp float64
	if side == models.SideBuy {
		tp = risk.RoundUpToTick(entry+cfg.TakeProfitRR*riskDist, meta.TickSz)
	} else {
		tp = risk.RoundDownToTick(entry-cfg.TakeProfitRR*riskDist, meta.TickSz)
	}

	// 5) сайзинг от денежного риска
	bal, err := s.B.GetBalance(ctx, "USDT")
	if err != nil {
		return nil, err
	}
	sized, err := risk.CalcSize(risk.Input{
		Balance:        bal.Equity,
		EntryPrice:     entry,
		StopLossPrice:  sl,
		RiskPercent:    cfg.RiskPct / 100.0,
		MaxLeverage:    cfg.MaxLeverage,
		LotSize:        meta.LotSz,
		MinTradeAmount: meta.MinSz,
	})
	if err != nil {
		return nil, err
	}

	return &tradeParams{
		Entry:   entry,
		SL:      sl,
		TP:      tp,
		Size:    sized.Quantity,
		Warning: sized.Warning,
	}, nil
}

func (s *WorkerSession) setCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.cooldownTil = time.Now().Add(d)
	s.mu.Unlock()
}
