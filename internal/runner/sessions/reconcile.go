package sessions

import (
	"context"

	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// startupReconcile выполняется на холодном старте до каких-либо торговых
// действий: сверяем сохранённую запись с брокером и приводим обе стороны
// в согласие. Только после этого воркер начинает принимать сигналы.
func (s *WorkerSession) startupReconcile(ctx context.Context) error {
	persisted, err := s.Store.Get(ctx, s.Job.UserID, s.Job.JobID)
	if err != nil {
		return err
	}

	res, err := s.Rec.Reconcile(ctx, s.Job.Config.Instrument, persisted)
	if err != nil {
		return err
	}
	if err := s.Rec.Apply(ctx, s.Job.Config.Instrument, res); err != nil {
		return err
	}

	for _, a := range res.Actions {
		if a.Type == models.ReconAlert {
			s.Notifier.Alert(ctx, "[%s] reconcile: %s", s.Job.Config.Instrument, a.Message)
		}
	}

	switch {
	case res.Matched == nil && persisted != nil:
		// записи больше быть не должно
		if err := s.Store.Delete(ctx, s.Job.UserID, s.Job.JobID); err != nil {
			return err
		}
		logger.Info("worker %s: stale position record cleared", s.WorkerID)

	case res.Matched != nil:
		// возобновляем мониторинг (возможно, с перепривязанными id)
		if err := s.Store.Save(ctx, s.Job.UserID, s.Job.JobID, res.Matched); err != nil {
			return err
		}
		s.mu.Lock()
		s.position = res.Matched
		s.mu.Unlock()
		logger.Info("worker %s: restored position %s @ %.4f",
			s.WorkerID, res.Matched.Instrument, res.Matched.EntryPrice)
	}
	return nil
}
