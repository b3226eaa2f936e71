package router

import (
	"context"
	"fmt"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// RunHealthLoop — медленный надзорный цикл: рестарты упавших воркеров и
// свип истёкших тарифов.
func (r *Router) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.HealthCheck(ctx)
		}
	}
}

// HealthCheck — один надзорный проход. Single-flight, как и drain.
func (r *Router) HealthCheck(ctx context.Context) {
	if !r.healing.CompareAndSwap(false, true) {
		return
	}
	defer r.healing.Store(false)

	// 1. Истёкшие тарифы — до рестартов: даунгрейд может их заблокировать
	if n := r.ents.SweepExpired(ctx); n > 0 {
		logger.Info("health: downgraded %d expired entitlements", n)
	}

	// 2. Снимок реестра, чтобы не держать лок на время обхода.
	// Running без heartbeat дольше таймаута — тоже упавший: цикл завис.
	now := time.Now()
	r.mu.RLock()
	crashed := make([]string, 0)
	stale := make([]string, 0)
	for id, s := range r.workers {
		switch {
		case s.Status() == models.WorkerCrashed:
			crashed = append(crashed, id)
		case s.Stale(now, r.cfg.HeartbeatTimeout):
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		if s, ok := r.getWorker(id); ok {
			logger.Warn("worker %s: heartbeat stale, marking crashed", id)
			s.MarkCrashed()
			crashed = append(crashed, id)
		}
	}

	for _, id := range crashed {
		r.restartCrashed(ctx, id)
	}
}

func (r *Router) restartCrashed(ctx context.Context, workerID string) {
	sess, ok := r.getWorker(workerID)
	if !ok || sess.Status() != models.WorkerCrashed {
		return
	}
	job := sess.Job

	// джоба уже терминальна: воркер с исчерпанным потолком остаётся в
	// реестре, но повторно его не считаем и не алертим
	if j, ok := r.queue.Get(job.JobID); ok && j.Status.IsTerminal() {
		return
	}

	// считаем само падение: исчерпанный воркер остаётся в реестре со
	// счётчиком на потолке — он виден в статусах как crashed
	crashes := sess.IncRestart()
	if crashes >= r.cfg.RestartCap {
		r.queue.SetStatus(job.JobID, models.JobCrashed,
			fmt.Sprintf("restart cap exhausted (%d/%d)", crashes, r.cfg.RestartCap))
		r.notifier.Alert(ctx, "job %s crashed permanently after %d crashes", job.JobID, crashes)
		return
	}

	if err := r.ents.Admit(ctx, job.UserID, r.activeWorkers(job.UserID)); err != nil {
		r.queue.SetStatus(job.JobID, models.JobCrashed, "restart denied: "+err.Error())
		logger.Warn("job %s: restart denied: %v", job.JobID, err)
		return
	}

	r.mu.Lock()
	delete(r.workers, workerID)
	r.mu.Unlock()

	replacement := r.spawn(job, crashes)
	logger.Info("worker %s restarted as %s (attempt %d/%d)",
		workerID, replacement.WorkerID, crashes, r.cfg.RestartCap)
}
