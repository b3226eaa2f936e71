package router

import (
	"context"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/oco"
	"trade_core/internal/recon"
	"trade_core/internal/runner/sessions"
	"trade_core/pkg/logger"
)

// RunDrainLoop — периодический разбор очереди.
func (r *Router) RunDrainLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.DrainQueue(ctx)
		}
	}
}

// DrainQueue забирает все queued джобы. Single-flight: второй вызов поверх
// идущего — no-op, оба мутируют общий реестр воркеров.
func (r *Router) DrainQueue(ctx context.Context) {
	if !r.draining.CompareAndSwap(false, true) {
		return
	}
	defer r.draining.Store(false)

	for {
		job := r.queue.DequeueNext()
		if job == nil {
			return
		}

		// тариф мог измениться с момента постановки — перепроверяем;
		// отказ здесь терминален, без ретрая
		if err := r.ents.Admit(ctx, job.UserID, r.activeWorkers(job.UserID)); err != nil {
			r.queue.SetStatus(job.JobID, models.JobFailed, err.Error())
			logger.Warn("job %s failed at dequeue: %v", job.JobID, err)
			continue
		}

		r.spawn(job, 0)
	}
}

// spawn собирает сессию под джобу и запускает её цикл.
func (r *Router) spawn(job *models.RunnerJob, inheritedRestarts int) *sessions.WorkerSession {
	b := r.newBroker(job.Credentials)

	ocoMgr := oco.NewManager(b, oco.Config{
		GroupTimeout:      r.cfg.GroupTimeout,
		ScanInterval:      r.cfg.OrphanScanInterval,
		BrokerCallTimeout: r.cfg.BrokerCallTimeout,
		Retries:           r.cfg.BrokerRetries,
	})

	sess := sessions.New(job, sessions.Deps{
		Broker:   b,
		Oco:      ocoMgr,
		Rec:      recon.NewReconciler(b, r.cfg.BrokerCallTimeout, r.cfg.BrokerRetries),
		Store:    r.store,
		Notifier: r.notifier,
		QueueMax: r.cfg.SignalQueueMax,
	})
	sess.InheritRestarts(inheritedRestarts)

	r.mu.Lock()
	r.workers[sess.WorkerID] = sess
	r.mu.Unlock()

	r.queue.SetStatus(job.JobID, models.JobRunning, "")
	go sess.Run()

	logger.Info("worker %s spawned for job %s (restarts=%d)", sess.WorkerID, job.JobID, inheritedRestarts)
	return sess
}
