package router

import (
	"sync"
	"sync/atomic"
	"time"

	"trade_core/internal/broker"
	"trade_core/internal/models"
	"trade_core/internal/runner"
	"trade_core/internal/runner/sessions"
)

type Config struct {
	DrainInterval       time.Duration
	HealthCheckInterval time.Duration
	RestartCap          int
	HeartbeatTimeout    time.Duration // running без heartbeat дольше — считается упавшим

	GroupTimeout       time.Duration
	OrphanScanInterval time.Duration
	BrokerCallTimeout  time.Duration
	BrokerRetries      int

	SignalQueueMax int
}

func (c *Config) withDefaults() {
	if c.DrainInterval <= 0 {
		c.DrainInterval = 2 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 15 * time.Second
	}
	if c.RestartCap <= 0 {
		c.RestartCap = 3
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 6 * sessions.HeartbeatInterval
	}
	if c.SignalQueueMax <= 0 {
		c.SignalQueueMax = 64
	}
}

// Router — оркестратор: очередь заявок, реестр воркеров, допуск по тарифу.
// Реестры мутируют только drain-цикл, health-цикл и явные start/stop;
// статусные чтения ходят под RLock и писателей не блокируют.
type Router struct {
	cfg Config

	queue *runner.JobQueue
	ents  *runner.Entitlements

	store     sessions.PositionStore
	notifier  sessions.Notifier
	newBroker broker.Factory

	mu      sync.RWMutex
	workers map[string]*sessions.WorkerSession // workerID -> сессия

	// single-flight: drain и health не должны идти параллельно сами с собой
	draining atomic.Bool
	healing  atomic.Bool
}

func NewRouter(cfg Config, queue *runner.JobQueue, ents *runner.Entitlements,
	store sessions.PositionStore, notifier sessions.Notifier, newBroker broker.Factory) *Router {

	cfg.withDefaults()
	return &Router{
		cfg:       cfg,
		queue:     queue,
		ents:      ents,
		store:     store,
		notifier:  notifier,
		newBroker: newBroker,
		workers:   make(map[string]*sessions.WorkerSession),
	}
}

// activeWorkers — число живых воркеров пользователя. Останавливающийся
// воркер уже не считается: сразу после stop новый старт должен проходить.
func (r *Router) activeWorkers(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.workers {
		if s.Job.UserID != userID {
			continue
		}
		switch s.Status() {
		case models.WorkerStarting, models.WorkerRunning:
			n++
		}
	}
	return n
}

func (r *Router) getWorker(workerID string) (*sessions.WorkerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.workers[workerID]
	return s, ok
}

// QueueStats — агрегаты очереди (для health-эндпоинтов).
func (r *Router) QueueStats() models.QueueStats {
	return r.queue.Stats()
}

// OnSignal раздаёт рыночный сигнал всем подходящим воркерам. Забитая
// очередь сессии — дроп, не блокировка.
func (r *Router) OnSignal(sig models.Signal) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.workers {
		if s.Status() != models.WorkerRunning {
			continue
		}
		if s.Job.Config.Instrument != sig.InstID || s.Job.Config.Timeframe != sig.TF {
			continue
		}
		select {
		case s.Queue <- sig:
		default:
			// воркер не успевает — сигнал по свече устаревает мгновенно
		}
	}
}
