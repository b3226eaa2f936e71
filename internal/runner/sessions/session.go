package sessions

import (
	"context"
	"sync"
	"time"

	"trade_core/internal/broker"
	"trade_core/internal/models"
	"trade_core/internal/oco"
	"trade_core/internal/recon"
	"trade_core/pkg/logger"

	"github.com/google/uuid"
)

// HeartbeatInterval — шаг heartbeat работающего воркера; надзорный цикл
// считает воркера зависшим после нескольких пропущенных тактов.
const HeartbeatInterval = 5 * time.Second

// PositionStore — персистентность записи о позиции, одна на ключ user+job.
// Ключ именно джоба, не воркер: рестартованный воркер получает новый id,
// а запись о живой позиции обязан увидеть тот же.
type PositionStore interface {
	Save(ctx context.Context, userID int64, jobID string, pos *models.Position) error
	Get(ctx context.Context, userID int64, jobID string) (*models.Position, error)
	Delete(ctx context.Context, userID int64, jobID string) error
}

// Notifier — канал уведомлений пользователя/оператора.
type Notifier interface {
	Notify(ctx context.Context, format string, args ...any)
	Alert(ctx context.Context, format string, args ...any)
}

// WorkerSession — исполнитель одной джобы: свой брокер-клиент, свой
// oco-менеджер, своя очередь сигналов. Сессии друг про друга не знают.
type WorkerSession struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	WorkerID string
	Job      *models.RunnerJob

	B        broker.Broker
	Oco      *oco.Manager
	Rec      *recon.Reconciler
	Store    PositionStore
	Notifier Notifier

	Queue chan models.Signal

	mu            sync.Mutex
	status        models.WorkerStatus
	startedAt     time.Time
	stoppedAt     *time.Time
	restartCount  int
	lastHeartbeat *time.Time
	position      *models.Position
	cooldownTil   time.Time

	// любая выставляемая группа держит wg: Stop ждёт её завершения,
	// чтобы не оставить полувыставленную группу
	inflight sync.WaitGroup
}

type Deps struct {
	Broker   broker.Broker
	Oco      *oco.Manager
	Rec      *recon.Reconciler
	Store    PositionStore
	Notifier Notifier
	QueueMax int
}

func New(job *models.RunnerJob, d Deps) *WorkerSession {
	ctx, cancel := context.WithCancel(context.Background())
	if d.QueueMax <= 0 {
		d.QueueMax = 64
	}
	return &WorkerSession{
		Ctx:      ctx,
		Cancel:   cancel,
		WorkerID: uuid.NewString(),
		Job:      job,

		B:        d.Broker,
		Oco:      d.Oco,
		Rec:      d.Rec,
		Store:    d.Store,
		Notifier: d.Notifier,

		Queue:     make(chan models.Signal, d.QueueMax),
		status:    models.WorkerStarting,
		startedAt: time.Now(),
	}
}

// Run — главный цикл воркера. Паника внутри не роняет процесс: воркер
// помечается crashed, рестарт решает health-цикл оркестратора.
func (s *WorkerSession) Run() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker %s panic: %v", s.WorkerID, r)
			s.setStatus(models.WorkerCrashed)
		}
	}()

	// 1. Реконсиляция до любого живого мониторинга
	if err := s.startupReconcile(s.Ctx); err != nil {
		logger.Error("worker %s: startup reconcile: %v", s.WorkerID, err)
		s.setStatus(models.WorkerCrashed)
		return
	}

	// 2. Фоновый скан сирот на нашем инструменте
	go s.Oco.RunOrphanScan(s.Ctx, s.Job.Config.Instrument)

	s.setStatus(models.WorkerRunning)
	s.beat()
	logger.Info("worker %s started: user=%d %s %s",
		s.WorkerID, s.Job.UserID, s.Job.Config.Instrument, s.Job.Config.Strategy)

	hb := time.NewTicker(HeartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-s.Ctx.Done():
			s.finishStop()
			return

		case <-hb.C:
			s.beat()

		case ev := <-s.Oco.Events():
			s.onOcoEvent(ev)

		case sig := <-s.Queue:
			s.handleSignal(s.Ctx, sig)
		}
	}
}

// Stop сигналит циклу и ждёт завершения текущей oco-группы: прерывать
// полувыставленную группу нельзя.
func (s *WorkerSession) Stop() {
	s.setStatus(models.WorkerStopping)
	s.Cancel()
	s.inflight.Wait()
}

func (s *WorkerSession) finishStop() {
	s.inflight.Wait()
	s.mu.Lock()
	if s.status != models.WorkerCrashed {
		s.status = models.WorkerStopped
	}
	now := time.Now()
	s.stoppedAt = &now
	s.mu.Unlock()
	logger.Info("worker %s stopped", s.WorkerID)
}

// onOcoEvent: скан сирот снял защиту — если она была нашей, позиция уже
// закрыта на бирже, чистим запись.
func (s *WorkerSession) onOcoEvent(ev oco.Event) {
	switch ev.Type {
	case oco.EventOrphanCanceled, oco.EventFlattened:
		s.mu.Lock()
		had := s.position != nil
		s.position = nil
		s.mu.Unlock()
		if had {
			if err := s.Store.Delete(s.Ctx, s.Job.UserID, s.Job.JobID); err != nil {
				logger.Warn("worker %s: delete position record: %v", s.WorkerID, err)
			}
		}
	}
}

func (s *WorkerSession) setStatus(st models.WorkerStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *WorkerSession) Status() models.WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *WorkerSession) beat() {
	now := time.Now()
	s.mu.Lock()
	s.lastHeartbeat = &now
	s.mu.Unlock()
}

// Stale: воркер числится running, но heartbeat старше таймаута.
func (s *WorkerSession) Stale(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == models.WorkerRunning &&
		s.lastHeartbeat != nil && now.Sub(*s.lastHeartbeat) > timeout
}

func (s *WorkerSession) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartCount
}

func (s *WorkerSession) IncRestart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartCount++
	return s.restartCount
}

// InheritRestarts переносит счётчик рестартов в новую сессию той же джобы.
func (s *WorkerSession) InheritRestarts(n int) {
	s.mu.Lock()
	s.restartCount = n
	s.mu.Unlock()
}

// View — снэпшот для статусных запросов, без указателей наружу.
func (s *WorkerSession) View() models.WorkerView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.WorkerView{
		WorkerID:     s.WorkerID,
		JobID:        s.Job.JobID,
		StrategyID:   s.Job.StrategyID,
		Status:       s.status,
		StartedAt:    s.startedAt,
		RestartCount: s.restartCount,
	}
}

// MarkCrashed — для health-цикла: воркер перестал подавать признаки жизни.
func (s *WorkerSession) MarkCrashed() {
	s.setStatus(models.WorkerCrashed)
	s.Cancel()
}

// Flatten делегирует закрытие позиции oco-менеджеру и чистит запись.
func (s *WorkerSession) Flatten(ctx context.Context) error {
	if err := s.Oco.Flatten(ctx, s.Job.Config.Instrument); err != nil {
		return err
	}
	s.mu.Lock()
	s.position = nil
	s.mu.Unlock()
	return s.Store.Delete(ctx, s.Job.UserID, s.Job.JobID)
}

func (s *WorkerSession) HasPosition() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position != nil
}
