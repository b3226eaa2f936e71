package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"trade_core/internal/broker"
	"trade_core/internal/broker/brokertest"
	"trade_core/internal/models"
	"trade_core/internal/runner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----- фейки хранилищ и нотификатора -----

type memPosStore struct {
	mu   sync.Mutex
	data map[string]*models.Position
}

func newMemPosStore() *memPosStore { return &memPosStore{data: make(map[string]*models.Position)} }

func key(userID int64, jobID string) string { return fmt.Sprintf("%d/%s", userID, jobID) }

func (m *memPosStore) Save(_ context.Context, userID int64, jobID string, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pos
	m.data[key(userID, jobID)] = &cp
	return nil
}

func (m *memPosStore) Get(_ context.Context, userID int64, jobID string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.data[key(userID, jobID)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memPosStore) Delete(_ context.Context, userID int64, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key(userID, jobID))
	return nil
}

type memEntStore struct {
	mu   sync.Mutex
	data map[int64]*models.Entitlement
}

func newMemEntStore() *memEntStore { return &memEntStore{data: make(map[int64]*models.Entitlement)} }

func (m *memEntStore) Get(_ context.Context, userID int64) (*models.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[userID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *memEntStore) Upsert(_ context.Context, ent *models.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ent
	m.data[ent.UserID] = &cp
	return nil
}

func (m *memEntStore) ListExpired(_ context.Context, now time.Time) ([]*models.Entitlement, error) {
	return nil, nil
}

type recNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *recNotifier) Notify(_ context.Context, _ string, _ ...any) {}

func (n *recNotifier) Alert(_ context.Context, format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, fmt.Sprintf(format, args...))
}

func (n *recNotifier) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// ----- сборка роутера под тест -----

type testEnv struct {
	store    *memPosStore
	notifier *recNotifier
	fake     *brokertest.Fake // один брокер на все сессии роутера
}

func newTestRouter(t *testing.T) *Router {
	r, _ := newTestRouterEnv(t)
	return r
}

func newTestRouterEnv(t *testing.T) (*Router, *testEnv) {
	t.Helper()
	env := &testEnv{
		store:    newMemPosStore(),
		notifier: &recNotifier{},
		fake:     brokertest.New(),
	}
	ents := runner.NewEntitlements(newMemEntStore())
	factory := broker.Factory(func(_ models.BrokerCredentials) broker.Broker {
		return env.fake
	})
	r := NewRouter(Config{
		DrainInterval:       time.Hour, // циклы дёргаем вручную
		HealthCheckInterval: time.Hour,
		RestartCap:          3,
	}, runner.NewJobQueue(), ents, env.store, env.notifier, factory)
	return r, env
}

func validStart(userID int64) StartRequest {
	return StartRequest{
		UserID:     userID,
		StrategyID: "ema_cross",
		BrokerID:   "okx",
		Credentials: models.BrokerCredentials{
			APIKey: "k", APISecret: "s", Passphrase: "p",
		},
		Config: models.RunnerConfig{
			Instrument:   "BTC-USDT-SWAP",
			Timeframe:    "15m",
			RiskPct:      1,
			StopPct:      0.5,
			TakeProfitRR: 3,
			MaxLeverage:  20,
		},
	}
}

func waitRunning(t *testing.T, r *Router, userID int64) models.WorkerView {
	t.Helper()
	var view models.WorkerView
	require.Eventually(t, func() bool {
		for _, w := range r.StatusForUser(context.Background(), userID).Workers {
			if w.Status == models.WorkerRunning {
				view = w
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return view
}

func TestStartRunner_ValidatesAtBoundary(t *testing.T) {
	r := newTestRouter(t)

	req := validStart(1)
	req.Config.RiskPct = 0
	_, err := r.StartRunner(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindValidation, models.KindOf(err))

	req = validStart(1)
	req.Credentials.APIKey = ""
	_, err = r.StartRunner(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindValidation, models.KindOf(err))
}

func TestStartRunner_AsyncAdmission(t *testing.T) {
	r := newTestRouter(t)

	jobID, err := r.StartRunner(context.Background(), validStart(1))
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	// до drain джоба queued, воркера нет
	st := r.StatusForUser(context.Background(), 1)
	assert.Empty(t, st.Workers)
	assert.Equal(t, 1, st.QueueStats.Queued)

	r.DrainQueue(context.Background())
	waitRunning(t, r, 1)
	assert.Equal(t, 1, r.queue.Stats().Running)
}

// Free-тариф = 1 воркер: на пределе старт отклоняется, после стопа проходит.
func TestEntitlement_CapacityCycle(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	_, err := r.StartRunner(ctx, validStart(1))
	require.NoError(t, err)
	r.DrainQueue(ctx)
	first := waitRunning(t, r, 1)

	_, err = r.StartRunner(ctx, validStart(1))
	require.Error(t, err)
	assert.Equal(t, models.ErrKindEntitlementDenied, models.KindOf(err))

	_, err = r.StopRunner(ctx, 1, first.WorkerID, false)
	require.NoError(t, err)

	_, err = r.StartRunner(ctx, validStart(1))
	assert.NoError(t, err)
}

// Тариф перепроверяется на dequeue: к этому моменту он мог измениться.
func TestDrain_RechecksEntitlement(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	// обе заявки проходят допуск на enqueue (воркеров ещё ноль)
	_, err := r.StartRunner(ctx, validStart(1))
	require.NoError(t, err)
	jobB, err := r.StartRunner(ctx, validStart(1))
	require.NoError(t, err)

	r.DrainQueue(ctx)
	waitRunning(t, r, 1)

	// вторая упёрлась в лимит уже на dequeue — терминальный failed, без ретрая
	job, ok := r.queue.Get(jobB)
	require.True(t, ok)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Reason, "worker limit")
}

func TestStopRunner_OwnershipCheck(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	_, err := r.StartRunner(ctx, validStart(1))
	require.NoError(t, err)
	r.DrainQueue(ctx)
	w := waitRunning(t, r, 1)

	_, err = r.StopRunner(ctx, 999, w.WorkerID, false)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindValidation, models.KindOf(err))

	// владелец останавливает без проблем
	_, err = r.StopRunner(ctx, 1, w.WorkerID, false)
	assert.NoError(t, err)
}

// Два падения в пределах потолка рестартуются с растущим счётчиком,
// третье при cap=3 делает джобу crashed навсегда.
func TestHealthCheck_RestartCap(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	jobID, err := r.StartRunner(ctx, validStart(1))
	require.NoError(t, err)
	r.DrainQueue(ctx)

	for want := 1; want <= 2; want++ {
		w := waitRunning(t, r, 1)
		sess, ok := r.getWorker(w.WorkerID)
		require.True(t, ok)
		sess.MarkCrashed()

		r.HealthCheck(ctx)

		repl := waitRunning(t, r, 1)
		assert.NotEqual(t, w.WorkerID, repl.WorkerID)
		assert.Equal(t, want, repl.RestartCount)
	}

	// третье падение — потолок
	w := waitRunning(t, r, 1)
	sess, _ := r.getWorker(w.WorkerID)
	sess.MarkCrashed()
	r.HealthCheck(ctx)

	job, _ := r.queue.Get(jobID)
	assert.Equal(t, models.JobCrashed, job.Status)
	assert.Contains(t, job.Reason, "restart cap")

	// исчерпанный воркер остаётся виден со счётчиком на потолке
	st := r.StatusForUser(ctx, 1)
	require.Len(t, st.Workers, 1)
	assert.Equal(t, models.WorkerCrashed, st.Workers[0].Status)
	assert.Equal(t, 3, st.Workers[0].RestartCount)
}

// Запись о позиции ключуется джобой и переживает рестарт: реплика воркера
// обязана возобновить мониторинг, не тронув защитные ордера живой позиции.
func TestHealthCheck_RestartKeepsProtection(t *testing.T) {
	r, env := newTestRouterEnv(t)
	ctx := context.Background()
	const inst = "BTC-USDT-SWAP"

	jobID, err := r.StartRunner(ctx, validStart(1))
	require.NoError(t, err)
	r.DrainQueue(ctx)
	w := waitRunning(t, r, 1)

	// живая позиция с обеими ногами на брокере + запись этой джобы
	env.fake.SetPosition(models.BrokerPosition{
		Instrument: inst, Side: models.SideBuy, Size: 1, EntryPrice: 50_000,
	})
	slID := env.fake.AddOpen(models.Order{
		Instrument: inst, Side: models.SideSell, Type: models.OrderStopMarket,
		Amount: 1, ReduceOnly: true, Label: "sl-oco-1-aaaaaaaa",
	})
	tpID := env.fake.AddOpen(models.Order{
		Instrument: inst, Side: models.SideSell, Type: models.OrderLimit,
		Amount: 1, Price: 51_500, ReduceOnly: true, Label: "tp-oco-1-aaaaaaaa",
	})
	require.NoError(t, env.store.Save(ctx, 1, jobID, &models.Position{
		OrderID: "e1", Instrument: inst, Side: models.SideBuy,
		EntryPrice: 50_000, Amount: 1, StopLoss: 49_500, TakeProfit: 51_500,
		SLOrderID: slID, TPOrderID: tpID,
	}))

	sess, ok := r.getWorker(w.WorkerID)
	require.True(t, ok)
	sess.MarkCrashed()
	r.HealthCheck(ctx)

	repl := waitRunning(t, r, 1)
	require.NotEqual(t, w.WorkerID, repl.WorkerID)

	// реплика подхватила ту же позицию
	rs, ok := r.getWorker(repl.WorkerID)
	require.True(t, ok)
	assert.True(t, rs.HasPosition())

	// защита нетронута: ни одной отмены, обе ноги живы, запись на месте
	assert.Empty(t, env.fake.Canceled)
	open, err := env.fake.GetOpenOrders(ctx, inst)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	saved, err := env.store.Get(ctx, 1, jobID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, slID, saved.SLOrderID)
	assert.Equal(t, tpID, saved.TPOrderID)
}

// Исчерпанный потолок — защёлка: повторные health-проходы не накручивают
// счётчик сверх потолка и не шлют повторных алертов.
func TestHealthCheck_CapExhaustionLatched(t *testing.T) {
	r, env := newTestRouterEnv(t)
	ctx := context.Background()

	jobID, err := r.StartRunner(ctx, validStart(1))
	require.NoError(t, err)
	r.DrainQueue(ctx)

	for i := 0; i < 2; i++ {
		w := waitRunning(t, r, 1)
		sess, ok := r.getWorker(w.WorkerID)
		require.True(t, ok)
		sess.MarkCrashed()
		r.HealthCheck(ctx)
	}

	// третье падение — потолок
	w := waitRunning(t, r, 1)
	sess, ok := r.getWorker(w.WorkerID)
	require.True(t, ok)
	sess.MarkCrashed()
	r.HealthCheck(ctx)

	job, _ := r.queue.Get(jobID)
	require.Equal(t, models.JobCrashed, job.Status)
	require.Equal(t, 3, sess.RestartCount())
	require.Equal(t, 1, env.notifier.alertCount())

	// дальнейшие проходы ничего не меняют
	r.HealthCheck(ctx)
	r.HealthCheck(ctx)

	assert.Equal(t, 3, sess.RestartCount())
	assert.Equal(t, 1, env.notifier.alertCount())
	job, _ = r.queue.Get(jobID)
	assert.Equal(t, models.JobCrashed, job.Status)
}

func TestUpgradeEntitlement_RaisesCapacity(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, r.UpgradeEntitlement(ctx, 1, models.TierBasic, 30))

	for i := 0; i < 3; i++ {
		_, err := r.StartRunner(ctx, validStart(1))
		require.NoError(t, err)
	}
	r.DrainQueue(ctx)

	require.Eventually(t, func() bool {
		running := 0
		for _, w := range r.StatusForUser(ctx, 1).Workers {
			if w.Status == models.WorkerRunning {
				running++
			}
		}
		return running == 3
	}, 2*time.Second, 10*time.Millisecond)

	_, err := r.StartRunner(ctx, validStart(1))
	require.Error(t, err)
	assert.Equal(t, models.ErrKindEntitlementDenied, models.KindOf(err))
}
