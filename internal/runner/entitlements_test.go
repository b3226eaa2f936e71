package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEntStore struct {
	mu   sync.Mutex
	data map[int64]*models.Entitlement
}

func newMemEntStore() *memEntStore {
	return &memEntStore{data: make(map[int64]*models.Entitlement)}
}

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
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Entitlement
	for _, e := range m.data {
		if e.Tier != models.TierFree && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func TestEntitlements_LazyFreeInit(t *testing.T) {
	e := NewEntitlements(newMemEntStore())

	ent, err := e.Resolve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, ent.Tier)
	assert.Equal(t, 1, ent.MaxWorkers)
	assert.True(t, ent.IsActive)
}

func TestEntitlements_AdmitAtCapacity(t *testing.T) {
	e := NewEntitlements(newMemEntStore())
	require.NoError(t, e.Upgrade(context.Background(), 1, models.TierBasic, 0))

	// basic = 3 воркера
	assert.NoError(t, e.Admit(context.Background(), 1, 2))

	err := e.Admit(context.Background(), 1, 3)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindEntitlementDenied, models.KindOf(err))
}

func TestEntitlements_UpgradeUnknownTier(t *testing.T) {
	e := NewEntitlements(newMemEntStore())
	err := e.Upgrade(context.Background(), 1, models.Tier("platinum"), 0)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindValidation, models.KindOf(err))
}

func TestEntitlements_LazyExpiry(t *testing.T) {
	store := newMemEntStore()
	e := NewEntitlements(store)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.Upsert(context.Background(), &models.Entitlement{
		UserID: 5, Tier: models.TierPro, MaxWorkers: 10, ExpiresAt: &past, IsActive: true,
	}))

	// истечение замечается прямо на Resolve, без ожидания свипа
	ent, err := e.Resolve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, ent.Tier)
	assert.Equal(t, 1, ent.MaxWorkers)
	assert.Nil(t, ent.ExpiresAt)
}

func TestEntitlements_SweepExpired(t *testing.T) {
	store := newMemEntStore()
	e := NewEntitlements(store)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	require.NoError(t, store.Upsert(context.Background(), &models.Entitlement{
		UserID: 1, Tier: models.TierPro, MaxWorkers: 10, ExpiresAt: &past, IsActive: true,
	}))
	require.NoError(t, store.Upsert(context.Background(), &models.Entitlement{
		UserID: 2, Tier: models.TierBasic, MaxWorkers: 3, ExpiresAt: &future, IsActive: true,
	}))

	assert.Equal(t, 1, e.SweepExpired(context.Background()))

	ent, _ := store.Get(context.Background(), 1)
	assert.Equal(t, models.TierFree, ent.Tier)
	ent2, _ := store.Get(context.Background(), 2)
	assert.Equal(t, models.TierBasic, ent2.Tier)
}
