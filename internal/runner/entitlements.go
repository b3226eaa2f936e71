package runner

import (
	"context"
	"fmt"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// EntitlementStore — персистентность тарифов (pg в проде, map в тестах).
type EntitlementStore interface {
	Get(ctx context.Context, userID int64) (*models.Entitlement, error)
	Upsert(ctx context.Context, ent *models.Entitlement) error
	ListExpired(ctx context.Context, now time.Time) ([]*models.Entitlement, error)
}

// Entitlements — допуск по тарифу. Истечение проверяется лениво на каждом
// Resolve плюс периодическим свипом из health-цикла.
type Entitlements struct {
	store EntitlementStore
}

func NewEntitlements(store EntitlementStore) *Entitlements {
	return &Entitlements{store: store}
}

// Resolve возвращает актуальный тариф пользователя: записи нет — лениво
// создаём free; срок вышел — тут же даунгрейдим.
func (e *Entitlements) Resolve(ctx context.Context, userID int64) (*models.Entitlement, error) {
	ent, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ent == nil {
		ent = &models.Entitlement{
			UserID:     userID,
			Tier:       models.TierFree,
			MaxWorkers: models.TierFree.MaxWorkers(),
			IsActive:   true,
		}
		if err := e.store.Upsert(ctx, ent); err != nil {
			return nil, err
		}
		return ent, nil
	}

	if ent.Expired(time.Now()) {
		if err := e.downgrade(ctx, ent); err != nil {
			return nil, err
		}
	}
	return ent, nil
}

// Admit — проверка допуска: тариф активен и лимит воркеров не выбран.
func (e *Entitlements) Admit(ctx context.Context, userID int64, currentWorkers int) error {
	ent, err := e.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	if !ent.IsActive {
		return models.NewError(models.ErrKindEntitlementDenied,
			fmt.Sprintf("entitlement for user %d is inactive", userID))
	}
	if currentWorkers >= ent.MaxWorkers {
		return models.NewError(models.ErrKindEntitlementDenied,
			fmt.Sprintf("worker limit reached: %d/%d (tier %s)", currentWorkers, ent.MaxWorkers, ent.Tier))
	}
	return nil
}

func (e *Entitlements) Upgrade(ctx context.Context, userID int64, tier models.Tier, durationDays int) error {
	if !tier.Valid() {
		return models.NewError(models.ErrKindValidation, fmt.Sprintf("unknown tier %q", tier))
	}

	ent := &models.Entitlement{
		UserID:     userID,
		Tier:       tier,
		MaxWorkers: tier.MaxWorkers(),
		IsActive:   true,
	}
	if durationDays > 0 {
		exp := time.Now().AddDate(0, 0, durationDays)
		ent.ExpiresAt = &exp
	}
	return e.store.Upsert(ctx, ent)
}

// SweepExpired — периодический даунгрейд истёкших тарифов до free.
// Возвращает число даунгрейднутых.
func (e *Entitlements) SweepExpired(ctx context.Context) int {
	expired, err := e.store.ListExpired(ctx, time.Now())
	if err != nil {
		logger.Warn("entitlement sweep: %v", err)
		return 0
	}

	n := 0
	for _, ent := range expired {
		if err := e.downgrade(ctx, ent); err != nil {
			logger.Warn("entitlement sweep: downgrade user %d: %v", ent.UserID, err)
			continue
		}
		n++
	}
	return n
}

func (e *Entitlements) downgrade(ctx context.Context, ent *models.Entitlement) error {
	logger.Info("entitlement expired: user %d %s -> free", ent.UserID, ent.Tier)
	ent.Tier = models.TierFree
	ent.MaxWorkers = models.TierFree.MaxWorkers()
	ent.ExpiresAt = nil
	ent.IsActive = true
	return e.store.Upsert(ctx, ent)
}
