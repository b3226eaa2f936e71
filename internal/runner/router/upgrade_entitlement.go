package router

import (
	"context"

	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// UpgradeEntitlement меняет тариф пользователя. durationDays <= 0 — бессрочно.
// Даунгрейд сюда же: он не трогает уже запущенные воркеры, лимит применится
// на следующем допуске (start или рестарт).
func (r *Router) UpgradeEntitlement(ctx context.Context, userID int64, tier models.Tier, durationDays int) error {
	if err := r.ents.Upgrade(ctx, userID, tier, durationDays); err != nil {
		return err
	}
	logger.Info("entitlement: user %d -> %s (days=%d)", userID, tier, durationDays)
	return nil
}
