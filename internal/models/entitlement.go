package models

import "time"

type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// MaxWorkers — лимит одновременных воркеров для тарифа.
func (t Tier) MaxWorkers() int {
	switch t {
	case TierBasic:
		return 3
	case TierPro:
		return 10
	case TierEnterprise:
		return 50
	default:
		return 1
	}
}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

type Entitlement struct {
	UserID     int64      `json:"user_id"`
	Tier       Tier       `json:"tier"`
	MaxWorkers int        `json:"max_workers"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   bool       `json:"is_active"`
}

// Expired — истечение проверяем лениво на каждом запросе плюс периодическим свипом.
func (e *Entitlement) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
